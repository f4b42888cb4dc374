// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultAuthSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	// Session tokens are minted by the identity provider; we only verify them.
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`

	StorageDriver         string `mapstructure:"STORAGE_DRIVER"`
	StorageBucket         string `mapstructure:"STORAGE_BUCKET"`
	StorageRegion         string `mapstructure:"STORAGE_REGION"`
	StorageEndpoint       string `mapstructure:"STORAGE_ENDPOINT"`
	StorageAccessKey      string `mapstructure:"STORAGE_ACCESS_KEY"`
	StorageSecretKey      string `mapstructure:"STORAGE_SECRET_KEY"`
	StorageUseSSL         bool   `mapstructure:"STORAGE_USE_SSL"`
	StorageForcePathStyle bool   `mapstructure:"STORAGE_FORCE_PATH_STYLE"`
	SignedURLTTLMinutes   int    `mapstructure:"SIGNED_URL_TTL_MINUTES"`

	ImageMaxDimension          int    `mapstructure:"IMAGE_MAX_DIMENSION"`
	ImageJPEGQuality           int    `mapstructure:"IMAGE_JPEG_QUALITY"`
	ImageOutputFormat          string `mapstructure:"IMAGE_OUTPUT_FORMAT"`
	ImageMaxUploadSizeMB       int    `mapstructure:"IMAGE_MAX_UPLOAD_MB"`
	ImageProcessTimeoutSeconds int    `mapstructure:"IMAGE_PROCESS_TIMEOUT_SECONDS"`

	FeedDefaultLimit int `mapstructure:"FEED_DEFAULT_LIMIT"`
	FeedMaxLimit     int `mapstructure:"FEED_MAX_LIMIT"`

	RateLimitMax           int `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`

	EventsDriver string `mapstructure:"EVENTS_DRIVER"`
	EventsTopic  string `mapstructure:"EVENTS_TOPIC"`
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "shutter")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("AUTH_JWT_SECRET", defaultAuthSecret)
	viper.SetDefault("AUTH_ISSUER", "shutter-idp")
	viper.SetDefault("AUTH_AUDIENCE", "shutter-client")

	viper.SetDefault("STORAGE_DRIVER", "minio")
	viper.SetDefault("STORAGE_BUCKET", "posts")
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	viper.SetDefault("STORAGE_ACCESS_KEY", "minioadmin")
	viper.SetDefault("STORAGE_SECRET_KEY", "minioadmin")
	viper.SetDefault("STORAGE_USE_SSL", false)
	viper.SetDefault("STORAGE_FORCE_PATH_STYLE", true)
	viper.SetDefault("SIGNED_URL_TTL_MINUTES", 60)

	viper.SetDefault("IMAGE_MAX_DIMENSION", 2048)
	viper.SetDefault("IMAGE_JPEG_QUALITY", 95)
	viper.SetDefault("IMAGE_OUTPUT_FORMAT", "jpeg")
	viper.SetDefault("IMAGE_MAX_UPLOAD_MB", 10)
	viper.SetDefault("IMAGE_PROCESS_TIMEOUT_SECONDS", 30)

	viper.SetDefault("FEED_DEFAULT_LIMIT", 10)
	viper.SetDefault("FEED_MAX_LIMIT", 50)

	viper.SetDefault("RATE_LIMIT_MAX", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 10)

	viper.SetDefault("EVENTS_DRIVER", "none")
	viper.SetDefault("EVENTS_TOPIC", "shutter.posts")
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.ImageOutputFormat = strings.ToLower(strings.TrimSpace(c.ImageOutputFormat))
	c.EventsDriver = strings.ToLower(strings.TrimSpace(c.EventsDriver))
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// SignedURLTTL returns the lifetime of issued signed image URLs.
func (c *Config) SignedURLTTL() time.Duration {
	if c.SignedURLTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.SignedURLTTLMinutes) * time.Minute
}

// RateLimitWindow returns the per-IP rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ImageProcessTimeout bounds the upload pipeline for a single request.
func (c *Config) ImageProcessTimeout() time.Duration {
	if c.ImageProcessTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ImageProcessTimeoutSeconds) * time.Second
}

// KafkaBrokerList splits KAFKA_BROKERS into individual addresses.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.AuthJWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_MB must be positive")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES cannot be negative")
	}

	switch c.StorageDriver {
	case "", "s3", "minio":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.ImageOutputFormat {
	case "", "jpeg", "webp":
	default:
		return fmt.Errorf("unsupported IMAGE_OUTPUT_FORMAT %q", c.ImageOutputFormat)
	}
	switch c.EventsDriver {
	case "", "none", "redis", "kafka":
	default:
		return fmt.Errorf("unsupported EVENTS_DRIVER %q", c.EventsDriver)
	}
	if c.FeedMaxLimit > 0 && c.FeedDefaultLimit > c.FeedMaxLimit {
		return errors.New("FEED_DEFAULT_LIMIT cannot exceed FEED_MAX_LIMIT")
	}

	if c.IsProduction() {
		if c.AuthJWTSecret == defaultAuthSecret {
			return errors.New("AUTH_JWT_SECRET must be changed from the default value in production")
		}
		if len(c.AuthJWTSecret) < 32 {
			return errors.New("AUTH_JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable SSL in production")
		}
		if c.StorageBucket == "" {
			return errors.New("STORAGE_BUCKET is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.AuthJWTSecret) < 32 {
		log.Println("WARNING: AUTH_JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
