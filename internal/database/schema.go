package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shutter/internal/config"
	"shutter/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan says which schema steps run for a config. SQL migrations are
// the source of truth in Postgres; AutoMigrate fills gaps in development.
type SchemaPlan struct {
	Mode    string
	Env     string
	SQL     bool
	Auto    bool
	Applied []int
	Pending []Migration
}

// PlanSchema resolves DB_SCHEMA_MODE against APP_ENV. AutoMigrate never
// runs in production or staging unless destructive changes are allowed.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	plan := SchemaPlan{Mode: mode, Env: cfg.Env}

	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	deployed := env == "production" || env == "prod" || env == "staging" || env == "stage"

	switch mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeAuto:
		if deployed && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto in %q needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.Auto = true
	case SchemaModeHybrid:
		plan.SQL = true
		plan.Auto = !deployed
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
	return plan, nil
}

func runAutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema brings the profiles, posts and likes tables up to date.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		migrator, err := NewEmbeddedMigrator(db)
		if err != nil {
			return err
		}
		if _, err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.Auto {
		return nil
	}

	if plan.Mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
		middleware.Logger.Warn("AutoMigrate allowed outside development; review schema diffs before deploying")
	}
	middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.Mode), slog.String("env", plan.Env))
	if err := runAutoMigrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Status fills in applied and pending SQL migrations for cmd/migrate.
func Status(ctx context.Context, db *gorm.DB, cfg *config.Config) (SchemaPlan, error) {
	plan, err := PlanSchema(cfg)
	if err != nil || !plan.SQL {
		return plan, err
	}

	migrator, err := NewEmbeddedMigrator(db)
	if err != nil {
		return plan, err
	}
	if plan.Applied, err = migrator.Applied(ctx); err != nil {
		return plan, err
	}
	plan.Pending, err = migrator.Pending(ctx)
	return plan, err
}
