// Package seed loads demo profiles and posts for development.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"shutter/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

// SubjectPrefix marks seeded identities.
const SubjectPrefix = "clerk_"

// FixtureProfile is one demo account.
type FixtureProfile struct {
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
	AvatarURL   string `yaml:"avatar_url"`
}

// FixturePost is one demo post, dated relative to the seeding time.
type FixturePost struct {
	Username string `yaml:"username"`
	DaysAgo  int    `yaml:"days_ago"`
	ImageURL string `yaml:"image_url"`
	Caption  string `yaml:"caption"`
}

// Fixtures is the parsed fixtures.yaml.
type Fixtures struct {
	Profiles []FixtureProfile `yaml:"profiles"`
	Posts    []FixturePost    `yaml:"posts"`
}

// LoadFixtures parses the embedded fixture file and checks that every post
// belongs to a declared profile.
func LoadFixtures() (*Fixtures, error) {
	return parseFixtures(fixturesYAML)
}

func parseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	known := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		if p.Username == "" {
			return nil, errors.New("fixture profile without username")
		}
		known[p.Username] = true
	}
	for i, p := range f.Posts {
		if !known[p.Username] {
			return nil, fmt.Errorf("fixture post %d references unknown profile %q", i, p.Username)
		}
		if p.ImageURL == "" {
			return nil, fmt.Errorf("fixture post %d has no image_url", i)
		}
	}
	return &f, nil
}

// Options configures a Seeder.
type Options struct {
	// ClearPosts deletes every post and like before seeding.
	ClearPosts bool
	// ExtraPosts adds generated posts on top of the fixtures.
	ExtraPosts int
	// MaxDays bounds how far back generated posts are dated.
	MaxDays   int
	BatchSize int
	// RandSeed makes generated content reproducible; zero uses the clock.
	RandSeed int64
	Now      func() time.Time
}

// Result reports what a run wrote.
type Result struct {
	Profiles int
	Posts    int
}

// Seeder writes fixtures and generated posts.
type Seeder struct {
	db       *gorm.DB
	opts     Options
	fixtures *Fixtures
}

// NewSeeder loads the embedded fixtures and fills option defaults.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	fixtures, err := LoadFixtures()
	if err != nil {
		return nil, err
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RandSeed == 0 {
		opts.RandSeed = opts.Now().UnixNano()
	}
	return &Seeder{db: db, opts: opts, fixtures: fixtures}, nil
}

// Run upserts the demo profiles and inserts their posts in one transaction.
// Re-running refreshes profile metadata without duplicating accounts.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.ClearPosts {
			if err := clearPosts(tx); err != nil {
				return err
			}
		}

		profiles, err := s.upsertProfiles(tx)
		if err != nil {
			return err
		}
		res.Profiles = len(profiles)

		now := s.opts.Now().UTC()
		posts := make([]*models.Post, 0, len(s.fixtures.Posts)+s.opts.ExtraPosts)
		for _, fp := range s.fixtures.Posts {
			posts = append(posts, &models.Post{
				ProfileID: profiles[fp.Username].ID,
				ImagePath: fp.ImageURL,
				Caption:   fp.Caption,
				CreatedAt: now.AddDate(0, 0, -fp.DaysAgo),
			})
		}

		if s.opts.ExtraPosts > 0 {
			factory := NewFactory(s.opts.RandSeed, s.opts.MaxDays, s.opts.Now)
			authors := make([]*models.Profile, 0, len(profiles))
			for _, fp := range s.fixtures.Profiles {
				authors = append(authors, profiles[fp.Username])
			}
			for i := 0; i < s.opts.ExtraPosts; i++ {
				posts = append(posts, factory.Post(authors[i%len(authors)]))
			}
		}

		if len(posts) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(posts, s.opts.BatchSize).Error; err != nil {
			return fmt.Errorf("create posts: %w", err)
		}
		res.Posts = len(posts)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Printf("seeded %d profiles and %d posts", res.Profiles, res.Posts)
	return res, nil
}

func (s *Seeder) upsertProfiles(tx *gorm.DB) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(s.fixtures.Profiles))
	for _, fp := range s.fixtures.Profiles {
		subject := SubjectPrefix + fp.Username
		p := &models.Profile{
			Subject:     subject,
			Username:    fp.Username,
			DisplayName: fp.DisplayName,
			AvatarURL:   fp.AvatarURL,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "updated_at"}),
		}).Create(p).Error; err != nil {
			return nil, fmt.Errorf("upsert profile %s: %w", fp.Username, err)
		}

		// The conflict path does not report the existing id on every dialect.
		var stored models.Profile
		if err := tx.Where("subject = ?", subject).First(&stored).Error; err != nil {
			return nil, fmt.Errorf("reload profile %s: %w", fp.Username, err)
		}
		out[fp.Username] = &stored
	}
	return out, nil
}

func clearPosts(tx *gorm.DB) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := all.Delete(&models.Like{}).Error; err != nil {
		return fmt.Errorf("clear likes: %w", err)
	}
	if err := all.Delete(&models.Post{}).Error; err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}
	return nil
}
