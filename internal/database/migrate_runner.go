package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"shutter/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog records one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null;index"`
}

// TableName keeps the log table name stable across renames of the type.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Migrator applies SQL migrations and tracks them in migration_logs. Each
// migration runs in its own transaction together with its log row.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator returns a Migrator over migrations, which must be sorted by
// version as LoadMigrations returns them.
func NewMigrator(db *gorm.DB, migrations []Migration) *Migrator {
	return &Migrator{db: db, migrations: migrations}
}

// NewEmbeddedMigrator returns a Migrator over the compiled-in migrations.
func NewEmbeddedMigrator(db *gorm.DB) (*Migrator, error) {
	migrations, err := EmbeddedMigrations()
	if err != nil {
		return nil, err
	}
	return NewMigrator(db, migrations), nil
}

// Applied lists applied versions in ascending order. A database that has
// never been migrated has none.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(&MigrationLog{}) {
		return nil, nil
	}
	var versions []int
	if err := db.Model(&MigrationLog{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return versions, nil
}

// Pending lists migrations not yet applied. It fails when the log holds a
// version this binary does not know, since that database was migrated by a
// newer build.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	known := make(map[int]bool, len(m.migrations))
	var pending []Migration
	for _, mig := range m.migrations {
		known[mig.Version] = true
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}

	if unknown := unknownVersions(applied, known); len(unknown) > 0 {
		return nil, fmt.Errorf("migration_logs has versions this build does not know: %s", strings.Join(unknown, ", "))
	}
	return pending, nil
}

func unknownVersions(applied []int, known map[int]bool) []string {
	var out []int
	for _, v := range applied {
		if !known[v] {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	labels := make([]string, len(out))
	for i, v := range out {
		labels[i] = fmt.Sprintf("%06d", v)
	}
	return labels
}

// Up applies every pending migration in version order and returns how many
// ran. It stops at the first failure; earlier migrations stay applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureLog(ctx); err != nil {
		return 0, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.Up).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: mig.Version, Name: mig.Name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return i, fmt.Errorf("apply migration %s: %w", mig, err)
		}
		middleware.Logger.InfoContext(ctx, "migration applied", slog.String("migration", mig.String()))
	}
	return len(pending), nil
}

// Down reverts one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %06d is not known", version)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s has not been applied", target)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(target.Down).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return fmt.Errorf("revert migration %s: %w", target, err)
	}
	middleware.Logger.InfoContext(ctx, "migration reverted", slog.String("migration", target.String()))
	return nil
}

func (m *Migrator) ensureLog(ctx context.Context) error {
	mg := m.db.WithContext(ctx).Migrator()
	if mg.HasTable(&MigrationLog{}) {
		return nil
	}
	if err := mg.CreateTable(&MigrationLog{}); err != nil {
		return fmt.Errorf("create migration log: %w", err)
	}
	return nil
}
