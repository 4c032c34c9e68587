// Package migrations applies versioned schema changes. Each version is
// recorded in schema_migrations and applied at most once.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration is one schema change.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// MigrationRecord tracks an applied migration.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for migration records.
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a Migrator for the given migrations.
func NewMigrator(db *gorm.DB, logger *slog.Logger, migrations ...Migration) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, logger: logger, migrations: sorted}
}

func (m *Migrator) init(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}
	return nil
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.init(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description),
		)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}
	}
	return nil
}

// Down rolls back the most recently applied migration. It is a no-op when
// nothing has been applied.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.init(ctx); err != nil {
		return err
	}

	var record MigrationRecord
	if err := m.db.WithContext(ctx).Order("version DESC").First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("getting last migration: %w", err)
	}

	for _, mig := range m.migrations {
		if mig.Version != record.Version {
			continue
		}
		if mig.Down == nil {
			return fmt.Errorf("migration %s does not support rollback", mig.Version)
		}
		m.logger.InfoContext(ctx, "rolling back migration", slog.String("version", mig.Version))
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Down(tx); err != nil {
				return err
			}
			return tx.Where("version = ?", mig.Version).Delete(&MigrationRecord{}).Error
		})
	}
	return fmt.Errorf("migration definition not found for version %s", record.Version)
}

// Status lists every registered migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		st := MigrationStatus{Version: mig.Version, Description: mig.Description}
		if rec, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &rec.AppliedAt
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}
	out := make(map[string]MigrationRecord, len(records))
	for _, r := range records {
		out[r.Version] = r
	}
	return out, nil
}
