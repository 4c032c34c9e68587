// Package database opens the job history database and applies its schema.
// It supports SQLite, PostgreSQL, and MySQL through GORM.
package database

import (
	"context"
	"fmt"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/database/migrations"
)

// DB wraps a GORM connection.
type DB struct {
	*gorm.DB
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

// New opens a connection based on cfg. It does not migrate; call Migrate.
func New(cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	dialector, err := getDialector(cfg)
	if err != nil {
		return nil, fmt.Errorf("getting dialector: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(log, cfg.LogLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn := &DB{DB: db, cfg: cfg, logger: log}
	sqlDB, err := conn.pool()
	if err != nil {
		return nil, err
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		// One writer at a time; the history table sees a handful of writes per job.
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Debug("database connection configured",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", maxOpen),
	)

	return conn, nil
}

// sqlitePragmas are appended to every SQLite DSN.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func getDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate applies every pending schema migration.
func (db *DB) Migrate(ctx context.Context) error {
	m := migrations.NewMigrator(db.DB, db.logger, migrations.AllMigrations()...)
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (db *DB) pool() (*sql.DB, error) {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.pool()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping backs the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.pool()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Driver returns the database driver name.
func (db *DB) Driver() string {
	return db.cfg.Driver
}
