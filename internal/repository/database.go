// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers postgres:// for the migrator
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// DB holds the database connection.
type DB struct {
	*gorm.DB
	cfg config.DatabaseConfig
	log *logger.Logger
}

// NewDB opens the configured store and checks the connection.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	var gormLogLevel gormlogger.LogLevel
	switch log.GetLogger().GetLevel() {
	case 0: // debug
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormLogLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLite.Path)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	event := log.Info().Str("driver", cfg.Driver)
	if cfg.Driver == config.DriverSQLite {
		event = event.Str("path", cfg.SQLite.Path)
	} else {
		event = event.Str("host", cfg.Postgres.Host).Int("port", cfg.Postgres.Port).Str("database", cfg.Postgres.Database)
	}
	event.Msg("Connected to database")

	return &DB{DB: db, cfg: *cfg, log: log}, nil
}

// legacyColumns are columns that joined the schema after the first release.
// Databases created before then get them added in place.
var legacyColumns = []struct {
	model any
	field string
}{
	{&models.Ticket{}, "JudgeID"},
}

// Migrate brings the schema up to date. Safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureColumns(ctx); err != nil {
		return err
	}

	m, closeFn, err := db.newMigrator()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.log.Debug().Msg("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	db.log.Info().Uint("version", version).Msg("Applied schema migrations")
	return nil
}

// MigrationVersion reports the current schema version and whether the last migration failed midway.
func (db *DB) MigrationVersion() (uint, bool, error) {
	m, closeFn, err := db.newMigrator()
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// ensureColumns adds missing columns to tables that already exist.
func (db *DB) ensureColumns(ctx context.Context) error {
	migrator := db.WithContext(ctx).Migrator()
	for _, c := range legacyColumns {
		if !migrator.HasTable(c.model) || migrator.HasColumn(c.model, c.field) {
			continue
		}
		if err := migrator.AddColumn(c.model, c.field); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c.field, err)
		}
		db.log.Info().Str("column", c.field).Msg("Added missing column")
	}
	return nil
}

func (db *DB) newMigrator() (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrationsFS, "migrations/"+db.cfg.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	if db.cfg.Driver == config.DriverPostgres {
		m, err := migrate.NewWithSourceInstance("iofs", src, db.cfg.Postgres.URL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init migrator: %w", err)
		}
		return m, func() { _, _ = m.Close() }, nil
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init migrator: %w", err)
	}
	// Closing the sqlite driver would close the shared connection pool.
	return m, func() {}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
