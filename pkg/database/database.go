// Package database opens the gorm connection used by the recommendation
// store: postgres in production, sqlite for local runs and tests.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config selects the gorm dialect and pool.
type Config struct {
	Driver          string        `yaml:"driver" default:"sqlite" validate:"oneof=postgres sqlite"`
	DSN             string        `yaml:"dsn" default:"file:finscan.db?_busy_timeout=5000" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10" validate:"min=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	LogLevel        string        `yaml:"log_level" default:"warn" validate:"oneof=silent error warn info"`
}

// Open connects and applies pool settings. Constraint violations are
// translated to gorm.ErrDuplicatedKey.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite" {
		// sqlite allows one writer; in-memory databases are per connection
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Close releases the pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func logLevel(s string) gormlogger.LogLevel {
	switch s {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
