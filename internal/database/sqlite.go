package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateworks/platespot/internal/plates"
	"github.com/plateworks/platespot/internal/players"
	"github.com/plateworks/platespot/internal/racer"
	"github.com/plateworks/platespot/internal/ratelimit"
	"github.com/plateworks/platespot/internal/sessions"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The single open connection serializes writers, which is the deployment
// model this service assumes.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&players.Player{},
		&plates.Registration{},
		&plates.Submission{},
		&plates.BonusEntry{},
		&plates.SpottedLogEntry{},
		&racer.Transaction{},
		&racer.Energy{},
		&racer.GarageEntry{},
		&racer.RaceRecord{},
		&racer.Challenge{},
		&sessions.Session{},
		&ratelimit.Window{},
		&migrationRecord{},
	)
}
