package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateworks/platespot/internal/racer"
)

const migrationSettleTerminalChallengeNotifications = "2026-07-21_settle_terminal_challenge_notifications"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSettleTerminalChallengeNotifications, apply: settleTerminalChallengeNotifications},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Challenges that reached a terminal state before delivery no longer need a
// notification; marking them keeps the notifier query from rescanning them.
func settleTerminalChallengeNotifications(db *gorm.DB) error {
	return db.Model(&racer.Challenge{}).
		Where("status <> ? AND notified = ?", racer.StatusPending, false).
		Update("notified", true).Error
}
