// Package ratelimit implements a store-backed fixed-window counter so
// limits hold across restarts and instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Window is one counter row keyed by caller-chosen string.
type Window struct {
	Key     string    `gorm:"column:key;primaryKey;size:190"`
	Count   int       `gorm:"column:count;not null"`
	ResetAt time.Time `gorm:"column:reset_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Window) TableName() string {
	return "rate_limits"
}

// Outcome reports whether the call was admitted and the window state.
type Outcome struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// LimiterConfig describes the dependencies of the limiter.
type LimiterConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Limiter admits at most N calls per key per window.
type Limiter struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewLimiter constructs the limiter.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("ratelimit: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{db: cfg.Database, clock: clock}, nil
}

// Consume counts one call against the key, resetting the window when it has
// elapsed. The read-modify-write runs in a transaction.
func (l *Limiter) Consume(ctx context.Context, key string, limit int, window time.Duration) (Outcome, error) {
	if key == "" || limit <= 0 || window <= 0 {
		return Outcome{}, fmt.Errorf("ratelimit: bad arguments (key=%q limit=%d window=%s)", key, limit, window)
	}

	var outcome Outcome
	now := l.clock()
	txErr := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Window
		err := tx.Where("key = ?", key).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = Window{Key: key, Count: 1, ResetAt: now.Add(window)}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			outcome = Outcome{Allowed: true, Remaining: limit - 1, ResetAt: row.ResetAt}
			return nil
		case err != nil:
			return err
		}

		if !row.ResetAt.After(now) {
			resetAt := now.Add(window)
			err := tx.Model(&Window{}).Where("key = ?", key).
				Updates(map[string]interface{}{"count": 1, "reset_at": resetAt}).Error
			if err != nil {
				return err
			}
			outcome = Outcome{Allowed: true, Remaining: limit - 1, ResetAt: resetAt}
			return nil
		}

		if row.Count >= limit {
			outcome = Outcome{Allowed: false, Remaining: 0, ResetAt: row.ResetAt}
			return nil
		}

		err = tx.Model(&Window{}).Where("key = ?", key).
			Update("count", gorm.Expr("count + 1")).Error
		if err != nil {
			return err
		}
		outcome = Outcome{Allowed: true, Remaining: limit - (row.Count + 1), ResetAt: row.ResetAt}
		return nil
	})
	if txErr != nil {
		return Outcome{}, txErr
	}
	return outcome, nil
}

// ConsumeDaily counts one call against a per-day bucket of the key.
func (l *Limiter) ConsumeDaily(ctx context.Context, key string, dailyLimit int) (Outcome, error) {
	day := l.clock().UTC().Format("2006-01-02")
	return l.Consume(ctx, key+":"+day, dailyLimit, 24*time.Hour)
}
