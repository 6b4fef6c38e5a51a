// Package sessions keeps transient multi-step prompt state (for example
// "waiting for a plate to register") in the store instead of process
// memory, so it survives restarts and extra instances.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultTTL = 2 * time.Minute

// Session is one pending prompt, at most one per player.
type Session struct {
	PlayerID  int64     `gorm:"column:tg_id;primaryKey"`
	Action    string    `gorm:"column:action;size:32;not null"`
	PromptRef string    `gorm:"column:prompt_ref;size:190"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "prompt_sessions"
}

// ServiceConfig describes the dependencies of the session service.
type ServiceConfig struct {
	Database *gorm.DB
	TTL      time.Duration
	Clock    func() time.Time
}

// Service stores and expires prompt sessions.
type Service struct {
	db    *gorm.DB
	ttl   time.Duration
	clock func() time.Time
}

// NewService constructs the session service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("sessions: database connection required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, ttl: ttl, clock: clock}, nil
}

// Put records the player's pending action, replacing any previous one.
func (s *Service) Put(ctx context.Context, playerID int64, action, promptRef string) error {
	session := Session{
		PlayerID:  playerID,
		Action:    action,
		PromptRef: promptRef,
		ExpiresAt: s.clock().Add(s.ttl),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tg_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"action", "prompt_ref", "expires_at"}),
	}).Create(&session).Error
}

// Get returns the player's pending session. Expired rows are removed and
// reported as absent.
func (s *Service) Get(ctx context.Context, playerID int64) (Session, bool, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("tg_id = ?", playerID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	if !session.ExpiresAt.After(s.clock()) {
		_ = s.Clear(ctx, playerID)
		return Session{}, false, nil
	}
	return session, true, nil
}

// Clear removes the player's pending session if any.
func (s *Service) Clear(ctx context.Context, playerID int64) error {
	return s.db.WithContext(ctx).Where("tg_id = ?", playerID).Delete(&Session{}).Error
}

// PurgeExpired removes every expired session and returns the count.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.clock()).Delete(&Session{})
	return result.RowsAffected, result.Error
}
