package players

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidPlayerID indicates a missing or non-positive account id.
var ErrInvalidPlayerID = errors.New("players: invalid player id")

// Service manages player profiles.
type Service struct {
	db *gorm.DB
}

// NewService constructs the player service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("players: database connection required")
	}
	return &Service{db: db}, nil
}

// Upsert creates the player on first interaction and refreshes the
// denormalized profile fields on every later one.
func (s *Service) Upsert(ctx context.Context, id int64, username, firstName, lastName string) error {
	if id <= 0 {
		return ErrInvalidPlayerID
	}
	player := Player{ID: id, Username: username, FirstName: firstName, LastName: lastName}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tg_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(&player).Error
}

// Get returns the stored profile for the given id.
func (s *Service) Get(ctx context.Context, id int64) (Player, error) {
	var player Player
	err := s.db.WithContext(ctx).Where("tg_id = ?", id).Take(&player).Error
	return player, err
}
