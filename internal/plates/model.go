package plates

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const minPlateLength = 4

// ErrInvalidPlate indicates that input text does not normalize into a usable plate.
var ErrInvalidPlate = errors.New("plates: invalid plate")

// Plate is a normalized alphanumeric vehicle identifier.
type Plate string

// NewPlate normalizes raw text (uppercase, alphanumerics only) and enforces
// the minimum length.
func NewPlate(raw string) (Plate, error) {
	normalized := Normalize(raw)
	if len(normalized) < minPlateLength {
		return "", fmt.Errorf("%w: %q shorter than %d characters", ErrInvalidPlate, normalized, minPlateLength)
	}
	return Plate(normalized), nil
}

// String returns the normalized plate text.
func (p Plate) String() string {
	return string(p)
}

// Normalize uppercases raw text and strips every non-alphanumeric rune.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Registration ties a plate to the player who claims it. The same plate text
// may be claimed by several players; uniqueness holds per (player, plate).
type Registration struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID  int64     `gorm:"column:tg_id;not null;uniqueIndex:idx_plate_owner,priority:1"`
	PlateText string    `gorm:"column:plate_text;size:32;not null;uniqueIndex:idx_plate_owner,priority:2;index:idx_plate_text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Registration) TableName() string {
	return "car_plates"
}

// Submission is one recognized-plate event, unique per (player, game, plate).
type Submission struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID  int64     `gorm:"column:tg_id;not null;uniqueIndex:idx_submission_unique,priority:1"`
	GameID    int64     `gorm:"column:game_id;not null;uniqueIndex:idx_submission_unique,priority:2"`
	MediaRef  string    `gorm:"column:photo_id;size:190"`
	PlateText string    `gorm:"column:plate_text;size:32;not null;uniqueIndex:idx_submission_unique,priority:3"`
	IsValid   bool      `gorm:"column:is_valid;not null;default:true"`
	Points    int       `gorm:"column:points;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// Bonus kinds stored in the bonus ledger.
const (
	BonusKindSpotted = "spotted"
	BonusKindManual  = "manual"
)

// BonusEntry is an append-only signed adjustment outside the racing ledger,
// covering spotted awards and manual administrative grants.
type BonusEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID  int64     `gorm:"column:tg_id;not null;index"`
	GameID    int64     `gorm:"column:game_id;not null"`
	Kind      string    `gorm:"column:kind;size:32;not null"`
	Amount    int       `gorm:"column:amount;not null"`
	Reason    string    `gorm:"column:reason;size:200"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (BonusEntry) TableName() string {
	return "bonuses"
}

// SpottedLogEntry is the idempotency guard for spotted awards: at most one
// row per (owner, submission). Only ever read for existence checks.
type SpottedLogEntry struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SubmissionID int64     `gorm:"column:submission_id;not null;uniqueIndex:idx_spotted_once,priority:2"`
	OwnerID      int64     `gorm:"column:owner_tg_id;not null;uniqueIndex:idx_spotted_once,priority:1"`
	PlateText    string    `gorm:"column:plate_text;size:32;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (SpottedLogEntry) TableName() string {
	return "spotted_log"
}
