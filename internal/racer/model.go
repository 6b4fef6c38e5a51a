package racer

import (
	"errors"
	"fmt"
	"time"
)

// Transaction kinds in the racing currency ledger.
const (
	TxKindEarn  = "earn"
	TxKindSpend = "spend"
)

// Transaction is one append-only earn/spend entry. A player's balance is the
// signed sum over their transactions and is never materialized.
type Transaction struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID  int64     `gorm:"column:tg_id;not null;index"`
	Kind      string    `gorm:"column:kind;size:8;not null"`
	Amount    int       `gorm:"column:amount;not null"`
	Reason    string    `gorm:"column:reason;size:190"`
	CreatedAt time.Time `gorm:"column:ts;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "racer_tx"
}

// Energy is the per-player regenerating action resource. Regeneration happens
// outside this service; only the floor-clamped decrement is modeled.
type Energy struct {
	PlayerID  int64     `gorm:"column:tg_id;primaryKey"`
	Value     int       `gorm:"column:value;not null;default:5"`
	UpdatedAt time.Time `gorm:"column:updated_ts;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Energy) TableName() string {
	return "racer_energy"
}

// GarageEntry is one owned vehicle; level only ever increases.
type GarageEntry struct {
	PlayerID  int64  `gorm:"column:tg_id;primaryKey"`
	VehicleID string `gorm:"column:car_id;primaryKey;size:64"`
	Level     int    `gorm:"column:level;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (GarageEntry) TableName() string {
	return "racer_garage"
}

// Race results.
const (
	ResultWin  = "win"
	ResultLose = "lose"
	ResultDraw = "draw"
)

// RaceRecord is one participant's view of a finished race. PvP races write
// two mirrored rows sharing the same replay trace.
type RaceRecord struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerID    int64     `gorm:"column:tg_id;not null;index"`
	OpponentID  *int64    `gorm:"column:opponent_tg_id"`
	VehicleID   string    `gorm:"column:car_id;size:64;not null"`
	Result      string    `gorm:"column:result;size:8;not null"`
	PointsDelta int       `gorm:"column:points_delta;not null"`
	Replay      string    `gorm:"column:replay;type:text"`
	CreatedAt   time.Time `gorm:"column:ts;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (RaceRecord) TableName() string {
	return "racer_races"
}

// Challenge statuses. pending is the only non-terminal state.
const (
	StatusPending  = "pending"
	StatusDeclined = "declined"
	StatusCanceled = "canceled"
	StatusDone     = "done"
)

// Challenge is a proposed duel between two players.
type Challenge struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ChallengerID int64     `gorm:"column:from_tg;not null;index:idx_chal_from"`
	ChallengedID int64     `gorm:"column:to_tg;not null;index:idx_chal_to"`
	VehicleID    string    `gorm:"column:car_id;size:64;not null"`
	Status       string    `gorm:"column:status;size:16;not null;default:pending"`
	Notified     bool      `gorm:"column:notified;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_ts;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Challenge) TableName() string {
	return "racer_challenges"
}

// Domain failures surfaced to the transport layer as structured outcomes.
var (
	ErrInsufficientFunds = errors.New("racer: insufficient funds")
	ErrAlreadyOwned      = errors.New("racer: vehicle already owned")
	ErrNotOwned          = errors.New("racer: vehicle not owned")
	ErrNoVehicle         = errors.New("racer: no vehicle in garage")
	ErrForbidden         = errors.New("racer: actor is not a party to this action")
	ErrBadState          = errors.New("racer: challenge is not pending")
	ErrChallengeNotFound = errors.New("racer: challenge not found")
)

// InsufficientEnergyError reports current energy without mutating state.
// Duel checks fill both sides; solo races leave OpponentEnergy at -1.
type InsufficientEnergyError struct {
	Energy         int
	OpponentEnergy int
}

func (e *InsufficientEnergyError) Error() string {
	if e.OpponentEnergy < 0 {
		return fmt.Sprintf("racer: insufficient energy (have %d)", e.Energy)
	}
	return fmt.Sprintf("racer: insufficient energy (challenger=%d challenged=%d)", e.Energy, e.OpponentEnergy)
}

// ErrInsufficientEnergy matches any energy shortfall via errors.Is.
var ErrInsufficientEnergy = errors.New("racer: insufficient energy")

// Is lets errors.Is(err, ErrInsufficientEnergy) succeed on the detailed error.
func (e *InsufficientEnergyError) Is(target error) bool {
	return target == ErrInsufficientEnergy
}
