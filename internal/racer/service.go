package racer

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	startEnergy    = 5
	raceEnergyCost = 1
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "racer.service.new"
	opBalance     = "racer.balance"
	opCredit      = "racer.credit"
	opDebit       = "racer.debit"
	opEnergy      = "racer.energy"
	opGarage      = "racer.garage"
	opBuy         = "racer.buy"
	opUpgrade     = "racer.upgrade"
	opRace        = "racer.race"
	opChalCreate  = "racer.challenge.create"
	opChalDecline = "racer.challenge.decline"
	opChalCancel  = "racer.challenge.cancel"
	opChalAccept  = "racer.challenge.accept"
	opChalList    = "racer.challenge.list"
	opLeaderboard = "racer.leaderboard"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// lockedRand serializes draws from a non-thread-safe rand source.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *lockedRand) intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// ServiceConfig describes the dependencies of the racing service.
type ServiceConfig struct {
	Database *gorm.DB
	// Rand seeds race outcomes. Inject a fixed-seed source for reproducible
	// traces; nil gets a time-seeded one.
	Rand   *rand.Rand
	Logger *zap.Logger
}

// Service implements the racing mini-game: currency ledger, energy gate,
// garage, race resolution and the PvP challenge lifecycle.
type Service struct {
	db     *gorm.DB
	rng    *lockedRand
	logger *zap.Logger
}

// NewService constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		rng:    &lockedRand{rng: rng},
		logger: logger,
	}, nil
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("racer service error", attrs...)
}
