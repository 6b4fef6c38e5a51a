package racer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const balanceQuery = `
	SELECT COALESCE(SUM(CASE WHEN kind = 'earn' THEN amount
	                         WHEN kind = 'spend' THEN -amount
	                         ELSE 0 END), 0)
	FROM racer_tx WHERE tg_id = ?`

// Balance derives the player's currency balance by summing their transactions.
func (s *Service) Balance(ctx context.Context, playerID int64) (int, error) {
	return balanceOf(s.db.WithContext(ctx), playerID)
}

func balanceOf(db *gorm.DB, playerID int64) (int, error) {
	var balance int
	if err := db.Raw(balanceQuery, playerID).Scan(&balance).Error; err != nil {
		return 0, newServiceError(opBalance, "sum_failed", err)
	}
	return balance, nil
}

// Credit appends an earn transaction.
func (s *Service) Credit(ctx context.Context, playerID int64, amount int, reason string) error {
	if amount <= 0 {
		return newServiceError(opCredit, "bad_amount", fmt.Errorf("amount %d", amount))
	}
	err := credit(s.db.WithContext(ctx), playerID, amount, reason)
	if err != nil {
		s.logError(opCredit, err, zap.Int64("player_id", playerID))
	}
	return err
}

func credit(db *gorm.DB, playerID int64, amount int, reason string) error {
	tx := Transaction{PlayerID: playerID, Kind: TxKindEarn, Amount: amount, Reason: reason}
	if err := db.Create(&tx).Error; err != nil {
		return newServiceError(opCredit, "insert_failed", err)
	}
	return nil
}

// Debit appends a spend transaction after verifying the balance covers it.
// The check and the insert run in one transaction.
func (s *Service) Debit(ctx context.Context, playerID int64, amount int, reason string) error {
	if amount <= 0 {
		return newServiceError(opDebit, "bad_amount", fmt.Errorf("amount %d", amount))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return debit(tx, playerID, amount, reason)
	})
	if err != nil && !errorsIsDomain(err) {
		s.logError(opDebit, err, zap.Int64("player_id", playerID))
	}
	return err
}

func debit(db *gorm.DB, playerID int64, amount int, reason string) error {
	balance, err := balanceOf(db, playerID)
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrInsufficientFunds
	}
	tx := Transaction{PlayerID: playerID, Kind: TxKindSpend, Amount: amount, Reason: reason}
	if err := db.Create(&tx).Error; err != nil {
		return newServiceError(opDebit, "insert_failed", err)
	}
	return nil
}

// EnergyOf returns the player's energy, initializing it to the starting
// value on first read.
func (s *Service) EnergyOf(ctx context.Context, playerID int64) (int, error) {
	var value int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		value, err = energyOf(tx, playerID)
		return err
	})
	if err != nil {
		s.logError(opEnergy, err, zap.Int64("player_id", playerID))
		return 0, err
	}
	return value, nil
}

func energyOf(db *gorm.DB, playerID int64) (int, error) {
	row := Energy{PlayerID: playerID, Value: startEnergy}
	if err := db.Where(Energy{PlayerID: playerID}).FirstOrCreate(&row).Error; err != nil {
		return 0, newServiceError(opEnergy, "init_failed", err)
	}
	return row.Value, nil
}

// ConsumeEnergy removes n units, failing without mutation when the current
// value is below n. The stored value never drops under zero.
func (s *Service) ConsumeEnergy(ctx context.Context, playerID int64, n int) error {
	if n <= 0 {
		return newServiceError(opEnergy, "bad_amount", fmt.Errorf("amount %d", n))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return consumeEnergy(tx, playerID, n)
	})
}

func consumeEnergy(db *gorm.DB, playerID int64, n int) error {
	current, err := energyOf(db, playerID)
	if err != nil {
		return err
	}
	if current < n {
		return &InsufficientEnergyError{Energy: current, OpponentEnergy: -1}
	}
	err = db.Model(&Energy{}).
		Where("tg_id = ?", playerID).
		Update("value", gorm.Expr("MAX(0, value - ?)", n)).Error
	if err != nil {
		return newServiceError(opEnergy, "update_failed", err)
	}
	return nil
}

// errorsIsDomain reports whether err is an expected player-input condition
// rather than a store fault; those are not logged as errors.
func errorsIsDomain(err error) bool {
	for _, domain := range []error{
		ErrInsufficientFunds, ErrInsufficientEnergy, ErrAlreadyOwned, ErrNotOwned,
		ErrNoVehicle, ErrForbidden, ErrBadState, ErrChallengeNotFound,
	} {
		if errors.Is(err, domain) {
			return true
		}
	}
	return false
}
