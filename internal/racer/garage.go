package racer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	upgradeBaseCost     = 300
	upgradeCostPerLevel = 200
)

// Garage returns the player's vehicles, strongest first.
func (s *Service) Garage(ctx context.Context, playerID int64) ([]GarageEntry, error) {
	var entries []GarageEntry
	err := s.db.WithContext(ctx).
		Where("tg_id = ?", playerID).
		Order("level DESC, car_id").
		Find(&entries).Error
	if err != nil {
		s.logError(opGarage, err, zap.Int64("player_id", playerID))
		return nil, newServiceError(opGarage, "query_failed", err)
	}
	return entries, nil
}

// BuyOutcome reports the result of a vehicle purchase.
type BuyOutcome struct {
	Balance int
	Garage  []GarageEntry
}

// Buy purchases a vehicle at level 1, debiting the price. Fails with
// ErrAlreadyOwned for a repeat purchase and ErrInsufficientFunds when the
// balance does not cover the price.
func (s *Service) Buy(ctx context.Context, playerID int64, vehicleID string, price int) (BuyOutcome, error) {
	if vehicleID == "" || price <= 0 {
		return BuyOutcome{}, newServiceError(opBuy, "bad_input", fmt.Errorf("vehicle %q price %d", vehicleID, price))
	}

	var outcome BuyOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing GarageEntry
		err := tx.Where("tg_id = ? AND car_id = ?", playerID, vehicleID).Take(&existing).Error
		if err == nil {
			return ErrAlreadyOwned
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opBuy, "lookup_failed", err)
		}
		if err := debit(tx, playerID, price, "buy_"+vehicleID); err != nil {
			return err
		}
		if err := tx.Create(&GarageEntry{PlayerID: playerID, VehicleID: vehicleID, Level: 1}).Error; err != nil {
			return newServiceError(opBuy, "insert_failed", err)
		}
		balance, err := balanceOf(tx, playerID)
		if err != nil {
			return err
		}
		outcome.Balance = balance
		return nil
	})
	if txErr != nil {
		if !errorsIsDomain(txErr) {
			s.logError(opBuy, txErr, zap.Int64("player_id", playerID), zap.String("vehicle_id", vehicleID))
		}
		return BuyOutcome{}, txErr
	}

	garage, err := s.Garage(ctx, playerID)
	if err != nil {
		return BuyOutcome{}, err
	}
	outcome.Garage = garage
	return outcome, nil
}

// UpgradeOutcome reports the result of a level upgrade.
type UpgradeOutcome struct {
	Level   int
	Cost    int
	Balance int
}

// UpgradeCost is the price of moving a vehicle off its current level.
func UpgradeCost(currentLevel int) int {
	return upgradeBaseCost + currentLevel*upgradeCostPerLevel
}

// Upgrade raises an owned vehicle one level, debiting the level-scaled cost.
func (s *Service) Upgrade(ctx context.Context, playerID int64, vehicleID string) (UpgradeOutcome, error) {
	if vehicleID == "" {
		return UpgradeOutcome{}, newServiceError(opUpgrade, "bad_input", fmt.Errorf("vehicle id required"))
	}

	var outcome UpgradeOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned GarageEntry
		err := tx.Where("tg_id = ? AND car_id = ?", playerID, vehicleID).Take(&owned).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotOwned
		}
		if err != nil {
			return newServiceError(opUpgrade, "lookup_failed", err)
		}

		cost := UpgradeCost(owned.Level)
		reason := fmt.Sprintf("upgrade_%s_L%d", vehicleID, owned.Level+1)
		if err := debit(tx, playerID, cost, reason); err != nil {
			return err
		}
		err = tx.Model(&GarageEntry{}).
			Where("tg_id = ? AND car_id = ?", playerID, vehicleID).
			Update("level", gorm.Expr("level + 1")).Error
		if err != nil {
			return newServiceError(opUpgrade, "update_failed", err)
		}

		balance, err := balanceOf(tx, playerID)
		if err != nil {
			return err
		}
		outcome = UpgradeOutcome{Level: owned.Level + 1, Cost: cost, Balance: balance}
		return nil
	})
	if txErr != nil {
		if !errorsIsDomain(txErr) {
			s.logError(opUpgrade, txErr, zap.Int64("player_id", playerID), zap.String("vehicle_id", vehicleID))
		}
		return UpgradeOutcome{}, txErr
	}
	return outcome, nil
}
