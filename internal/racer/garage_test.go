package racer

import (
	"context"
	"errors"
	"testing"
)

func TestBuyAddsVehicleAndDebitsPrice(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, 1)
	ctx := context.Background()

	if err := service.Credit(ctx, 100, 300, "seed"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	outcome, err := service.Buy(ctx, 100, "sedan", 250)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if outcome.Balance != 50 {
		t.Fatalf("expected balance 50 after purchase, got %d", outcome.Balance)
	}
	if len(outcome.Garage) != 1 || outcome.Garage[0].VehicleID != "sedan" || outcome.Garage[0].Level != 1 {
		t.Fatalf("unexpected garage: %+v", outcome.Garage)
	}
}

func TestBuyWithEmptyBalanceLeavesStateUntouched(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, 1)
	ctx := context.Background()

	_, err := service.Buy(ctx, 100, "sedan", 250)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	garage, err := service.Garage(ctx, 100)
	if err != nil {
		t.Fatalf("garage read failed: %v", err)
	}
	if len(garage) != 0 {
		t.Fatalf("failed purchase must not add a vehicle: %+v", garage)
	}
	balance, err := service.Balance(ctx, 100)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("failed purchase must not move the balance, got %d", balance)
	}
}

func TestBuyTwiceFailsWithAlreadyOwned(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, 1)
	ctx := context.Background()

	if err := service.Credit(ctx, 100, 1000, "seed"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := service.Buy(ctx, 100, "sedan", 250); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}

	_, err := service.Buy(ctx, 100, "sedan", 250)
	if !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}
}

func TestUpgradeCostScalesWithLevel(t *testing.T) {
	cases := []struct {
		level int
		want  int
	}{
		{level: 1, want: 500},
		{level: 2, want: 700},
		{level: 5, want: 1300},
	}
	for _, testCase := range cases {
		if got := UpgradeCost(testCase.level); got != testCase.want {
			t.Fatalf("UpgradeCost(%d) = %d, want %d", testCase.level, got, testCase.want)
		}
	}
}

func TestUpgradeRaisesLevelAndDebitsCost(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, 1)
	ctx := context.Background()

	if err := service.Credit(ctx, 100, 1000, "seed"); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := service.Buy(ctx, 100, "sedan", 250); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	outcome, err := service.Upgrade(ctx, 100, "sedan")
	if err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	if outcome.Level != 2 || outcome.Cost != 500 || outcome.Balance != 250 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestUpgradeUnknownVehicleFailsWithNotOwned(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db, 1)

	_, err := service.Upgrade(context.Background(), 100, "sedan")
	if !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}
