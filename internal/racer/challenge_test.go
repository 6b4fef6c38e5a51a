package racer

import (
	"context"
	"errors"
	"testing"
)

const (
	challengerID = int64(100)
	challengedID = int64(200)
)

func seedDuel(t *testing.T, service *Service) int64 {
	t.Helper()
	ctx := context.Background()
	err := service.db.Create(&GarageEntry{PlayerID: challengerID, VehicleID: "sedan", Level: 2}).Error
	if err != nil {
		t.Fatalf("seed challenger garage failed: %v", err)
	}
	err = service.db.Create(&GarageEntry{PlayerID: challengedID, VehicleID: "hatch", Level: 1}).Error
	if err != nil {
		t.Fatalf("seed challenged garage failed: %v", err)
	}
	err = service.db.Create(&GarageEntry{PlayerID: challengedID, VehicleID: "sport", Level: 3}).Error
	if err != nil {
		t.Fatalf("seed challenged garage failed: %v", err)
	}

	challengeID, err := service.CreateChallenge(ctx, challengerID, challengedID, "sedan")
	if err != nil {
		t.Fatalf("create challenge failed: %v", err)
	}
	return challengeID
}

func TestCreateChallengeRequiresOwnedVehicle(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)

	_, err := service.CreateChallenge(context.Background(), challengerID, challengedID, "sedan")
	if !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}

func TestDeclineChallengeOnlyByChallenged(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	challengeID := seedDuel(t, service)
	ctx := context.Background()

	err := service.DeclineChallenge(ctx, challengerID, challengeID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the challenger, got %v", err)
	}

	if err := service.DeclineChallenge(ctx, challengedID, challengeID); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	var challenge Challenge
	if err := service.db.Take(&challenge, challengeID).Error; err != nil {
		t.Fatalf("load challenge failed: %v", err)
	}
	if challenge.Status != StatusDeclined {
		t.Fatalf("expected declined, got %q", challenge.Status)
	}

	// a settled challenge admits no further transition.
	err = service.DeclineChallenge(ctx, challengedID, challengeID)
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState on repeat decline, got %v", err)
	}
	err = service.CancelChallenge(ctx, challengerID, challengeID)
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState on cancel after decline, got %v", err)
	}
}

func TestCancelChallengeOnlyByChallenger(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	challengeID := seedDuel(t, service)
	ctx := context.Background()

	err := service.CancelChallenge(ctx, challengedID, challengeID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the challenged, got %v", err)
	}
	if err := service.CancelChallenge(ctx, challengerID, challengeID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	var challenge Challenge
	if err := service.db.Take(&challenge, challengeID).Error; err != nil {
		t.Fatalf("load challenge failed: %v", err)
	}
	if challenge.Status != StatusCanceled {
		t.Fatalf("expected canceled, got %q", challenge.Status)
	}
}

func TestAcceptChallengeSettlesBothSides(t *testing.T) {
	service := newTestService(t, openTestDB(t), 9)
	challengeID := seedDuel(t, service)
	ctx := context.Background()

	outcome, err := service.AcceptChallenge(ctx, challengedID, challengeID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if outcome.Challenger.PlayerID != challengerID || outcome.Challenged.PlayerID != challengedID {
		t.Fatalf("unexpected sides: %+v", outcome)
	}
	if outcome.Challenger.VehicleID != "sedan" {
		t.Fatalf("challenger must race the challenge vehicle, got %q", outcome.Challenger.VehicleID)
	}
	if outcome.Challenged.VehicleID != "sport" {
		t.Fatalf("challenged must race their strongest vehicle, got %q", outcome.Challenged.VehicleID)
	}
	if outcome.Challenger.Energy != 4 || outcome.Challenged.Energy != 4 {
		t.Fatalf("each side must spend one energy: %d %d", outcome.Challenger.Energy, outcome.Challenged.Energy)
	}
	if len(outcome.Replay) != 60 {
		t.Fatalf("expected a 60-step replay, got %d", len(outcome.Replay))
	}

	switch outcome.Challenger.Result {
	case ResultWin:
		if outcome.Challenged.Result != ResultLose {
			t.Fatalf("results must mirror: %q vs %q", outcome.Challenger.Result, outcome.Challenged.Result)
		}
	case ResultLose:
		if outcome.Challenged.Result != ResultWin {
			t.Fatalf("results must mirror: %q vs %q", outcome.Challenger.Result, outcome.Challenged.Result)
		}
	case ResultDraw:
		if outcome.Challenged.Result != ResultDraw {
			t.Fatalf("results must mirror: %q vs %q", outcome.Challenger.Result, outcome.Challenged.Result)
		}
	default:
		t.Fatalf("unexpected result %q", outcome.Challenger.Result)
	}

	var records []RaceRecord
	if err := service.db.Order("tg_id").Find(&records).Error; err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two mirrored records, got %d", len(records))
	}
	if records[0].Replay != records[1].Replay {
		t.Fatalf("mirrored records must share the replay")
	}

	var challenge Challenge
	if err := service.db.Take(&challenge, challengeID).Error; err != nil {
		t.Fatalf("load challenge failed: %v", err)
	}
	if challenge.Status != StatusDone {
		t.Fatalf("expected done, got %q", challenge.Status)
	}

	// exactly one terminal transition: a second accept must fail.
	_, err = service.AcceptChallenge(ctx, challengedID, challengeID)
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState on repeat accept, got %v", err)
	}
}

func TestAcceptChallengeOnlyByChallenged(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	challengeID := seedDuel(t, service)

	_, err := service.AcceptChallenge(context.Background(), challengerID, challengeID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAcceptChallengeWithDrainedPartyLeavesStateUntouched(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	challengeID := seedDuel(t, service)
	ctx := context.Background()

	if err := service.ConsumeEnergy(ctx, challengerID, 5); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	_, err := service.AcceptChallenge(ctx, challengedID, challengeID)
	var detailed *InsufficientEnergyError
	if !errors.As(err, &detailed) {
		t.Fatalf("expected detailed energy error, got %v", err)
	}
	if detailed.Energy != 0 || detailed.OpponentEnergy != 5 {
		t.Fatalf("error must report both sides: %+v", detailed)
	}

	challengedEnergy, err := service.EnergyOf(ctx, challengedID)
	if err != nil {
		t.Fatalf("energy read failed: %v", err)
	}
	if challengedEnergy != 5 {
		t.Fatalf("failed accept must not consume energy, got %d", challengedEnergy)
	}
	var challenge Challenge
	if err := service.db.Take(&challenge, challengeID).Error; err != nil {
		t.Fatalf("load challenge failed: %v", err)
	}
	if challenge.Status != StatusPending {
		t.Fatalf("challenge must stay pending, got %q", challenge.Status)
	}
}

func TestAcceptChallengeWithEmptyGarageFails(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	ctx := context.Background()

	err := service.db.Create(&GarageEntry{PlayerID: challengerID, VehicleID: "sedan", Level: 1}).Error
	if err != nil {
		t.Fatalf("seed garage failed: %v", err)
	}
	challengeID, err := service.CreateChallenge(ctx, challengerID, challengedID, "sedan")
	if err != nil {
		t.Fatalf("create challenge failed: %v", err)
	}

	_, err = service.AcceptChallenge(ctx, challengedID, challengeID)
	if !errors.Is(err, ErrNoVehicle) {
		t.Fatalf("expected ErrNoVehicle, got %v", err)
	}
}

func TestChallengeActionsOnUnknownIDFail(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	ctx := context.Background()

	if err := service.DeclineChallenge(ctx, challengedID, 999); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	if _, err := service.AcceptChallenge(ctx, challengedID, 999); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestListChallengesGroupsByDirectionAndState(t *testing.T) {
	service := newTestService(t, openTestDB(t), 1)
	ctx := context.Background()

	err := service.db.Create(&GarageEntry{PlayerID: challengerID, VehicleID: "sedan", Level: 1}).Error
	if err != nil {
		t.Fatalf("seed garage failed: %v", err)
	}
	outgoingID, err := service.CreateChallenge(ctx, challengerID, challengedID, "sedan")
	if err != nil {
		t.Fatalf("create outgoing failed: %v", err)
	}
	settledID, err := service.CreateChallenge(ctx, challengerID, challengedID, "sedan")
	if err != nil {
		t.Fatalf("create settled failed: %v", err)
	}
	if err := service.CancelChallenge(ctx, challengerID, settledID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	list, err := service.ListChallenges(ctx, challengerID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list.Incoming) != 0 {
		t.Fatalf("expected no incoming challenges, got %d", len(list.Incoming))
	}
	if len(list.Outgoing) != 1 || list.Outgoing[0].ID != outgoingID {
		t.Fatalf("unexpected outgoing: %+v", list.Outgoing)
	}
	if len(list.History) != 1 || list.History[0].ID != settledID {
		t.Fatalf("unexpected history: %+v", list.History)
	}

	list, err = service.ListChallenges(ctx, challengedID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list.Incoming) != 1 || list.Incoming[0].ID != outgoingID {
		t.Fatalf("unexpected incoming: %+v", list.Incoming)
	}
}
