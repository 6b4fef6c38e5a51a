package racer

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateChallenge proposes a duel. The challenger must own the vehicle they
// intend to race with.
func (s *Service) CreateChallenge(ctx context.Context, challengerID, challengedID int64, vehicleID string) (int64, error) {
	if challengedID <= 0 || vehicleID == "" {
		return 0, newServiceError(opChalCreate, "bad_input", errors.New("challenged id and vehicle required"))
	}

	var challengeID int64
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned GarageEntry
		err := tx.Where("tg_id = ? AND car_id = ?", challengerID, vehicleID).Take(&owned).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotOwned
		}
		if err != nil {
			return newServiceError(opChalCreate, "lookup_failed", err)
		}

		challenge := Challenge{
			ChallengerID: challengerID,
			ChallengedID: challengedID,
			VehicleID:    vehicleID,
			Status:       StatusPending,
		}
		if err := tx.Create(&challenge).Error; err != nil {
			return newServiceError(opChalCreate, "insert_failed", err)
		}
		challengeID = challenge.ID
		return nil
	})
	if txErr != nil {
		if !errorsIsDomain(txErr) {
			s.logError(opChalCreate, txErr, zap.Int64("challenger_id", challengerID))
		}
		return 0, txErr
	}
	return challengeID, nil
}

// DeclineChallenge moves a pending challenge to declined. Only the
// challenged party may decline.
func (s *Service) DeclineChallenge(ctx context.Context, actorID, challengeID int64) error {
	return s.settleChallenge(ctx, opChalDecline, actorID, challengeID, StatusDeclined, false)
}

// CancelChallenge moves a pending challenge to canceled. Only the
// challenger may cancel.
func (s *Service) CancelChallenge(ctx context.Context, actorID, challengeID int64) error {
	return s.settleChallenge(ctx, opChalCancel, actorID, challengeID, StatusCanceled, true)
}

func (s *Service) settleChallenge(ctx context.Context, operation string, actorID, challengeID int64, target string, byChallenger bool) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenge, err := loadChallenge(tx, operation, challengeID)
		if err != nil {
			return err
		}
		party := challenge.ChallengedID
		if byChallenger {
			party = challenge.ChallengerID
		}
		if party != actorID {
			return ErrForbidden
		}
		if challenge.Status != StatusPending {
			return ErrBadState
		}
		err = tx.Model(&Challenge{}).Where("id = ?", challengeID).Update("status", target).Error
		if err != nil {
			return newServiceError(operation, "update_failed", err)
		}
		return nil
	})
	if txErr != nil && !errorsIsDomain(txErr) {
		s.logError(operation, txErr, zap.Int64("challenge_id", challengeID))
	}
	return txErr
}

func loadChallenge(db *gorm.DB, operation string, challengeID int64) (Challenge, error) {
	var challenge Challenge
	err := db.Where("id = ?", challengeID).Take(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, newServiceError(operation, "lookup_failed", err)
	}
	return challenge, nil
}

// DuelSide is one participant's settlement in an accepted challenge.
type DuelSide struct {
	PlayerID    int64
	VehicleID   string
	Result      string
	PointsDelta int
	Prize       int
	Balance     int
	Energy      int
}

// DuelOutcome is the settlement of an accepted challenge.
type DuelOutcome struct {
	ChallengeID int64
	Challenger  DuelSide
	Challenged  DuelSide
	Replay      []TraceStep
}

// AcceptChallenge resolves a pending duel. Only the challenged party may
// accept. Both parties need one energy (checked before any mutation; the
// error names both values). The challenger races the challenge vehicle,
// the challenged their highest-level vehicle. Energy consumption, the race,
// both rewards, both race records and the terminal transition commit in one
// transaction, so a duel can never be half applied.
func (s *Service) AcceptChallenge(ctx context.Context, actorID, challengeID int64) (DuelOutcome, error) {
	var outcome DuelOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenge, err := loadChallenge(tx, opChalAccept, challengeID)
		if err != nil {
			return err
		}
		if challenge.ChallengedID != actorID {
			return ErrForbidden
		}
		if challenge.Status != StatusPending {
			return ErrBadState
		}

		challengerEnergy, err := energyOf(tx, challenge.ChallengerID)
		if err != nil {
			return err
		}
		challengedEnergy, err := energyOf(tx, challenge.ChallengedID)
		if err != nil {
			return err
		}
		if challengerEnergy < raceEnergyCost || challengedEnergy < raceEnergyCost {
			return &InsufficientEnergyError{Energy: challengerEnergy, OpponentEnergy: challengedEnergy}
		}

		var challengerVehicle GarageEntry
		err = tx.Where("tg_id = ? AND car_id = ?", challenge.ChallengerID, challenge.VehicleID).
			Take(&challengerVehicle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotOwned
		}
		if err != nil {
			return newServiceError(opChalAccept, "challenger_vehicle_failed", err)
		}

		var challengedVehicle GarageEntry
		err = tx.Where("tg_id = ?", challenge.ChallengedID).
			Order("level DESC").
			First(&challengedVehicle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoVehicle
		}
		if err != nil {
			return newServiceError(opChalAccept, "challenged_vehicle_failed", err)
		}

		if err := consumeEnergy(tx, challenge.ChallengerID, raceEnergyCost); err != nil {
			return err
		}
		if err := consumeEnergy(tx, challenge.ChallengedID, raceEnergyCost); err != nil {
			return err
		}

		result, trace := s.resolveRace(
			VehiclePower(challengerVehicle.Level),
			VehiclePower(challengedVehicle.Level),
		)
		challengerReward := pvpRewards[result]
		challengedReward := pvpRewards[mirrorResult(result)]

		if challengerReward.Prize > 0 {
			if err := credit(tx, challenge.ChallengerID, challengerReward.Prize, "pvp_reward"); err != nil {
				return err
			}
		}
		if challengedReward.Prize > 0 {
			if err := credit(tx, challenge.ChallengedID, challengedReward.Prize, "pvp_reward"); err != nil {
				return err
			}
		}

		replayJSON, err := json.Marshal(trace)
		if err != nil {
			return newServiceError(opChalAccept, "replay_encode_failed", err)
		}
		records := []RaceRecord{
			{
				PlayerID:    challenge.ChallengerID,
				OpponentID:  &challenge.ChallengedID,
				VehicleID:   challenge.VehicleID,
				Result:      result,
				PointsDelta: challengerReward.PointsDelta,
				Replay:      string(replayJSON),
			},
			{
				PlayerID:    challenge.ChallengedID,
				OpponentID:  &challenge.ChallengerID,
				VehicleID:   challengedVehicle.VehicleID,
				Result:      mirrorResult(result),
				PointsDelta: challengedReward.PointsDelta,
				Replay:      string(replayJSON),
			},
		}
		if err := tx.Create(&records).Error; err != nil {
			return newServiceError(opChalAccept, "record_insert_failed", err)
		}

		err = tx.Model(&Challenge{}).Where("id = ?", challengeID).Update("status", StatusDone).Error
		if err != nil {
			return newServiceError(opChalAccept, "update_failed", err)
		}

		challengerSide, err := duelSide(tx, challenge.ChallengerID, challenge.VehicleID, result, challengerReward)
		if err != nil {
			return err
		}
		challengedSide, err := duelSide(tx, challenge.ChallengedID, challengedVehicle.VehicleID, mirrorResult(result), challengedReward)
		if err != nil {
			return err
		}

		outcome = DuelOutcome{
			ChallengeID: challengeID,
			Challenger:  challengerSide,
			Challenged:  challengedSide,
			Replay:      trace,
		}
		return nil
	})
	if txErr != nil {
		if !errorsIsDomain(txErr) {
			s.logError(opChalAccept, txErr, zap.Int64("challenge_id", challengeID))
		}
		return DuelOutcome{}, txErr
	}
	return outcome, nil
}

func duelSide(tx *gorm.DB, playerID int64, vehicleID, result string, reward Reward) (DuelSide, error) {
	balance, err := balanceOf(tx, playerID)
	if err != nil {
		return DuelSide{}, err
	}
	energy, err := energyOf(tx, playerID)
	if err != nil {
		return DuelSide{}, err
	}
	return DuelSide{
		PlayerID:    playerID,
		VehicleID:   vehicleID,
		Result:      result,
		PointsDelta: reward.PointsDelta,
		Prize:       reward.Prize,
		Balance:     balance,
		Energy:      energy,
	}, nil
}

func mirrorResult(result string) string {
	switch result {
	case ResultWin:
		return ResultLose
	case ResultLose:
		return ResultWin
	default:
		return ResultDraw
	}
}

// ChallengeList groups a player's challenges by direction and state.
type ChallengeList struct {
	Incoming []Challenge
	Outgoing []Challenge
	History  []Challenge
}

// ListChallenges returns pending challenges addressed to and sent by the
// player plus their settled history, newest first, capped at 50 each.
func (s *Service) ListChallenges(ctx context.Context, playerID int64) (ChallengeList, error) {
	var list ChallengeList
	db := s.db.WithContext(ctx)

	err := db.Where("to_tg = ? AND status = ?", playerID, StatusPending).
		Order("id DESC").Limit(50).Find(&list.Incoming).Error
	if err != nil {
		return ChallengeList{}, newServiceError(opChalList, "incoming_failed", err)
	}
	err = db.Where("from_tg = ? AND status = ?", playerID, StatusPending).
		Order("id DESC").Limit(50).Find(&list.Outgoing).Error
	if err != nil {
		return ChallengeList{}, newServiceError(opChalList, "outgoing_failed", err)
	}
	err = db.Where("(from_tg = ? OR to_tg = ?) AND status != ?", playerID, playerID, StatusPending).
		Order("id DESC").Limit(50).Find(&list.History).Error
	if err != nil {
		return ChallengeList{}, newServiceError(opChalList, "history_failed", err)
	}
	return list, nil
}
