package racer

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	raceSteps      = 60
	traceStepMS    = 80
	drawMargin     = 1.0
	basePower      = 100
	powerPerLevel  = 15
	pveOpponentMin = 90
	pveOpponentVar = 40
)

// Reward pairs the point delta and currency prize for one outcome.
type Reward struct {
	PointsDelta int
	Prize       int
}

var (
	pveRewards = map[string]Reward{
		ResultWin:  {PointsDelta: 10, Prize: 50},
		ResultDraw: {PointsDelta: 2, Prize: 10},
		ResultLose: {PointsDelta: -5, Prize: 0},
	}
	pvpRewards = map[string]Reward{
		ResultWin:  {PointsDelta: 15, Prize: 70},
		ResultDraw: {PointsDelta: 3, Prize: 10},
		ResultLose: {PointsDelta: -7, Prize: 0},
	}
)

// TraceStep is one frame of the persisted replay, consumed by the client
// animation. Displayed positions are capped at 100.
type TraceStep struct {
	T int     `json:"t"`
	P float64 `json:"p"`
	A float64 `json:"a"`
}

// VehiclePower derives racing power from a vehicle level.
func VehiclePower(level int) int {
	return basePower + powerPerLevel*level
}

// resolveRace runs the fixed-length random walk. Each side advances by a
// random increment scaled by power/100; after all steps the final scores are
// compared with the draw margin. The result is from the acting side's view.
func (s *Service) resolveRace(actorPower, opponentPower int) (string, []TraceStep) {
	var actorScore, opponentScore float64
	trace := make([]TraceStep, 0, raceSteps)
	for i := 0; i < raceSteps; i++ {
		actorScore += s.rng.float64() * float64(actorPower) / 100
		opponentScore += s.rng.float64() * float64(opponentPower) / 100
		trace = append(trace, TraceStep{
			T: i * traceStepMS,
			P: capScore(actorScore),
			A: capScore(opponentScore),
		})
	}
	switch {
	case actorScore > opponentScore+drawMargin:
		return ResultWin, trace
	case opponentScore > actorScore+drawMargin:
		return ResultLose, trace
	default:
		return ResultDraw, trace
	}
}

func capScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	return score
}

// RaceOutcome is the full result of a PvE race.
type RaceOutcome struct {
	Result      string
	PointsDelta int
	Prize       int
	Replay      []TraceStep
	Balance     int
	Energy      int
}

// StartRace runs one PvE race with the given owned vehicle against a
// randomly powered opponent. Consumes one energy, credits any prize and
// writes the race record, all in a single transaction.
func (s *Service) StartRace(ctx context.Context, playerID int64, vehicleID string) (RaceOutcome, error) {
	if vehicleID == "" {
		return RaceOutcome{}, newServiceError(opRace, "bad_input", errors.New("vehicle id required"))
	}

	var outcome RaceOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned GarageEntry
		err := tx.Where("tg_id = ? AND car_id = ?", playerID, vehicleID).Take(&owned).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotOwned
		}
		if err != nil {
			return newServiceError(opRace, "lookup_failed", err)
		}

		if err := consumeEnergy(tx, playerID, raceEnergyCost); err != nil {
			return err
		}

		playerPower := VehiclePower(owned.Level)
		opponentPower := pveOpponentMin + s.rng.intn(pveOpponentVar)
		result, trace := s.resolveRace(playerPower, opponentPower)
		reward := pveRewards[result]

		if reward.Prize > 0 {
			if err := credit(tx, playerID, reward.Prize, "race_reward"); err != nil {
				return err
			}
		}

		replayJSON, err := json.Marshal(trace)
		if err != nil {
			return newServiceError(opRace, "replay_encode_failed", err)
		}
		record := RaceRecord{
			PlayerID:    playerID,
			VehicleID:   vehicleID,
			Result:      result,
			PointsDelta: reward.PointsDelta,
			Replay:      string(replayJSON),
		}
		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opRace, "record_insert_failed", err)
		}

		balance, err := balanceOf(tx, playerID)
		if err != nil {
			return err
		}
		energy, err := energyOf(tx, playerID)
		if err != nil {
			return err
		}

		outcome = RaceOutcome{
			Result:      result,
			PointsDelta: reward.PointsDelta,
			Prize:       reward.Prize,
			Replay:      trace,
			Balance:     balance,
			Energy:      energy,
		}
		return nil
	})
	if txErr != nil {
		if !errorsIsDomain(txErr) {
			s.logError(opRace, txErr, zap.Int64("player_id", playerID), zap.String("vehicle_id", vehicleID))
		}
		return RaceOutcome{}, txErr
	}
	return outcome, nil
}

// LeaderboardRow aggregates one player's race standing.
type LeaderboardRow struct {
	PlayerID int64 `gorm:"column:tg_id"`
	Points   int   `gorm:"column:pts"`
	Races    int   `gorm:"column:races"`
}

// Leaderboard sums point deltas and counts races per player.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []LeaderboardRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT tg_id, COALESCE(SUM(points_delta), 0) AS pts, COUNT(*) AS races
		FROM racer_races
		GROUP BY tg_id
		ORDER BY pts DESC, races DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		s.logError(opLeaderboard, err)
		return nil, newServiceError(opLeaderboard, "query_failed", err)
	}
	return rows, nil
}
