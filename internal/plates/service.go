package plates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
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
	opServiceNew  = "plates.service.new"
	opRegister    = "plates.register"
	opDelete      = "plates.delete"
	opList        = "plates.list"
	opRecord      = "plates.record"
	opAward       = "plates.award_spotted"
	opBonus       = "plates.grant_bonus"
	opPoints      = "plates.recognition_points"
	opLeaderboard = "plates.leaderboard"
	opSummary     = "plates.summary"
	opSearch      = "plates.search"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of the plate game service.
type ServiceConfig struct {
	Database         *gorm.DB
	GameID           int64
	SubmissionPoints int
	SpottedBonus     int
	Logger           *zap.Logger
}

// Service implements plate registration, submission recording and spotted
// bonus attribution against a shared relational store.
type Service struct {
	db               *gorm.DB
	gameID           int64
	submissionPoints int
	spottedBonus     int
	logger           *zap.Logger
}

// NewService constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	points := cfg.SubmissionPoints
	if points <= 0 {
		points = 10
	}
	bonus := cfg.SpottedBonus
	if bonus <= 0 {
		bonus = 5
	}
	gameID := cfg.GameID
	if gameID <= 0 {
		gameID = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:               cfg.Database,
		gameID:           gameID,
		submissionPoints: points,
		spottedBonus:     bonus,
		logger:           logger,
	}, nil
}

// Register claims a plate for the player. Returns created=false when the
// player already registered that plate; this is a no-op, not an error.
func (s *Service) Register(ctx context.Context, playerID int64, rawPlate string) (bool, error) {
	plate, err := NewPlate(rawPlate)
	if err != nil {
		return false, err
	}

	created := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Registration
		err := tx.Where("tg_id = ? AND plate_text = ?", playerID, plate.String()).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRegister, "lookup_failed", err)
		}
		if err := tx.Create(&Registration{PlayerID: playerID, PlateText: plate.String()}).Error; err != nil {
			return newServiceError(opRegister, "insert_failed", err)
		}
		created = true
		return nil
	})
	if txErr != nil {
		s.logError(opRegister, txErr, zap.Int64("player_id", playerID))
		return false, txErr
	}
	return created, nil
}

// Delete removes the player's claim on a plate. Returns whether a row was removed.
func (s *Service) Delete(ctx context.Context, playerID int64, rawPlate string) (bool, error) {
	normalized := Normalize(rawPlate)
	if normalized == "" {
		return false, ErrInvalidPlate
	}
	result := s.db.WithContext(ctx).
		Where("tg_id = ? AND plate_text = ?", playerID, normalized).
		Delete(&Registration{})
	if result.Error != nil {
		s.logError(opDelete, result.Error, zap.Int64("player_id", playerID))
		return false, newServiceError(opDelete, "delete_failed", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List returns the player's registered plates, newest first.
func (s *Service) List(ctx context.Context, playerID int64) ([]string, error) {
	var rows []Registration
	if err := s.db.WithContext(ctx).
		Where("tg_id = ?", playerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		s.logError(opList, err, zap.Int64("player_id", playerID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.PlateText)
	}
	return out, nil
}

// RecordOutcome reports what happened to one submission attempt.
type RecordOutcome struct {
	Accepted     bool
	SubmissionID int64
	Plate        string
	Points       int
	Awards       []SpottedAward
}

// Record stores a recognized-plate event. A repeat of the same plate by the
// same player in the same game is reported as Accepted=false without error.
// On success the spotted bonus attribution runs in the same call.
func (s *Service) Record(ctx context.Context, playerID int64, rawPlate, mediaRef string) (RecordOutcome, error) {
	plate, err := NewPlate(rawPlate)
	if err != nil {
		return RecordOutcome{}, err
	}

	outcome := RecordOutcome{Plate: plate.String()}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Submission
		err := tx.Where("tg_id = ? AND game_id = ? AND plate_text = ?", playerID, s.gameID, plate.String()).
			Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecord, "lookup_failed", err)
		}
		submission := Submission{
			PlayerID:  playerID,
			GameID:    s.gameID,
			MediaRef:  mediaRef,
			PlateText: plate.String(),
			IsValid:   true,
			Points:    s.submissionPoints,
		}
		if err := tx.Create(&submission).Error; err != nil {
			return newServiceError(opRecord, "insert_failed", err)
		}
		outcome.Accepted = true
		outcome.SubmissionID = submission.ID
		outcome.Points = submission.Points
		return nil
	})
	if txErr != nil {
		s.logError(opRecord, txErr, zap.Int64("player_id", playerID), zap.String("plate", plate.String()))
		return RecordOutcome{}, txErr
	}

	if outcome.Accepted {
		awards, err := s.AwardSpotted(ctx, plate, outcome.SubmissionID, playerID)
		if err != nil {
			return RecordOutcome{}, err
		}
		outcome.Awards = awards
	}
	return outcome, nil
}

// SpottedAward records one owner credit produced by a submission.
type SpottedAward struct {
	OwnerID      int64
	Plate        string
	SubmissionID int64
	Amount       int
}

// AwardSpotted credits every distinct player who registered the plate,
// excluding the submitter, at most once per (owner, submission). The guard
// row and the bonus are inserted in one transaction per owner, so a retry
// after any partial failure can never double-credit.
func (s *Service) AwardSpotted(ctx context.Context, plate Plate, submissionID int64, submitterID int64) ([]SpottedAward, error) {
	var ownerIDs []int64
	if err := s.db.WithContext(ctx).
		Model(&Registration{}).
		Distinct("tg_id").
		Where("plate_text = ?", plate.String()).
		Pluck("tg_id", &ownerIDs).Error; err != nil {
		s.logError(opAward, err, zap.String("plate", plate.String()))
		return nil, newServiceError(opAward, "owner_lookup_failed", err)
	}

	var awards []SpottedAward
	for _, ownerID := range ownerIDs {
		if ownerID == submitterID {
			continue
		}

		credited := false
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var guard SpottedLogEntry
			err := tx.Where("owner_tg_id = ? AND submission_id = ?", ownerID, submissionID).
				Take(&guard).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opAward, "guard_lookup_failed", err)
			}
			if err := tx.Create(&SpottedLogEntry{
				SubmissionID: submissionID,
				OwnerID:      ownerID,
				PlateText:    plate.String(),
			}).Error; err != nil {
				return newServiceError(opAward, "guard_insert_failed", err)
			}
			if err := tx.Create(&BonusEntry{
				PlayerID: ownerID,
				GameID:   s.gameID,
				Kind:     BonusKindSpotted,
				Amount:   s.spottedBonus,
				Reason:   fmt.Sprintf("spotted:%s:%d", plate.String(), submissionID),
			}).Error; err != nil {
				return newServiceError(opAward, "bonus_insert_failed", err)
			}
			credited = true
			return nil
		})
		if txErr != nil {
			s.logError(opAward, txErr,
				zap.Int64("owner_id", ownerID),
				zap.Int64("submission_id", submissionID))
			return awards, txErr
		}
		if credited {
			awards = append(awards, SpottedAward{
				OwnerID:      ownerID,
				Plate:        plate.String(),
				SubmissionID: submissionID,
				Amount:       s.spottedBonus,
			})
		}
	}
	return awards, nil
}

// GrantBonus appends a manual administrative bonus entry. Amount is signed.
func (s *Service) GrantBonus(ctx context.Context, playerID int64, amount int, reason string) error {
	if playerID <= 0 || amount == 0 {
		return newServiceError(opBonus, "bad_input", fmt.Errorf("player %d amount %d", playerID, amount))
	}
	if len(reason) > 200 {
		reason = reason[:200]
	}
	if reason == "" {
		reason = "manual"
	}
	entry := BonusEntry{PlayerID: playerID, GameID: s.gameID, Kind: BonusKindManual, Amount: amount, Reason: reason}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opBonus, err, zap.Int64("player_id", playerID))
		return newServiceError(opBonus, "insert_failed", err)
	}
	return nil
}

// RecognitionStats aggregates a player's plate-game standing.
type RecognitionStats struct {
	TotalPoints  int
	UniquePlates int
}

// RecognitionPoints sums valid submission points and bonus amounts for the player.
func (s *Service) RecognitionPoints(ctx context.Context, playerID int64) (RecognitionStats, error) {
	var stats RecognitionStats

	var submissionPoints int
	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(points), 0)
		FROM submissions
		WHERE tg_id = ? AND game_id = ? AND is_valid`, playerID, s.gameID).
		Scan(&submissionPoints).Error
	if err != nil {
		s.logError(opPoints, err, zap.Int64("player_id", playerID))
		return RecognitionStats{}, newServiceError(opPoints, "submission_sum_failed", err)
	}

	var bonusPoints int
	err = s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0)
		FROM bonuses
		WHERE tg_id = ? AND game_id = ?`, playerID, s.gameID).
		Scan(&bonusPoints).Error
	if err != nil {
		s.logError(opPoints, err, zap.Int64("player_id", playerID))
		return RecognitionStats{}, newServiceError(opPoints, "bonus_sum_failed", err)
	}

	var uniquePlates int
	err = s.db.WithContext(ctx).Raw(`
		SELECT COUNT(DISTINCT plate_text)
		FROM submissions
		WHERE tg_id = ? AND game_id = ? AND is_valid`, playerID, s.gameID).
		Scan(&uniquePlates).Error
	if err != nil {
		s.logError(opPoints, err, zap.Int64("player_id", playerID))
		return RecognitionStats{}, newServiceError(opPoints, "unique_count_failed", err)
	}

	stats.TotalPoints = submissionPoints + bonusPoints
	stats.UniquePlates = uniquePlates
	return stats, nil
}

// LeaderboardRow is one aggregate leaderboard entry.
type LeaderboardRow struct {
	PlayerID     int64  `gorm:"column:tg_id"`
	Username     string `gorm:"column:username"`
	FirstName    string `gorm:"column:first_name"`
	LastName     string `gorm:"column:last_name"`
	TotalPoints  int    `gorm:"column:total_points"`
	UniquePlates int    `gorm:"column:unique_plates"`
}

const leaderboardQuery = `
	SELECT p.tg_id, COALESCE(p.username, '') username, COALESCE(p.first_name, '') first_name,
	       COALESCE(p.last_name, '') last_name,
	       COALESCE(s.points, 0) + COALESCE(b.amount, 0) AS total_points,
	       COALESCE(s.unique_plates, 0) AS unique_plates
	FROM players p
	LEFT JOIN (
		SELECT tg_id, SUM(points) points, COUNT(DISTINCT plate_text) unique_plates
		FROM submissions WHERE game_id = ? AND is_valid GROUP BY tg_id
	) s ON s.tg_id = p.tg_id
	LEFT JOIN (
		SELECT tg_id, SUM(amount) amount FROM bonuses WHERE game_id = ? GROUP BY tg_id
	) b ON b.tg_id = p.tg_id
	ORDER BY total_points DESC, unique_plates DESC
	LIMIT ?`

// Leaderboard returns players ordered by combined recognition points.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []LeaderboardRow
	if err := s.db.WithContext(ctx).Raw(leaderboardQuery, s.gameID, s.gameID, limit).Scan(&rows).Error; err != nil {
		s.logError(opLeaderboard, err)
		return nil, newServiceError(opLeaderboard, "query_failed", err)
	}
	return rows, nil
}

// Summary aggregates the admin dashboard counters.
type Summary struct {
	Players       int64
	Submissions   int64
	UniquePlates  int64
	Registrations int64
}

// AdminSummary counts players, submissions, distinct valid plates and registrations.
func (s *Service) AdminSummary(ctx context.Context) (Summary, error) {
	var summary Summary
	db := s.db.WithContext(ctx)

	if err := db.Table("players").Count(&summary.Players).Error; err != nil {
		return Summary{}, newServiceError(opSummary, "players_count_failed", err)
	}
	if err := db.Model(&Submission{}).Count(&summary.Submissions).Error; err != nil {
		return Summary{}, newServiceError(opSummary, "submissions_count_failed", err)
	}
	if err := db.Raw(`SELECT COUNT(DISTINCT plate_text) FROM submissions WHERE is_valid`).
		Scan(&summary.UniquePlates).Error; err != nil {
		return Summary{}, newServiceError(opSummary, "unique_count_failed", err)
	}
	if err := db.Model(&Registration{}).Count(&summary.Registrations).Error; err != nil {
		return Summary{}, newServiceError(opSummary, "registrations_count_failed", err)
	}
	return summary, nil
}

// SearchPlayers finds players by exact id or by name fragment, with their
// aggregate points and registered plates attached.
func (s *Service) SearchPlayers(ctx context.Context, query string, limit int) ([]PlayerStats, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	var rows []LeaderboardRow
	base := `
		SELECT p.tg_id, COALESCE(p.username, '') username, COALESCE(p.first_name, '') first_name,
		       COALESCE(p.last_name, '') last_name,
		       COALESCE(s.points, 0) + COALESCE(b.amount, 0) AS total_points,
		       COALESCE(s.unique_plates, 0) AS unique_plates
		FROM players p
		LEFT JOIN (
			SELECT tg_id, SUM(points) points, COUNT(DISTINCT plate_text) unique_plates
			FROM submissions WHERE game_id = ? AND is_valid GROUP BY tg_id
		) s ON s.tg_id = p.tg_id
		LEFT JOIN (
			SELECT tg_id, SUM(amount) amount FROM bonuses WHERE game_id = ? GROUP BY tg_id
		) b ON b.tg_id = p.tg_id`

	if id, ok := parseNumericQuery(query); ok {
		err := s.db.WithContext(ctx).
			Raw(base+` WHERE p.tg_id = ? LIMIT ?`, s.gameID, s.gameID, id, limit).
			Scan(&rows).Error
		if err != nil {
			return nil, newServiceError(opSearch, "id_query_failed", err)
		}
	} else {
		like := "%" + sanitizeLike(query) + "%"
		err := s.db.WithContext(ctx).
			Raw(base+`
				WHERE lower(p.username) LIKE lower(?)
				   OR lower(p.first_name) LIKE lower(?)
				   OR lower(p.last_name) LIKE lower(?)
				ORDER BY total_points DESC
				LIMIT ?`, s.gameID, s.gameID, like, like, like, limit).
			Scan(&rows).Error
		if err != nil {
			return nil, newServiceError(opSearch, "name_query_failed", err)
		}
	}

	stats := make([]PlayerStats, 0, len(rows))
	for _, row := range rows {
		plateList, err := s.List(ctx, row.PlayerID)
		if err != nil {
			return nil, err
		}
		stats = append(stats, PlayerStats{LeaderboardRow: row, Plates: plateList})
	}
	return stats, nil
}

// PlayerStats extends a leaderboard row with the player's registered plates.
type PlayerStats struct {
	LeaderboardRow
	Plates []string
}

func parseNumericQuery(query string) (int64, bool) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 5 {
		return 0, false
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func sanitizeLike(query string) string {
	replacer := strings.NewReplacer("%", "", "_", "")
	return replacer.Replace(strings.TrimSpace(query))
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("plate service error", attrs...)
}
