package racer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateworks/platespot/internal/notify"
)

const notifyBatchSize = 20

// ChallengeNotifier polls for pending challenges whose target has not been
// told yet and delivers a single message per challenge. The notified flag is
// flipped only after a confirmed send, so a failed delivery is retried on
// the next poll (at-least-once-suppressed, not exactly-once).
type ChallengeNotifier struct {
	db       *gorm.DB
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewChallengeNotifier constructs the poller.
func NewChallengeNotifier(db *gorm.DB, notifier notify.Notifier, logger *zap.Logger) (*ChallengeNotifier, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &ChallengeNotifier{db: db, notifier: notifier, logger: logger}, nil
}

// Run performs one poll cycle. Safe to stop between cycles: the flag flips
// only after the send succeeds.
func (n *ChallengeNotifier) Run(ctx context.Context) {
	var pending []Challenge
	err := n.db.WithContext(ctx).
		Where("status = ? AND notified = ?", StatusPending, false).
		Order("id ASC").
		Limit(notifyBatchSize).
		Find(&pending).Error
	if err != nil {
		n.logger.Error("challenge notifier poll failed", zap.Error(err))
		return
	}

	for _, challenge := range pending {
		text := fmt.Sprintf("You have been challenged to a duel by player %d (#%d)!",
			challenge.ChallengerID, challenge.ID)
		if err := n.notifier.Send(ctx, challenge.ChallengedID, text); err != nil {
			n.logger.Warn("challenge notification failed",
				zap.Int64("challenge_id", challenge.ID),
				zap.Int64("player_id", challenge.ChallengedID),
				zap.Error(err))
			continue
		}
		err := n.db.WithContext(ctx).
			Model(&Challenge{}).
			Where("id = ?", challenge.ID).
			Update("notified", true).Error
		if err != nil {
			n.logger.Error("challenge notified flag update failed",
				zap.Int64("challenge_id", challenge.ID),
				zap.Error(err))
		}
	}
}
