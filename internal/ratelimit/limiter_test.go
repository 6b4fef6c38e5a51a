package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestLimiter(t *testing.T, now *time.Time) *Limiter {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Window{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	limiter, err := NewLimiter(LimiterConfig{
		Database: db,
		Clock:    func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return limiter
}

func TestConsumeCountsDownToZero(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		outcome, err := limiter.Consume(ctx, "submit:100", 3, time.Hour)
		if err != nil {
			t.Fatalf("consume %d failed: %v", attempt, err)
		}
		if !outcome.Allowed {
			t.Fatalf("attempt %d should be admitted", attempt)
		}
		if outcome.Remaining != 3-attempt {
			t.Fatalf("attempt %d remaining = %d, want %d", attempt, outcome.Remaining, 3-attempt)
		}
	}

	outcome, err := limiter.Consume(ctx, "submit:100", 3, time.Hour)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if outcome.Allowed {
		t.Fatalf("fourth attempt must be rejected")
	}
}

func TestConsumeResetsAfterWindowElapses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	if _, err := limiter.Consume(ctx, "submit:100", 1, time.Hour); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	outcome, err := limiter.Consume(ctx, "submit:100", 1, time.Hour)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if outcome.Allowed {
		t.Fatalf("second attempt inside the window must be rejected")
	}

	now = now.Add(time.Hour + time.Second)
	outcome, err = limiter.Consume(ctx, "submit:100", 1, time.Hour)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if !outcome.Allowed {
		t.Fatalf("elapsed window must admit again")
	}
}

func TestConsumeDailyBucketsByUTCDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	limiter := newTestLimiter(t, &now)
	ctx := context.Background()

	if _, err := limiter.ConsumeDaily(ctx, "submit:100", 1); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	outcome, err := limiter.ConsumeDaily(ctx, "submit:100", 1)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if outcome.Allowed {
		t.Fatalf("same-day repeat must be rejected")
	}

	// the next day keys into a fresh bucket even before 24h elapse.
	now = now.Add(2 * time.Minute)
	outcome, err = limiter.ConsumeDaily(ctx, "submit:100", 1)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if !outcome.Allowed {
		t.Fatalf("new UTC date must open a new quota")
	}
}
