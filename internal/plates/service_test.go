package plates

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/plateworks/platespot/internal/players"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = db.AutoMigrate(&players.Player{}, &Registration{}, &Submission{}, &BonusEntry{}, &SpottedLogEntry{})
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{Database: db, GameID: 1, SubmissionPoints: 10, SpottedBonus: 5})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestRegisterIsIdempotentPerPlayer(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	created, err := service.Register(ctx, 100, "ab 12-34")
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first register to create a row")
	}

	created, err = service.Register(ctx, 100, "AB1234")
	if err != nil {
		t.Fatalf("repeat register failed: %v", err)
	}
	if created {
		t.Fatalf("expected repeat register to be a no-op")
	}

	// a different player may claim the same plate text.
	created, err = service.Register(ctx, 200, "AB1234")
	if err != nil {
		t.Fatalf("second owner register failed: %v", err)
	}
	if !created {
		t.Fatalf("expected second owner to register the shared plate")
	}

	var count int64
	if err := db.Model(&Registration{}).Where("plate_text = ?", "AB1234").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 registrations, got %d", count)
	}
}

func TestRecordDuplicateReportsRejectedWithoutError(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	first, err := service.Record(ctx, 100, "AB1234", "photo-1")
	if err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if !first.Accepted || first.SubmissionID == 0 || first.Points != 10 {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	second, err := service.Record(ctx, 100, "ab 12 34", "photo-2")
	if err != nil {
		t.Fatalf("duplicate record returned error: %v", err)
	}
	if second.Accepted {
		t.Fatalf("expected duplicate to be rejected")
	}

	var count int64
	if err := db.Model(&Submission{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single submission row, got %d", count)
	}
}

func TestAwardSpottedCreditsEveryOwnerExceptSubmitter(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	for _, ownerID := range []int64{200, 300} {
		if _, err := service.Register(ctx, ownerID, "AB1234"); err != nil {
			t.Fatalf("register owner %d failed: %v", ownerID, err)
		}
	}
	// the submitter also owns the plate and must not credit themselves.
	if _, err := service.Register(ctx, 100, "AB1234"); err != nil {
		t.Fatalf("register submitter failed: %v", err)
	}

	outcome, err := service.Record(ctx, 100, "AB1234", "photo-1")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if len(outcome.Awards) != 2 {
		t.Fatalf("expected 2 awards, got %d", len(outcome.Awards))
	}
	for _, award := range outcome.Awards {
		if award.OwnerID == 100 {
			t.Fatalf("submitter must not receive a spotted award")
		}
		if award.Amount != 5 {
			t.Fatalf("unexpected award amount: %d", award.Amount)
		}
	}

	var bonusCount int64
	if err := db.Model(&BonusEntry{}).Where("kind = ?", BonusKindSpotted).Count(&bonusCount).Error; err != nil {
		t.Fatalf("bonus count failed: %v", err)
	}
	if bonusCount != 2 {
		t.Fatalf("expected 2 spotted bonuses, got %d", bonusCount)
	}
}

func TestAwardSpottedIsIdempotentPerSubmission(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	if _, err := service.Register(ctx, 200, "AB1234"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	outcome, err := service.Record(ctx, 100, "AB1234", "photo-1")
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if len(outcome.Awards) != 1 {
		t.Fatalf("expected one award, got %d", len(outcome.Awards))
	}

	// replaying attribution for the same submission credits nobody again.
	repeat, err := service.AwardSpotted(ctx, Plate("AB1234"), outcome.SubmissionID, 100)
	if err != nil {
		t.Fatalf("repeat attribution failed: %v", err)
	}
	if len(repeat) != 0 {
		t.Fatalf("expected no awards on replay, got %d", len(repeat))
	}

	var bonusCount int64
	if err := db.Model(&BonusEntry{}).Count(&bonusCount).Error; err != nil {
		t.Fatalf("bonus count failed: %v", err)
	}
	if bonusCount != 1 {
		t.Fatalf("expected exactly one bonus row, got %d", bonusCount)
	}
}

func TestRecognitionPointsSumsSubmissionsAndBonuses(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	if _, err := service.Record(ctx, 100, "AB1234", ""); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := service.Record(ctx, 100, "CD5678", ""); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := service.GrantBonus(ctx, 100, 7, "event prize"); err != nil {
		t.Fatalf("grant bonus failed: %v", err)
	}

	stats, err := service.RecognitionPoints(ctx, 100)
	if err != nil {
		t.Fatalf("recognition points failed: %v", err)
	}
	if stats.TotalPoints != 27 {
		t.Fatalf("expected 27 points, got %d", stats.TotalPoints)
	}
	if stats.UniquePlates != 2 {
		t.Fatalf("expected 2 unique plates, got %d", stats.UniquePlates)
	}
}

func TestLeaderboardOrdersByCombinedPoints(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	for _, player := range []players.Player{
		{ID: 100, Username: "alpha"},
		{ID: 200, Username: "beta"},
	} {
		if err := db.Create(&player).Error; err != nil {
			t.Fatalf("seed player failed: %v", err)
		}
	}
	if _, err := service.Record(ctx, 100, "AB1234", ""); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := service.Record(ctx, 200, "CD5678", ""); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := service.GrantBonus(ctx, 200, 15, "event prize"); err != nil {
		t.Fatalf("grant bonus failed: %v", err)
	}

	rows, err := service.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].PlayerID != 200 || rows[0].TotalPoints != 25 {
		t.Fatalf("unexpected top row: %+v", rows[0])
	}
	if rows[1].PlayerID != 100 || rows[1].TotalPoints != 10 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestSearchPlayersByNameAttachesPlates(t *testing.T) {
	db := openTestDB(t)
	service := newTestService(t, db)
	ctx := context.Background()

	if err := db.Create(&players.Player{ID: 100, Username: "alpha", FirstName: "Alice"}).Error; err != nil {
		t.Fatalf("seed player failed: %v", err)
	}
	if _, err := service.Register(ctx, 100, "AB1234"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	results, err := service.SearchPlayers(ctx, "alph", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].PlayerID != 100 || len(results[0].Plates) != 1 || results[0].Plates[0] != "AB1234" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}
