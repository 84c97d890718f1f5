package report

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blbu/vr-therapy-server-go/internal/features/appuser"
	"github.com/blbu/vr-therapy-server-go/internal/features/progression"
	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&appuser.AppUser{}, &watch.WatchEvent{}, &progression.VideoCompletion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE videos (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT)`).Error; err != nil {
		t.Fatalf("create videos table: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDailyReportFlagsViolations(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if _, err := appuser.Create(db, appuser.CreateInput{Email: "clean@example.com", FirstName: "Cora", LastName: "Lane"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := appuser.Create(db, appuser.CreateInput{Email: "flagged@example.com", FirstName: "Finn", LastName: "Moss"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := db.Exec(`INSERT INTO videos (title) VALUES ('First Session')`).Error; err != nil {
		t.Fatalf("insert video: %v", err)
	}
	var videoID int64
	if err := db.Raw(`SELECT id FROM videos LIMIT 1`).Scan(&videoID).Error; err != nil {
		t.Fatalf("select video id: %v", err)
	}

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, email := range []string{"clean@example.com", "flagged@example.com"} {
		completion := progression.VideoCompletion{Email: email, VideoID: videoID, CompletedAt: day.Add(9 * time.Hour)}
		if err := db.Create(&completion).Error; err != nil {
			t.Fatalf("insert completion: %v", err)
		}
	}
	// Completion outside the requested day must not show up.
	outside := progression.VideoCompletion{Email: "clean@example.com", VideoID: videoID, CompletedAt: day.AddDate(0, 0, 1)}
	if err := db.Create(&outside).Error; err != nil {
		t.Fatalf("insert completion: %v", err)
	}

	if err := db.Create(&watch.WatchEvent{
		Email:     "flagged@example.com",
		SessionID: "sess-1",
		VideoID:   &videoID,
		EventType: watch.EventSeekAttempt,
		Details:   "skip to 250s",
		Timestamp: day.Add(8 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}

	daily, err := service.DailyReport(day)
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}

	if daily.Date != "2024-03-10" {
		t.Errorf("date = %q, want 2024-03-10", daily.Date)
	}
	if daily.TotalCompletions != 2 {
		t.Errorf("total completions = %d, want 2", daily.TotalCompletions)
	}
	if daily.FlaggedCount != 1 {
		t.Errorf("flagged count = %d, want 1", daily.FlaggedCount)
	}
	if daily.TotalUsers != 2 {
		t.Errorf("total users = %d, want 2", daily.TotalUsers)
	}

	byEmail := make(map[string]Completion, len(daily.Completions))
	for _, completion := range daily.Completions {
		byEmail[completion.Email] = completion
	}

	clean := byEmail["clean@example.com"]
	if clean.Flagged || len(clean.Violations) != 0 {
		t.Errorf("clean user unexpectedly flagged: %+v", clean)
	}
	if clean.UserName != "Cora Lane" {
		t.Errorf("user name = %q, want Cora Lane", clean.UserName)
	}
	if clean.VideoTitle != "First Session" {
		t.Errorf("video title = %q, want First Session", clean.VideoTitle)
	}

	flagged := byEmail["flagged@example.com"]
	if !flagged.Flagged || len(flagged.Violations) != 1 {
		t.Fatalf("flagged user not flagged: %+v", flagged)
	}
	if flagged.Violations[0].Type != string(watch.EventSeekAttempt) {
		t.Errorf("violation type = %q, want %q", flagged.Violations[0].Type, watch.EventSeekAttempt)
	}
}

func TestDailyReportEmptyDay(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	daily, err := service.DailyReport(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}
	if daily.TotalCompletions != 0 || daily.FlaggedCount != 0 || len(daily.Completions) != 0 {
		t.Fatalf("expected empty report, got %+v", daily)
	}
}
