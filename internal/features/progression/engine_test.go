package progression

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blbu/vr-therapy-server-go/internal/features/appuser"
	"github.com/blbu/vr-therapy-server-go/pkg/cache"
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

	if err := db.AutoMigrate(&appuser.AppUser{}, &VideoCompletion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		filename TEXT,
		storage_url TEXT,
		display_order INTEGER
	)`).Error; err != nil {
		t.Fatalf("create videos table: %v", err)
	}

	return db
}

func newTestEngine(t *testing.T, db *gorm.DB, today string) *Engine {
	t.Helper()

	engine := NewEngine(db, cache.NewMemoryCache(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if today != "" {
		fixed, err := time.Parse(dateLayout, today)
		if err != nil {
			t.Fatalf("parse today: %v", err)
		}
		engine.now = func() time.Time { return fixed.Add(10 * time.Hour) }
	}
	return engine
}

func enrollUser(t *testing.T, db *gorm.DB, emailAddr string) appuser.AppUser {
	t.Helper()

	user, err := appuser.Create(db, appuser.CreateInput{Email: emailAddr, FirstName: "Test", LastName: "User"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func insertVideo(t *testing.T, db *gorm.DB, title string, displayOrder int) int64 {
	t.Helper()

	if err := db.Exec(
		`INSERT INTO videos (title, filename, storage_url, display_order) VALUES (?, ?, ?, ?)`,
		title, title+".mp4", "https://storage.googleapis.com/bucket/"+title, displayOrder,
	).Error; err != nil {
		t.Fatalf("insert video: %v", err)
	}
	var id int64
	if err := db.Raw(`SELECT id FROM videos ORDER BY id DESC LIMIT 1`).Scan(&id).Error; err != nil {
		t.Fatalf("select video id: %v", err)
	}
	return id
}

func addCompletion(t *testing.T, db *gorm.DB, emailAddr string, videoID int64, date string) {
	t.Helper()

	completedAt, err := time.Parse(dateLayout, date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	completion := VideoCompletion{Email: emailAddr, VideoID: videoID, CompletedAt: completedAt.Add(9 * time.Hour)}
	if err := db.Create(&completion).Error; err != nil {
		t.Fatalf("insert completion: %v", err)
	}
}

func TestStreakConsecutiveDaysWithGrace(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")
	videoID := insertVideo(t, db, "Day1", 1)

	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		addCompletion(t, db, "patient@example.com", videoID, date)
	}

	streak, err := engine.Streak("patient@example.com")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 3 {
		t.Fatalf("streak = %d, want 3", streak)
	}
}

func TestStreakGapBreaks(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")
	videoID := insertVideo(t, db, "Day1", 1)

	// Yesterday present, the day before absent: only yesterday counts.
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-01")
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-03")

	streak, err := engine.Streak("patient@example.com")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 1 {
		t.Fatalf("streak = %d, want 1", streak)
	}
}

func TestStreakZeroCases(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-10")
	videoID := insertVideo(t, db, "Day1", 1)

	streak, err := engine.Streak("patient@example.com")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 0 {
		t.Fatalf("streak with no completions = %d, want 0", streak)
	}

	// Last completion two days ago: outside the one-day grace window.
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-08")

	streak, err = engine.Streak("patient@example.com")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 0 {
		t.Fatalf("streak after two-day gap = %d, want 0", streak)
	}
}

func TestStreakIncludesToday(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")
	videoID := insertVideo(t, db, "Day1", 1)

	addCompletion(t, db, "patient@example.com", videoID, "2024-01-03")
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-04")

	streak, err := engine.Streak("patient@example.com")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 2 {
		t.Fatalf("streak = %d, want 2", streak)
	}
}

func TestCompletedDatesDistinctSorted(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "")
	videoID := insertVideo(t, db, "Day1", 1)

	addCompletion(t, db, "patient@example.com", videoID, "2024-01-03")
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-01")
	addCompletion(t, db, "patient@example.com", videoID, "2024-01-03")

	dates, err := engine.CompletedDates("patient@example.com")
	if err != nil {
		t.Fatalf("CompletedDates: %v", err)
	}
	want := []string{"2024-01-01", "2024-01-03"}
	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d", len(dates), len(want))
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

func TestVideoForUserDayBuckets(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "")

	insertVideo(t, db, "First", 1)
	insertVideo(t, db, "Second", 2)

	user := enrollUser(t, db, "patient@example.com")

	cases := []struct {
		day  int
		want string
	}{
		{1, "First"},
		{2, "First"},
		{3, "Second"},
		{4, "Second"},
	}
	for _, tc := range cases {
		if err := db.Model(&appuser.AppUser{}).Where("email = ?", user.Email).Update("current_day", tc.day).Error; err != nil {
			t.Fatalf("set day: %v", err)
		}

		video, err := engine.VideoForUserDay(user.Email)
		if err != nil {
			t.Fatalf("VideoForUserDay(day=%d): %v", tc.day, err)
		}
		if video.Title != tc.want {
			t.Fatalf("day %d resolved %q, want %q", tc.day, video.Title, tc.want)
		}
	}
}

func TestVideoForUserDayNotFound(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "")

	if _, err := engine.VideoForUserDay("nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}

	enrollUser(t, db, "patient@example.com")
	if _, err := engine.VideoForUserDay("patient@example.com"); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("missing video: got %v, want ErrVideoNotFound", err)
	}
}

func TestRecordCompletionAndAdvance(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")

	insertVideo(t, db, "First", 1)
	user := enrollUser(t, db, "patient@example.com")

	first, err := engine.RecordCompletionAndAdvance(user.Email)
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if first.Advanced || first.CurrentDay != 1 || first.Completions != 1 {
		t.Fatalf("first completion: %+v, want day 1, count 1, not advanced", first)
	}

	second, err := engine.RecordCompletionAndAdvance(user.Email)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if !second.Advanced || second.CurrentDay != 2 || second.Completions != 2 {
		t.Fatalf("second completion: %+v, want advanced to day 2", second)
	}

	// Day 2 still maps to the same video; count 3 triggers no transition.
	third, err := engine.RecordCompletionAndAdvance(user.Email)
	if err != nil {
		t.Fatalf("third completion: %v", err)
	}
	if third.Advanced || third.CurrentDay != 2 || third.Completions != 3 {
		t.Fatalf("third completion: %+v, want day 2, count 3, not advanced", third)
	}
}

func TestUserProgress(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")

	insertVideo(t, db, "First", 1)
	user := enrollUser(t, db, "patient@example.com")

	progress, err := engine.UserProgress(user.Email)
	if err != nil {
		t.Fatalf("UserProgress: %v", err)
	}
	if progress.CurrentDay != 1 || progress.TotalCompleted != 0 || progress.TodayCompleted || progress.Streak != 0 {
		t.Fatalf("fresh user progress: %+v", progress)
	}

	if _, err := engine.RecordCompletionAndAdvance(user.Email); err != nil {
		t.Fatalf("complete: %v", err)
	}

	progress, err = engine.UserProgress(user.Email)
	if err != nil {
		t.Fatalf("UserProgress: %v", err)
	}
	if progress.TotalCompleted != 1 || !progress.TodayCompleted || progress.Streak != 1 {
		t.Fatalf("progress after completion: %+v", progress)
	}
	if _, err := engine.UserProgress("nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}
}

func TestDeleteAllForVideoRemovesOnlyThatVideo(t *testing.T) {
	db := newTestDB(t)

	keep := insertVideo(t, db, "Keep", 1)
	drop := insertVideo(t, db, "Drop", 2)

	addCompletion(t, db, "patient@example.com", keep, "2024-01-01")
	addCompletion(t, db, "patient@example.com", drop, "2024-01-02")
	addCompletion(t, db, "patient@example.com", drop, "2024-01-03")

	if err := DeleteAllForVideo(db, drop); err != nil {
		t.Fatalf("DeleteAllForVideo: %v", err)
	}

	var remaining []VideoCompletion
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("find completions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].VideoID != keep {
		t.Fatalf("remaining completions: %+v", remaining)
	}
}

func TestTodaysCompletionStatus(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-03-10")

	enrollUser(t, db, "done@example.com")
	enrollUser(t, db, "pending@example.com")
	paused := enrollUser(t, db, "paused@example.com")
	if _, err := appuser.SetActive(db, paused.Email, false); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	videoID := insertVideo(t, db, "First", 1)
	addCompletion(t, db, "done@example.com", videoID, "2024-03-10")
	addCompletion(t, db, "done@example.com", videoID, "2024-03-09")
	addCompletion(t, db, "paused@example.com", videoID, "2024-03-10")

	status, err := engine.TodaysCompletionStatus()
	if err != nil {
		t.Fatalf("today status: %v", err)
	}

	if status.Date != "2024-03-10" {
		t.Errorf("date = %q, want 2024-03-10", status.Date)
	}
	if len(status.Completed) != 1 || status.Completed[0] != "done@example.com" {
		t.Errorf("completed = %v, want [done@example.com]", status.Completed)
	}
	if len(status.Pending) != 1 || status.Pending[0] != "pending@example.com" {
		t.Errorf("pending = %v, want [pending@example.com]", status.Pending)
	}
}

func TestCompletionsForUser(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-03-10")

	user := enrollUser(t, db, "viewer@example.com")
	videoID := insertVideo(t, db, "First", 1)
	addCompletion(t, db, user.Email, videoID, "2024-03-08")
	addCompletion(t, db, user.Email, videoID, "2024-03-09")
	addCompletion(t, db, user.Email, videoID, "2024-03-09")

	completions, err := engine.CompletionsForUser(user.Email)
	if err != nil {
		t.Fatalf("completions for user: %v", err)
	}

	if completions.User.Email != user.Email {
		t.Errorf("user email = %q, want %q", completions.User.Email, user.Email)
	}
	want := []string{"2024-03-08", "2024-03-09"}
	if len(completions.CompletedDates) != len(want) {
		t.Fatalf("dates = %v, want %v", completions.CompletedDates, want)
	}
	for i, date := range want {
		if completions.CompletedDates[i] != date {
			t.Errorf("dates[%d] = %q, want %q", i, completions.CompletedDates[i], date)
		}
	}

	if _, err := engine.CompletionsForUser("ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestRecordCompletionRetriesAfterLostPrecondition(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db, "2024-01-04")

	videoID := insertVideo(t, db, "First", 1)
	user := enrollUser(t, db, "patient@example.com")
	addCompletion(t, db, user.Email, videoID, "2024-01-03")

	// Bump current_day from under the first preconditioned update, so
	// it affects zero rows and the whole transaction rolls back.
	stolen := false
	err := db.Callback().Update().Before("gorm:update").Register("steal_day", func(tx *gorm.DB) {
		if stolen || tx.Statement.Table != "vr_app_users" {
			return
		}
		stolen = true
		if err := tx.Session(&gorm.Session{NewDB: true}).
			Exec(`UPDATE vr_app_users SET current_day = current_day + 1 WHERE email = ?`, user.Email).Error; err != nil {
			t.Errorf("conflicting update: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	defer db.Callback().Update().Remove("steal_day")

	result, err := engine.RecordCompletionAndAdvance(user.Email)
	if err != nil {
		t.Fatalf("RecordCompletionAndAdvance: %v", err)
	}
	if !stolen {
		t.Fatal("conflicting update never ran")
	}
	if !result.Advanced || result.CurrentDay != 2 || result.Completions != 2 {
		t.Fatalf("result = %+v, want advanced to day 2 with count 2", result)
	}

	// The first attempt's completion insert must have rolled back with it.
	count, err := CountForUserVideo(db, user.Email, videoID)
	if err != nil {
		t.Fatalf("count completions: %v", err)
	}
	if count != 2 {
		t.Errorf("completions = %d, want 2", count)
	}
	fresh, err := appuser.GetByEmail(db, user.Email)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if fresh.CurrentDay != 2 {
		t.Errorf("current day = %d, want 2", fresh.CurrentDay)
	}
}
