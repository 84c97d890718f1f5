package watch

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blbu/vr-therapy-server-go/pkg/broadcast"
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

	if err := db.AutoMigrate(&WatchEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE videos (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT)`).Error; err != nil {
		t.Fatalf("create videos table: %v", err)
	}

	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	bus := broadcast.New[EventView](16)
	t.Cleanup(bus.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, NewSessionTracker(time.Hour), bus, log)
}

func insertVideo(t *testing.T, db *gorm.DB, title string) int64 {
	t.Helper()

	if err := db.Exec(`INSERT INTO videos (title) VALUES (?)`, title).Error; err != nil {
		t.Fatalf("insert video: %v", err)
	}
	var id int64
	if err := db.Raw(`SELECT id FROM videos ORDER BY id DESC LIMIT 1`).Scan(&id).Error; err != nil {
		t.Fatalf("select video id: %v", err)
	}
	return id
}

func floatPtr(v float64) *float64 { return &v }

func TestRecordEventAssignsIDAndTimestamp(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	event, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		EventType: EventPlay,
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	if event.ID == 0 {
		t.Fatal("event id was not assigned")
	}
	if event.Timestamp.IsZero() {
		t.Fatal("event timestamp was not assigned")
	}
	if event.VideoID != nil {
		t.Fatal("event without video reference should stay unlinked")
	}
}

func TestRecordEventValidation(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if _, err := service.RecordEvent(RecordEventInput{SessionID: "abc", EventType: EventPlay}); err != ErrEmailRequired {
		t.Fatalf("missing email: got %v, want ErrEmailRequired", err)
	}
	if _, err := service.RecordEvent(RecordEventInput{Email: "a@b.c", EventType: EventPlay}); err != ErrSessionRequired {
		t.Fatalf("missing session: got %v, want ErrSessionRequired", err)
	}
	if _, err := service.RecordEvent(RecordEventInput{Email: "a@b.c", SessionID: "abc", EventType: "BOGUS"}); err == nil {
		t.Fatal("unknown event type accepted")
	}
}

func TestPercentWatched(t *testing.T) {
	cases := []struct {
		name     string
		time     *float64
		duration *float64
		want     *float64
	}{
		{"both present", floatPtr(30), floatPtr(120), floatPtr(25)},
		{"zero duration", floatPtr(30), floatPtr(0), nil},
		{"negative duration", floatPtr(30), floatPtr(-5), nil},
		{"missing time", nil, floatPtr(120), nil},
		{"missing duration", floatPtr(30), nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := percentWatched(tc.time, tc.duration)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("got %v, want nil", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("got nil, want %v", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("got %v, want %v", *got, *tc.want)
			}
		})
	}
}

func TestRecordEventBroadcastsUnknownTitle(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	feed, cancel := service.Bus().Subscribe()
	defer cancel()

	missing := int64(999)
	if _, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		VideoID:   &missing,
		EventType: EventPlay,
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	select {
	case view := <-feed:
		if view.VideoTitle != UnknownVideoTitle {
			t.Fatalf("VideoTitle = %q, want %q", view.VideoTitle, UnknownVideoTitle)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestRecordEventBroadcastsResolvedTitle(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	videoID := insertVideo(t, db, "Relaxation Day 1")

	feed, cancel := service.Bus().Subscribe()
	defer cancel()

	if _, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		VideoID:   &videoID,
		EventType: EventProgressUpdate,
		VideoTime: floatPtr(12),
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	select {
	case view := <-feed:
		if view.VideoTitle != "Relaxation Day 1" {
			t.Fatalf("VideoTitle = %q, want resolved title", view.VideoTitle)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestRecordEventUpdatesTracker(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	for _, position := range []float64{10, 40, 25} {
		if _, err := service.RecordEvent(RecordEventInput{
			Email:     "patient@example.com",
			SessionID: "abc",
			EventType: EventProgressUpdate,
			VideoTime: floatPtr(position),
		}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	if got := service.Tracker().MaxPosition("abc"); got != 40 {
		t.Fatalf("MaxPosition = %v, want 40", got)
	}
}

func TestSessionEndClearsTracker(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if _, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		EventType: EventProgressUpdate,
		VideoTime: floatPtr(33),
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if _, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		EventType: EventSessionEnd,
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	if got := service.Tracker().MaxPosition("abc"); got != 0 {
		t.Fatalf("MaxPosition after SESSION_END = %v, want 0", got)
	}
}

func TestIsSeekValid(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	service.Tracker().RecordPosition("abc", 40)

	if valid, _ := service.IsSeekValid("abc", 42); !valid {
		t.Fatal("seek within tolerance rejected")
	}
	if valid, _ := service.IsSeekValid("abc", 42.1); valid {
		t.Fatal("seek past tolerance accepted")
	}
	if valid, _ := service.IsSeekValid("abc", 10); !valid {
		t.Fatal("backwards seek rejected")
	}
	if valid, max := service.IsSeekValid("unknown", 1); max != 0 || !valid {
		t.Fatalf("unknown session: valid=%v max=%v, want seek to 1 within 0+tolerance", valid, max)
	}
}

func TestIsVideoFullyWatched(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	videoID := insertVideo(t, db, "Relaxation Day 1")

	complete, err := service.IsVideoFullyWatched("patient@example.com", videoID)
	if err != nil {
		t.Fatalf("IsVideoFullyWatched: %v", err)
	}
	if complete {
		t.Fatal("video reported complete with no events")
	}

	if _, err := service.RecordEvent(RecordEventInput{
		Email:     "patient@example.com",
		SessionID: "abc",
		VideoID:   &videoID,
		EventType: EventVideoComplete,
	}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	complete, err = service.IsVideoFullyWatched("patient@example.com", videoID)
	if err != nil {
		t.Fatalf("IsVideoFullyWatched: %v", err)
	}
	if !complete {
		t.Fatal("video not reported complete after VIDEO_COMPLETE event")
	}
}

func TestViolationQueries(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	for _, kind := range []EventType{EventPlay, EventSeekAttempt, EventViolation, EventPause} {
		if _, err := service.RecordEvent(RecordEventInput{
			Email:     "patient@example.com",
			SessionID: "abc",
			EventType: kind,
		}); err != nil {
			t.Fatalf("RecordEvent(%s): %v", kind, err)
		}
	}

	views, err := service.ViolationEvents()
	if err != nil {
		t.Fatalf("ViolationEvents: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d violations, want 2", len(views))
	}
	for _, view := range views {
		if !EventType(view.EventType).IsViolation() {
			t.Fatalf("non-violation event %s in violations feed", view.EventType)
		}
	}
}

func TestLatestEventsBounded(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	for i := 0; i < LatestLimit+20; i++ {
		if _, err := service.RecordEvent(RecordEventInput{
			Email:     "patient@example.com",
			SessionID: "abc",
			EventType: EventProgressUpdate,
		}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	views, err := service.LatestEvents()
	if err != nil {
		t.Fatalf("LatestEvents: %v", err)
	}
	if len(views) != LatestLimit {
		t.Fatalf("got %d events, want %d", len(views), LatestLimit)
	}
}

func TestSessionEventsOrderedOldestFirst(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	base := time.Now().UTC().Add(-time.Hour)
	for i, kind := range []EventType{EventSessionStart, EventPlay, EventPause} {
		event := &WatchEvent{
			Email:     "patient@example.com",
			SessionID: "abc",
			EventType: kind,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := Append(db, event); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	views, err := service.SessionEvents("abc")
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d events, want 3", len(views))
	}
	if views[0].EventType != string(EventSessionStart) || views[2].EventType != string(EventPause) {
		t.Fatalf("events out of order: %s .. %s", views[0].EventType, views[2].EventType)
	}
}

func TestDeleteAllForVideo(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	keepID := insertVideo(t, db, "Keep")
	dropID := insertVideo(t, db, "Drop")

	for _, id := range []int64{keepID, dropID, dropID} {
		videoID := id
		if _, err := service.RecordEvent(RecordEventInput{
			Email:     "patient@example.com",
			SessionID: "abc",
			VideoID:   &videoID,
			EventType: EventPlay,
		}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	if err := DeleteAllForVideo(db, dropID); err != nil {
		t.Fatalf("DeleteAllForVideo: %v", err)
	}

	var remaining []WatchEvent
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("find events: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("got %d events, want 1", len(remaining))
	}
	if remaining[0].VideoID == nil || *remaining[0].VideoID != keepID {
		t.Fatal("surviving event references the wrong video")
	}
}

func TestUserEventsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	base := time.Now().UTC().Add(-time.Hour)
	for i, kind := range []EventType{EventSessionStart, EventPlay, EventPause} {
		event := &WatchEvent{
			Email:     "patient@example.com",
			SessionID: "abc",
			EventType: kind,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := Append(db, event); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := Append(db, &WatchEvent{
		Email:     "other@example.com",
		SessionID: "xyz",
		EventType: EventPlay,
		Timestamp: base,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	views, err := service.UserEvents("patient@example.com")
	if err != nil {
		t.Fatalf("UserEvents: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d events, want 3", len(views))
	}
	if views[0].EventType != string(EventPause) || views[2].EventType != string(EventSessionStart) {
		t.Fatalf("events out of order: %s .. %s", views[0].EventType, views[2].EventType)
	}
	for _, view := range views {
		if view.Email != "patient@example.com" {
			t.Fatalf("unexpected email %q", view.Email)
		}
	}
}
