package watch

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/blbu/vr-therapy-server-go/pkg/broadcast"
	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

// SeekTolerance is the forward slack, in seconds, allowed past the furthest
// verified position before a seek is considered a skip.
const SeekTolerance = 2.0

// UnknownVideoTitle is broadcast for events with no linked video.
const UnknownVideoTitle = "Unknown"

// EventView is the flattened, display-ready form of an event. It carries a
// video title instead of the entity reference and is what observers see.
type EventView struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	SessionID      string   `json:"sessionId"`
	VideoTitle     string   `json:"videoTitle"`
	EventType      string   `json:"eventType"`
	VideoTime      *float64 `json:"videoTime,omitempty"`
	VideoDuration  *float64 `json:"videoDuration,omitempty"`
	PercentWatched *float64 `json:"percentWatched,omitempty"`
	Details        string   `json:"details,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// RecordEventInput carries one client telemetry report.
type RecordEventInput struct {
	Email         string
	SessionID     string
	VideoID       *int64
	EventType     EventType
	VideoTime     *float64
	VideoDuration *float64
	Details       string
	IPAddress     string
	UserAgent     string
}

// Service ingests telemetry, answers seek checks and serves the event feed.
type Service struct {
	db      *gorm.DB
	tracker *SessionTracker
	bus     *broadcast.Bus[EventView]
	logger  *slog.Logger
}

func NewService(db *gorm.DB, tracker *SessionTracker, bus *broadcast.Bus[EventView], logger *slog.Logger) *Service {
	return &Service{db: db, tracker: tracker, bus: bus, logger: logger}
}

// Bus exposes the event feed for observers.
func (s *Service) Bus() *broadcast.Bus[EventView] { return s.bus }

// Tracker exposes the session tracker for lifecycle management.
func (s *Service) Tracker() *SessionTracker { return s.tracker }

// RecordEvent validates and durably records one telemetry report, then
// broadcasts it and updates the session tracker. The append is the only
// step that can fail the call: broadcast and tracking are best-effort once
// the event is persisted.
func (s *Service) RecordEvent(input RecordEventInput) (*WatchEvent, error) {
	if input.Email == "" {
		return nil, ErrEmailRequired
	}
	if input.SessionID == "" {
		return nil, ErrSessionRequired
	}
	if !input.EventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, input.EventType)
	}

	videoID, videoTitle := s.resolveVideo(input.VideoID)

	event := &WatchEvent{
		Email:          input.Email,
		SessionID:      input.SessionID,
		VideoID:        videoID,
		EventType:      input.EventType,
		VideoTime:      input.VideoTime,
		VideoDuration:  input.VideoDuration,
		PercentWatched: percentWatched(input.VideoTime, input.VideoDuration),
		Details:        input.Details,
		IPAddress:      input.IPAddress,
		UserAgent:      input.UserAgent,
	}

	if err := Append(s.db, event); err != nil {
		return nil, fmt.Errorf("append watch event: %w", err)
	}

	metrics.RecordWatchEvent(string(event.EventType), event.EventType.IsViolation())

	s.bus.Publish(s.toView(event, videoTitle))

	if event.VideoTime != nil {
		s.tracker.RecordPosition(event.SessionID, *event.VideoTime)
	}
	if event.EventType == EventSessionEnd {
		s.tracker.Clear(event.SessionID)
	}

	if event.EventType.IsViolation() {
		s.logger.Warn("integrity violation recorded",
			slog.String("email", event.Email),
			slog.String("session_id", event.SessionID),
			slog.String("event_type", string(event.EventType)),
		)
	}

	return event, nil
}

// resolveVideo checks the optional video reference. An unknown id is
// tolerated: the event is stored unlinked and displayed as "Unknown".
func (s *Service) resolveVideo(videoID *int64) (*int64, string) {
	if videoID == nil {
		return nil, UnknownVideoTitle
	}

	var title string
	err := s.db.Table("videos").
		Select("title").
		Where("id = ?", *videoID).
		Scan(&title).Error
	if err != nil || title == "" {
		return nil, UnknownVideoTitle
	}
	return videoID, title
}

func percentWatched(videoTime, videoDuration *float64) *float64 {
	if videoTime == nil || videoDuration == nil || *videoDuration <= 0 {
		return nil
	}
	percent := *videoTime / *videoDuration * 100
	return &percent
}

// IsSeekValid reports whether a seek to toTime stays within the tolerance
// band past the session's furthest verified position. Purely advisory: the
// caller decides whether to honor the seek.
func (s *Service) IsSeekValid(sessionID string, toTime float64) (bool, float64) {
	maxPosition := s.tracker.MaxPosition(sessionID)
	return toTime <= maxPosition+SeekTolerance, maxPosition
}

// IsVideoFullyWatched reports whether the user has at least one recorded
// completion event for the video.
func (s *Service) IsVideoFullyWatched(email string, videoID int64) (bool, error) {
	count, err := CountCompletions(s.db, email, videoID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SessionEvents returns a session's events oldest first.
func (s *Service) SessionEvents(sessionID string) ([]EventView, error) {
	events, err := BySession(s.db, sessionID)
	if err != nil {
		return nil, err
	}
	return s.toViews(events)
}

// UserEvents returns one user's events newest first.
func (s *Service) UserEvents(email string) ([]EventView, error) {
	events, err := ByUser(s.db, email)
	if err != nil {
		return nil, err
	}
	return s.toViews(events)
}

// RecentEvents returns events from the last given number of minutes.
func (s *Service) RecentEvents(minutes int) ([]EventView, error) {
	if minutes < 1 {
		minutes = 1
	}
	events, err := Since(s.db, time.Now().UTC().Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		return nil, err
	}
	return s.toViews(events)
}

// LatestEvents returns the most recent events, bounded.
func (s *Service) LatestEvents() ([]EventView, error) {
	events, err := Latest(s.db)
	if err != nil {
		return nil, err
	}
	return s.toViews(events)
}

// ViolationEvents returns all violation-category events, newest first.
func (s *Service) ViolationEvents() ([]EventView, error) {
	events, err := Violations(s.db)
	if err != nil {
		return nil, err
	}
	return s.toViews(events)
}

func (s *Service) toView(event *WatchEvent, videoTitle string) EventView {
	return EventView{
		ID:             event.ID,
		Email:          event.Email,
		SessionID:      event.SessionID,
		VideoTitle:     videoTitle,
		EventType:      string(event.EventType),
		VideoTime:      event.VideoTime,
		VideoDuration:  event.VideoDuration,
		PercentWatched: event.PercentWatched,
		Details:        event.Details,
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
	}
}

// toViews resolves video titles for a batch of events with one query.
func (s *Service) toViews(events []WatchEvent) ([]EventView, error) {
	ids := make([]int64, 0, len(events))
	seen := make(map[int64]struct{})
	for _, event := range events {
		if event.VideoID == nil {
			continue
		}
		if _, ok := seen[*event.VideoID]; ok {
			continue
		}
		seen[*event.VideoID] = struct{}{}
		ids = append(ids, *event.VideoID)
	}

	titles := make(map[int64]string, len(ids))
	if len(ids) > 0 {
		var rows []struct {
			ID    int64
			Title string
		}
		if err := s.db.Table("videos").
			Select("id, title").
			Where("id IN ?", ids).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			titles[row.ID] = row.Title
		}
	}

	views := make([]EventView, 0, len(events))
	for i := range events {
		event := &events[i]
		title := UnknownVideoTitle
		if event.VideoID != nil {
			if t, ok := titles[*event.VideoID]; ok && t != "" {
				title = t
			}
		}
		views = append(views, s.toView(event, title))
	}
	return views, nil
}
