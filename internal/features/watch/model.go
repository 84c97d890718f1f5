package watch

import (
	"time"

	"gorm.io/gorm"
)

// EventType enumerates the playback telemetry kinds reported by clients.
type EventType string

const (
	EventSessionStart   EventType = "SESSION_START"
	EventPlay           EventType = "PLAY"
	EventPause          EventType = "PAUSE"
	EventSeekAttempt    EventType = "SEEK_ATTEMPT"
	EventTabHidden      EventType = "TAB_HIDDEN"
	EventTabVisible     EventType = "TAB_VISIBLE"
	EventFullscreenExit EventType = "FULLSCREEN_EXIT"
	EventProgressUpdate EventType = "PROGRESS_UPDATE"
	EventVideoComplete  EventType = "VIDEO_COMPLETE"
	EventSessionEnd     EventType = "SESSION_END"
	EventViolation      EventType = "VIOLATION"
)

var knownEventTypes = map[EventType]struct{}{
	EventSessionStart:   {},
	EventPlay:           {},
	EventPause:          {},
	EventSeekAttempt:    {},
	EventTabHidden:      {},
	EventTabVisible:     {},
	EventFullscreenExit: {},
	EventProgressUpdate: {},
	EventVideoComplete:  {},
	EventSessionEnd:     {},
	EventViolation:      {},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsViolation reports whether t falls in the integrity-violation category.
func (t EventType) IsViolation() bool {
	return t == EventViolation || t == EventSeekAttempt
}

// WatchEvent is one immutable client-reported playback event. Rows are only
// ever appended, and removed in bulk when their video is deleted.
type WatchEvent struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email          string    `gorm:"type:varchar(255);not null;index" json:"email"`
	SessionID      string    `gorm:"type:varchar(128);not null;index;column:session_id" json:"sessionId"`
	VideoID        *int64    `gorm:"index;column:video_id" json:"videoId,omitempty"`
	EventType      EventType `gorm:"type:varchar(32);not null;index;column:event_type" json:"eventType"`
	VideoTime      *float64  `gorm:"column:video_time" json:"videoTime,omitempty"`
	VideoDuration  *float64  `gorm:"column:video_duration" json:"videoDuration,omitempty"`
	PercentWatched *float64  `gorm:"column:percent_watched" json:"percentWatched,omitempty"`
	Details        string    `gorm:"type:text" json:"details,omitempty"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	IPAddress      string    `gorm:"type:varchar(64);column:ip_address" json:"ipAddress,omitempty"`
	UserAgent      string    `gorm:"type:text;column:user_agent" json:"userAgent,omitempty"`
}

func (WatchEvent) TableName() string { return "watch_events" }

// LatestLimit bounds the "most recent events" query.
const LatestLimit = 100

// Append persists a new event, assigning its id and, when unset, its
// timestamp.
func Append(db *gorm.DB, event *WatchEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return db.Create(event).Error
}

// BySession returns a session's events in the order they were received.
func BySession(db *gorm.DB, sessionID string) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	return events, err
}

// ByUser returns a user's events, newest first.
func ByUser(db *gorm.DB, email string) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Where("email = ?", email).
		Order("timestamp DESC, id DESC").
		Find(&events).Error
	return events, err
}

// Since returns events at or after the given instant, newest first.
func Since(db *gorm.DB, after time.Time) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Where("timestamp >= ?", after).
		Order("timestamp DESC, id DESC").
		Find(&events).Error
	return events, err
}

// Violations returns all events in the violation category, newest first.
func Violations(db *gorm.DB) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Where("event_type IN ?", []EventType{EventViolation, EventSeekAttempt}).
		Order("timestamp DESC, id DESC").
		Find(&events).Error
	return events, err
}

// ViolationsBetween returns violation-category events in [from, to),
// oldest first.
func ViolationsBetween(db *gorm.DB, from, to time.Time) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Where("event_type IN ?", []EventType{EventViolation, EventSeekAttempt}).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp ASC, id ASC").
		Find(&events).Error
	return events, err
}

// Latest returns the most recent events, bounded by LatestLimit.
func Latest(db *gorm.DB) ([]WatchEvent, error) {
	var events []WatchEvent
	err := db.
		Order("timestamp DESC, id DESC").
		Limit(LatestLimit).
		Find(&events).Error
	return events, err
}

// CountCompletions counts VIDEO_COMPLETE events for a (user, video) pair.
func CountCompletions(db *gorm.DB, email string, videoID int64) (int64, error) {
	var count int64
	err := db.Model(&WatchEvent{}).
		Where("email = ? AND video_id = ? AND event_type = ?", email, videoID, EventVideoComplete).
		Count(&count).Error
	return count, err
}

// DeleteAllForVideo removes every event referencing the video. Called by
// the video feature when a video is deleted.
func DeleteAllForVideo(db *gorm.DB, videoID int64) error {
	return db.Where("video_id = ?", videoID).Delete(&WatchEvent{}).Error
}
