package progression

import (
	"time"

	"gorm.io/gorm"
)

// VideoCompletion is a durable record that a user finished a video once.
// Repeat viewings append additional rows; rows are never updated.
type VideoCompletion struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email       string    `gorm:"type:varchar(255);not null;index;index:idx_completion_user_video,priority:1" json:"email"`
	VideoID     int64     `gorm:"not null;index;index:idx_completion_user_video,priority:2;column:video_id" json:"videoId"`
	CompletedAt time.Time `gorm:"not null;index;column:completed_at" json:"completedAt"`
}

func (VideoCompletion) TableName() string { return "video_completions" }

// CompletionTimes returns every completion timestamp for a user.
func CompletionTimes(db *gorm.DB, email string) ([]time.Time, error) {
	var times []time.Time
	err := db.Model(&VideoCompletion{}).
		Where("email = ?", email).
		Order("completed_at ASC").
		Pluck("completed_at", &times).Error
	return times, err
}

// CountForUserVideo counts completion rows for a (user, video) pair.
func CountForUserVideo(db *gorm.DB, email string, videoID int64) (int64, error) {
	var count int64
	err := db.Model(&VideoCompletion{}).
		Where("email = ? AND video_id = ?", email, videoID).
		Count(&count).Error
	return count, err
}

// TotalForUser counts all completion rows for a user.
func TotalForUser(db *gorm.DB, email string) (int64, error) {
	var count int64
	err := db.Model(&VideoCompletion{}).
		Where("email = ?", email).
		Count(&count).Error
	return count, err
}

// CompletedEmailsSince returns the distinct emails with at least one
// completion at or after the given time.
func CompletedEmailsSince(db *gorm.DB, t time.Time) ([]string, error) {
	var emails []string
	err := db.Model(&VideoCompletion{}).
		Distinct("email").
		Where("completed_at >= ?", t).
		Pluck("email", &emails).Error
	return emails, err
}

// CompletedRow is one line of the completion report, joined with the
// video's title.
type CompletedRow struct {
	Email       string    `json:"email"`
	VideoID     int64     `json:"videoId"`
	VideoTitle  string    `json:"videoTitle"`
	CompletedAt time.Time `json:"completedAt"`
}

// CompletionsBetween lists completions in [from, to) with resolved titles.
func CompletionsBetween(db *gorm.DB, from, to time.Time) ([]CompletedRow, error) {
	var rows []CompletedRow
	err := db.Table("video_completions").
		Select("video_completions.email, video_completions.video_id, COALESCE(videos.title, 'Unknown') AS video_title, video_completions.completed_at").
		Joins("LEFT JOIN videos ON videos.id = video_completions.video_id").
		Where("video_completions.completed_at >= ? AND video_completions.completed_at < ?", from, to).
		Order("video_completions.completed_at ASC").
		Scan(&rows).Error
	return rows, err
}

// DeleteAllForVideo removes every completion referencing the video. Called
// by the video feature when a video is deleted.
func DeleteAllForVideo(db *gorm.DB, videoID int64) error {
	return db.Where("video_id = ?", videoID).Delete(&VideoCompletion{}).Error
}
