package video

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Video is one curriculum entry. DisplayOrder is its 1..N position in the
// fixed sequence; each order bucket covers two curriculum days.
type Video struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	StorageURL   string    `gorm:"type:text;column:storage_url" json:"storageUrl"`
	DisplayOrder int       `gorm:"not null;uniqueIndex;column:display_order" json:"displayOrder"`
	AssignedDate *time.Time `gorm:"column:assigned_date" json:"assignedDate,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Video) TableName() string { return "videos" }

// CreateInput carries metadata for a newly uploaded video.
type CreateInput struct {
	Title        string
	Filename     string
	StorageURL   string
	DisplayOrder int
	AssignedDate *time.Time
}

// Create inserts a new curriculum video.
func Create(db *gorm.DB, input CreateInput) (Video, error) {
	if input.Title == "" {
		return Video{}, ErrTitleRequired
	}
	if input.DisplayOrder < 1 {
		return Video{}, ErrOrderRequired
	}

	var existing int64
	if err := db.Model(&Video{}).Where("display_order = ?", input.DisplayOrder).Count(&existing).Error; err != nil {
		return Video{}, err
	}
	if existing > 0 {
		return Video{}, ErrOrderTaken
	}

	video := Video{
		Title:        input.Title,
		Filename:     input.Filename,
		StorageURL:   input.StorageURL,
		DisplayOrder: input.DisplayOrder,
		AssignedDate: input.AssignedDate,
	}
	if err := db.Create(&video).Error; err != nil {
		return Video{}, err
	}
	return video, nil
}

// Get fetches a video by id.
func Get(db *gorm.DB, id int64) (Video, error) {
	var video Video
	err := db.First(&video, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return video, ErrVideoNotFound
	}
	return video, err
}

// GetByAssignedDate fetches the video pinned to a specific calendar date.
func GetByAssignedDate(db *gorm.DB, day time.Time) (Video, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var video Video
	err := db.
		Where("assigned_date >= ? AND assigned_date < ?", dayStart, dayEnd).
		First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return video, ErrVideoNotFound
	}
	return video, err
}

// List returns the full curriculum in display order.
func List(db *gorm.DB) ([]Video, error) {
	var videos []Video
	err := db.Order("display_order ASC").Find(&videos).Error
	return videos, err
}

// Delete removes the video row itself. Callers are responsible for
// cascading to dependent rows first.
func Delete(db *gorm.DB, id int64) error {
	result := db.Delete(&Video{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}
