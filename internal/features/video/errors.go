package video

import "errors"

var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrTitleRequired     = errors.New("video title is required")
	ErrOrderRequired     = errors.New("display order must be a positive integer")
	ErrOrderTaken        = errors.New("display order is already assigned")
	ErrFileRequired      = errors.New("video file is required")
	ErrStorageUnavailable = errors.New("video storage is not configured")
)
