package watch

import "errors"

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrSessionRequired  = errors.New("session id is required")
	ErrInvalidEventType = errors.New("invalid event type")
)
