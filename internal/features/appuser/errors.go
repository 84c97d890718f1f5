package appuser

import "errors"

var (
	ErrUserNotFound  = errors.New("app user not found")
	ErrEmailRequired = errors.New("email is required")
	ErrEmailTaken    = errors.New("email is already registered")
)
