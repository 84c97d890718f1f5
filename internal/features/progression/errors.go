package progression

import "errors"

var (
	ErrUserNotFound  = errors.New("curriculum user not found")
	ErrVideoNotFound = errors.New("no video assigned for the user's current day")
)
