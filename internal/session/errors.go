package session

import "errors"

var (
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique session code")
	ErrNilTransition      = errors.New("transition is required")
)
