package router

import "errors"

// Router-specific error types
var (
	ErrInvalidFrame           = errors.New("frame is not a JSON object")
	ErrInvalidMessageType     = errors.New("invalid message type")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrSenderNotConnected     = errors.New("sender not connected")
	ErrSenderNotAuthenticated = errors.New("sender not authenticated")
)
