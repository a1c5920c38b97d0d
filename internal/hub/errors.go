package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrEventChannelFull      = errors.New("event channel is full")
	ErrMessageChannelFull    = errors.New("message channel is full")
	ErrUnregisterChannelFull = errors.New("unregister channel is full")
)
