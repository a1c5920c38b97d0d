package interfaces

import (
	"context"

	"agiletools/pkg/types"
)

// Notifier delivers events to every live connection of a session
type Notifier interface {
	// Publish enqueues events without blocking; delivery happens asynchronously
	// in publish order
	Publish(sessionCode string, events ...types.Event) error
}

// MessageRouter turns an inbound client frame into a relayable event
type MessageRouter interface {
	RouteMessage(ctx context.Context, sender Connection, data []byte) (*types.Event, error)
}

// Presence answers who is connected to a session stream
type Presence interface {
	IsConnected(sessionCode, username string) bool
	SessionConnectionCount(sessionCode string) int
}
