package interfaces

import (
	"context"
	"time"

	"agiletools/pkg/types"
)

// Transition computes the next session state from a private copy of the current one
type Transition interface {
	Name() string
	Actor() string
	Apply(current *types.Session, now time.Time) (*types.Session, []types.Event, error)
}

// SessionManager owns the process-wide session store
// ARCHITECTURAL DISCOVERY: Apply is the only mutation path; it linearizes
// transitions per session code and leaves distinct sessions independent
type SessionManager interface {
	CreateSession(ctx context.Context, title, description, creator string) (*types.Session, error)
	GetSession(ctx context.Context, code string) (*types.Session, error)
	Apply(ctx context.Context, code string, transition Transition) (*types.Session, []types.Event, error)
	ListSessionsByCreator(ctx context.Context, creator string) ([]types.SessionSummary, error)
}
