package interfaces

import (
	"context"

	"agiletools/pkg/types"
)

// SessionDatabase persists session aggregates
type SessionDatabase interface {
	// CreateSession inserts a session whose code must not exist yet
	CreateSession(ctx context.Context, session *types.Session) error

	// SaveSession writes the whole aggregate: session, participants, rounds, votes
	SaveSession(ctx context.Context, session *types.Session) error

	GetSession(ctx context.Context, code string) (*types.Session, error)
	SessionExists(ctx context.Context, code string) (bool, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
	ListSessionsByCreator(ctx context.Context, creator string) ([]types.SessionSummary, error)
}

// WheelDatabase persists wheel configurations and the append-only result log
type WheelDatabase interface {
	CreateWheelConfig(ctx context.Context, config *types.WheelConfig) error
	UpdateWheelConfig(ctx context.Context, config *types.WheelConfig) error
	DeleteWheelConfig(ctx context.Context, id string) error
	GetWheelConfig(ctx context.Context, id string) (*types.WheelConfig, error)
	ListWheelConfigs(ctx context.Context, creator string) ([]*types.WheelConfig, error)
	StoreWheelResult(ctx context.Context, result *types.WheelResult) error
	ListWheelResults(ctx context.Context, configID string, limit int) ([]*types.WheelResult, error)
}

// DatabaseManager handles all database operations
type DatabaseManager interface {
	SessionDatabase
	WheelDatabase

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close stops the writer and closes the database
	Close() error
}
