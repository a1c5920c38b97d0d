package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agiletools/internal/database"
	"agiletools/internal/poker"
	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

const maxCodeAttempts = 10

var _ interfaces.SessionManager = (*Manager)(nil)

// Manager implements the SessionManager interface
type Manager struct {
	db       interfaces.SessionDatabase
	notifier interfaces.Notifier
	machine  *poker.Machine
	sessions map[string]*types.Session // code -> latest committed state
	mu       sync.RWMutex
	locks    *keyedMutex
	tracer   trace.Tracer

	now        func() time.Time
	codeLength int
	newCode    func(n int) (string, error)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func(n int) (string, error)) Option {
	return func(m *Manager) { m.newCode = gen }
}

// WithCodeLength sets the length of generated session codes.
func WithCodeLength(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.codeLength = n
		}
	}
}

// NewManager creates a new session manager. notifier may be nil.
func NewManager(db interfaces.SessionDatabase, notifier interfaces.Notifier, machine *poker.Machine, opts ...Option) *Manager {
	if machine == nil {
		machine = poker.NewMachine(nil)
	}
	m := &Manager{
		db:         db,
		notifier:   notifier,
		machine:    machine,
		sessions:   make(map[string]*types.Session),
		locks:      newKeyedMutex(),
		tracer:     otel.Tracer("agiletools/session"),
		now:        func() time.Time { return time.Now().UTC() },
		codeLength: DefaultCodeLength,
		newCode:    NewCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Machine returns the state machine transitions are built from.
func (m *Manager) Machine() *poker.Machine {
	return m.machine
}

// LoadActiveSessions loads all active sessions from database into memory
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.db.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	for _, s := range sessions {
		if _, exists := m.sessions[s.Code]; !exists {
			m.sessions[s.Code] = s
		}
	}
	m.mu.Unlock()

	slog.Info("loaded active sessions", "count", len(sessions))
	return nil
}

// CreateSession creates a session whose creator is its first participant and facilitator.
func (m *Manager) CreateSession(ctx context.Context, title, description, creator string) (*types.Session, error) {
	ctx, span := m.tracer.Start(ctx, "session.create")
	defer span.End()

	if err := types.ValidateSessionInput(title, description); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := m.newCode(m.codeLength)
		if err != nil {
			return nil, err
		}
		if m.cached(code) != nil {
			continue
		}
		taken, err := m.db.SessionExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to check session code: %w", err)
		}
		if taken {
			continue
		}

		s, err := m.create(ctx, code, strings.TrimSpace(title), strings.TrimSpace(description), creator)
		if errors.Is(err, database.ErrCodeTaken) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.String("session.code", code))
		slog.Info("created session", "session_code", code, "creator", creator)
		return s, nil
	}
	return nil, ErrCodeSpaceExhausted
}

func (m *Manager) create(ctx context.Context, code, title, description, creator string) (*types.Session, error) {
	unlock := m.locks.Lock(code)
	defer unlock()

	now := m.now()
	empty := &types.Session{
		Code:          code,
		Title:         title,
		Description:   description,
		Creator:       creator,
		Status:        types.SessionStatusActive,
		Participants:  map[string]*types.Participant{},
		RoundsHistory: []*types.Round{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s, _, err := m.machine.Join(creator).Apply(empty, now)
	if err != nil {
		return nil, err
	}
	if err := m.db.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	m.store(s)
	return s.Clone(), nil
}

// GetSession returns a copy of the latest committed state of a session.
func (m *Manager) GetSession(ctx context.Context, code string) (*types.Session, error) {
	if s := m.cached(code); s != nil {
		return s.Clone(), nil
	}
	s, err := m.db.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}

	// never overwrite a state an Apply committed while we were reading
	m.mu.Lock()
	if cached, exists := m.sessions[code]; exists {
		s = cached
	} else {
		m.sessions[code] = s
	}
	m.mu.Unlock()
	return s.Clone(), nil
}

// Apply runs transition against the session under its per-code lock,
// persists the result and hands the events to the notifier before unlocking.
// ARCHITECTURAL DISCOVERY: Publish only enqueues, so the lock covers the
// ordering of events but never the fan-out to connections.
func (m *Manager) Apply(ctx context.Context, code string, transition interfaces.Transition) (*types.Session, []types.Event, error) {
	if transition == nil {
		return nil, nil, ErrNilTransition
	}
	ctx, span := m.tracer.Start(ctx, "session.apply", trace.WithAttributes(
		attribute.String("session.code", code),
		attribute.String("session.transition", transition.Name()),
		attribute.String("session.actor", transition.Actor()),
	))
	defer span.End()

	unlock := m.locks.Lock(code)
	defer unlock()

	current, err := m.load(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	next, events, err := transition.Apply(current, m.now())
	if err != nil {
		span.SetAttributes(attribute.String("session.rejected", string(types.ReasonOf(err))))
		slog.Debug("transition rejected", "session_code", code, "transition", transition.Name(),
			"actor", transition.Actor(), "error", err)
		return nil, nil, err
	}

	if err := m.db.SaveSession(ctx, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, nil, fmt.Errorf("failed to persist session %s: %w", code, err)
	}
	m.store(next)

	if m.notifier != nil && len(events) > 0 {
		if err := m.notifier.Publish(code, events...); err != nil {
			slog.Warn("failed to publish events", "session_code", code, "transition", transition.Name(), "error", err)
		}
	}

	slog.Debug("transition applied", "session_code", code, "transition", transition.Name(), "actor", transition.Actor())
	return next.Clone(), events, nil
}

// ListSessionsByCreator returns summaries of the sessions creator started.
func (m *Manager) ListSessionsByCreator(ctx context.Context, creator string) ([]types.SessionSummary, error) {
	return m.db.ListSessionsByCreator(ctx, creator)
}

// GetStats returns session statistics for monitoring
func (m *Manager) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, s := range m.sessions {
		if s.IsActive() {
			active++
		}
	}
	return map[string]int{
		"cached_sessions": len(m.sessions),
		"active_sessions": active,
	}
}

// load returns the shared committed state; callers hold the code lock and must not mutate it.
func (m *Manager) load(ctx context.Context, code string) (*types.Session, error) {
	if s := m.cached(code); s != nil {
		return s, nil
	}
	s, err := m.db.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	m.store(s)
	return s, nil
}

func (m *Manager) cached(code string) *types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[code]
}

func (m *Manager) store(s *types.Session) {
	m.mu.Lock()
	m.sessions[s.Code] = s
	m.mu.Unlock()
}
