package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"agiletools/internal/i18n"
	"agiletools/internal/poker"
	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

// IdentityHeader carries the caller's username, supplied by the fronting proxy.
const IdentityHeader = "X-Auth-User"

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 64 << 10

// Registry exposes stream presence and connection counts
type Registry interface {
	interfaces.Presence
	GetStats() map[string]int
}

// HealthChecker is satisfied by the database manager
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource reports counters for the health endpoint
type StatsSource interface {
	GetStats() map[string]int64
}

// WheelService is the decision wheel surface the API drives
type WheelService interface {
	CreateConfig(ctx context.Context, creator, name string, items []string) (*types.WheelConfig, error)
	GetConfig(ctx context.Context, id string) (*types.WheelConfig, error)
	ListConfigs(ctx context.Context, creator string) ([]*types.WheelConfig, error)
	UpdateConfig(ctx context.Context, actor, id, name string, items []string) (*types.WheelConfig, error)
	DeleteConfig(ctx context.Context, actor, id string) error
	Spin(ctx context.Context, id string) (*types.WheelResult, error)
	RecordResult(ctx context.Context, configID, selectedItem string) (*types.WheelResult, error)
	Results(ctx context.Context, configID string) ([]*types.WheelResult, error)
}

// Deps are the collaborators the HTTP surface is built from.
// Stream and Hub are optional.
type Deps struct {
	Sessions interfaces.SessionManager
	Machine  *poker.Machine
	Wheel    WheelService
	Database HealthChecker
	Registry Registry
	Hub      StatsSource
	Stream   http.Handler
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Handlers translate requests into transitions; every rule lives in the poker and wheel packages
type Server struct {
	sessions interfaces.SessionManager
	machine  *poker.Machine
	wheel    WheelService
	database HealthChecker
	registry Registry
	hub      StatsSource
	router   *http.ServeMux
	started  time.Time
}

// NewServer builds the API and registers every route
func NewServer(deps Deps) *Server {
	machine := deps.Machine
	if machine == nil {
		machine = poker.NewMachine(nil)
	}
	s := &Server{
		sessions: deps.Sessions,
		machine:  machine,
		wheel:    deps.Wheel,
		database: deps.Database,
		registry: deps.Registry,
		hub:      deps.Hub,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}

	s.setupRoutes(deps.Stream)
	return s
}

// FUNCTIONAL DISCOVERY: Literal segments outrank wildcards, so /poker/sessions and
// /poker/deck never reach the stream route registered at /poker/{code}
func (s *Server) setupRoutes(stream http.Handler) {
	api := func(h http.HandlerFunc) http.Handler {
		return corsMiddleware(jsonMiddleware(h))
	}

	s.router.Handle("POST /poker/sessions", api(s.createSession))
	s.router.Handle("GET /poker/sessions", api(s.listSessions))
	s.router.Handle("GET /poker/sessions/{code}", api(s.getSession))
	s.router.Handle("POST /poker/sessions/{code}/join", api(s.joinSession))
	s.router.Handle("POST /poker/sessions/{code}/leave", api(s.leaveSession))
	s.router.Handle("POST /poker/sessions/{code}/vote", api(s.castVote))
	s.router.Handle("POST /poker/sessions/{code}/reveal", api(s.revealVotes))
	s.router.Handle("POST /poker/sessions/{code}/reset", api(s.resetVotes))
	s.router.Handle("POST /poker/sessions/{code}/rounds", api(s.startRound))
	s.router.Handle("POST /poker/sessions/{code}/rounds/{round_number}/complete", api(s.completeRound))
	s.router.Handle("POST /poker/sessions/{code}/complete", api(s.completeSession))
	s.router.Handle("GET /poker/deck", api(s.getDeck))

	s.router.Handle("POST /wheel/configs", api(s.createWheelConfig))
	s.router.Handle("GET /wheel/configs", api(s.listWheelConfigs))
	s.router.Handle("GET /wheel/configs/{id}", api(s.getWheelConfig))
	s.router.Handle("PUT /wheel/configs/{id}", api(s.updateWheelConfig))
	s.router.Handle("DELETE /wheel/configs/{id}", api(s.deleteWheelConfig))
	s.router.Handle("POST /wheel/configs/{id}/spin", api(s.spinWheel))
	s.router.Handle("GET /wheel/configs/{id}/results", api(s.listWheelResults))
	s.router.Handle("POST /wheel/results", api(s.recordWheelResult))

	s.router.Handle("GET /health", api(s.healthCheck))

	// Preflight for every API path
	s.router.Handle("OPTIONS /", corsMiddleware(http.NotFoundHandler()))

	if stream != nil {
		s.router.Handle("GET /poker/{code}", stream)
	}
}

// ServeHTTP logs and traces every request before routing it
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WithLogging(s.router).ServeHTTP(w, r)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Database    string           `json:"database"`
	Connections map[string]int   `json:"connections"`
	Sessions    map[string]int   `json:"sessions,omitempty"`
	Events      map[string]int64 `json:"events,omitempty"`
	System      map[string]any   `json:"system"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.database != nil {
		if err := s.database.HealthCheck(ctx); err != nil {
			slog.Error("database health check failed", "error", err)
			status = "unhealthy"
			dbStatus = "unavailable"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
	}
	if s.registry != nil {
		response.Connections = s.registry.GetStats()
	}
	if stats, ok := s.sessions.(interface{ GetStats() map[string]int }); ok {
		response.Sessions = stats.GetStats()
	}
	if s.hub != nil {
		response.Events = s.hub.GetStats()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	response.System = map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"heap":       humanize.Bytes(mem.HeapAlloc),
		"uptime":     humanize.RelTime(s.started, time.Now(), "", ""),
		"started":    humanize.Time(s.started),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

// writeJSON writes v with the given status
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// sendError maps err onto a status and a localized message.
// Errors outside the domain taxonomy are logged and answered with a generic 500.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := types.HTTPStatus(err)
	reason := types.ReasonOf(err)

	var httpErr *requestError
	if errors.As(err, &httpErr) {
		code, reason = httpErr.status, httpErr.reason
	}
	if code == http.StatusInternalServerError || reason == "" {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		code, reason = http.StatusInternalServerError, i18n.ReasonInternal
	}

	s.writeJSON(w, code, ErrorResponse{
		Error:   string(reason),
		Code:    code,
		Message: i18n.ErrorMessage(i18n.ResolveTag(r), reason),
	})
}

// requestError is a transport-level failure outside the domain taxonomy
type requestError struct {
	status int
	reason types.Reason
	cause  error
}

func (e *requestError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.cause)
	}
	return string(e.reason)
}

func (e *requestError) Unwrap() error {
	return e.cause
}

func badRequest(cause error) error {
	return &requestError{status: http.StatusBadRequest, reason: i18n.ReasonBadRequest, cause: cause}
}

var errUnauthorized = &requestError{status: http.StatusUnauthorized, reason: i18n.ReasonUnauthorized}

// identity returns the caller's username from IdentityHeader
func identity(r *http.Request) (string, error) {
	username := r.Header.Get(IdentityHeader)
	if username == "" {
		return "", errUnauthorized
	}
	if !types.IsValidUsername(username) {
		return "", types.ErrInvalidUsername
	}
	return username, nil
}

// decodeBody decodes a JSON body into v; an empty body leaves v untouched
// unless the body is required
func decodeBody(r *http.Request, v any, required bool) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && !required {
		return nil
	}
	if err != nil {
		return badRequest(err)
	}
	return nil
}
