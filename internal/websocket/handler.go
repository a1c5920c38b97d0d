package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agiletools/internal/poker"
	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

// Dispatcher receives what the read pump produces: inbound frames and the disconnect.
type Dispatcher interface {
	SendMessage(sender interfaces.Connection, data []byte) error
	UnregisterConnection(conn *Connection) error
}

// Handler upgrades stream requests and runs one read pump per connection
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters -> session -> upgrade ->
// register -> join) keeps invalid requests from consuming a socket
type Handler struct {
	registry   *Registry
	sessions   interfaces.SessionManager
	machine    *poker.Machine
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. dispatcher may be nil, in which
// case inbound frames are dropped and disconnects go straight to the registry.
func NewHandler(registry *Registry, sessions interfaces.SessionManager, machine *poker.Machine, dispatcher Dispatcher, opts Options) *Handler {
	if machine == nil {
		machine = poker.NewMachine(nil)
	}
	return &Handler{
		registry:   registry,
		sessions:   sessions,
		machine:    machine,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Allow all origins; the API layer applies CORS for plain requests
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleWebSocket serves /poker/{code}?username=...
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	username := r.URL.Query().Get("username")

	if code == "" || username == "" {
		http.Error(w, "Missing required parameters: code, username", http.StatusBadRequest)
		return
	}
	if !types.IsValidUsername(username) {
		http.Error(w, "Invalid username format", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), code)
	if err != nil {
		status := types.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("stream session lookup failed", "session_code", code, "error", err)
			http.Error(w, "Session validation failed", status)
			return
		}
		http.Error(w, "Session not found", status)
		return
	}
	if !session.IsActive() {
		http.Error(w, "Session is completed", http.StatusConflict)
		return
	}

	// Upgrade to WebSocket
	// FUNCTIONAL DISCOVERY: Upgrade after validation so invalid requests get plain HTTP errors
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_code", code, "error", err)
		return
	}

	conn := NewConnection(ws, h.opts)
	if err := conn.SetCredentials(username, code); err != nil {
		slog.Error("failed to set credentials", "error", err)
		_ = conn.Close()
		return
	}

	// Register before joining so the user_joined event reaches the new connection too
	if err := h.registry.RegisterConnection(conn); err != nil {
		slog.Error("failed to register connection", "username", username, "session_code", code, "error", err)
		_ = conn.Close()
		return
	}

	if _, _, err := h.sessions.Apply(context.Background(), code, h.machine.Join(username)); err != nil {
		slog.Warn("stream join rejected", "username", username, "session_code", code, "error", err)
		h.disconnect(conn)
		return
	}

	slog.Info("stream connected", "username", username, "session_code", code)
	go h.handleConnection(conn)
}

// handleConnection runs the read pump with heartbeat monitoring until the socket fails
func (h *Handler) handleConnection(conn *Connection) {
	defer h.disconnect(conn)

	ws := conn.conn
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("stream read failed", "username", conn.GetUsername(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage || h.dispatcher == nil {
			continue
		}
		if err := h.dispatcher.SendMessage(conn, data); err != nil {
			slog.Warn("inbound frame dropped", "username", conn.GetUsername(), "session_code", conn.GetSessionCode(), "error", err)
		}
	}
}

// pingLoop uses WriteControl, which gorilla allows concurrently with the writer goroutine
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					slog.Debug("ping failed", "username", conn.GetUsername(), "error", err)
				}
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// disconnect hands the connection to the dispatcher, which emits the lifecycle
// event; without one the registry entry is dropped directly.
func (h *Handler) disconnect(conn *Connection) {
	_ = conn.Close()
	if h.dispatcher != nil {
		if err := h.dispatcher.UnregisterConnection(conn); err == nil {
			return
		}
	}
	h.registry.UnregisterConnection(conn)
}
