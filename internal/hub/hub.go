package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"agiletools/internal/websocket"
	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

// DefaultPublishTimeout bounds how long Publish waits for room in the event queue.
const DefaultPublishTimeout = 250 * time.Millisecond

var (
	_ interfaces.Notifier  = (*Hub)(nil)
	_ websocket.Dispatcher = (*Hub)(nil)
)

// Hub fans session events out to stream connections
// ARCHITECTURAL DISCOVERY: Central coordination point for all outbound traffic.
// Publishers only enqueue; one goroutine marshals each event once and hands the
// bytes to every connection of the session, so a slow socket can delay nobody.
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channels absorb bursts such as a whole team voting at once
	eventChannel      chan eventBatch
	messageChannel    chan inboundFrame
	unregisterChannel chan *websocket.Connection

	registry       *websocket.Registry
	router         interfaces.MessageRouter
	now            func() time.Time
	publishTimeout time.Duration

	running  bool
	shutdown chan struct{}
	stopped  chan struct{}
	mu       sync.RWMutex

	published atomic.Int64
	relayed   atomic.Int64
	dropped   atomic.Int64
}

// eventBatch keeps the events of one transition together and in order
type eventBatch struct {
	sessionCode string
	events      []types.Event
}

type inboundFrame struct {
	sender interfaces.Connection
	data   []byte
}

// NewHub creates a new hub. router may be nil, in which case inbound frames are rejected.
func NewHub(registry *websocket.Registry, router interfaces.MessageRouter) *Hub {
	return &Hub{
		eventChannel:      make(chan eventBatch, 1000),
		messageChannel:    make(chan inboundFrame, 1000),
		unregisterChannel: make(chan *websocket.Connection, 100),
		registry:          registry,
		router:            router,
		now:               func() time.Time { return time.Now().UTC() },
		publishTimeout:    DefaultPublishTimeout,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.stopped = make(chan struct{})

	slog.Info("starting event hub")
	go h.run(ctx, h.shutdown, h.stopped)
	return nil
}

// Stop shuts the loop down and waits for it to exit. Queued work is discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	stopped := h.stopped
	h.mu.Unlock()

	<-stopped
	slog.Info("event hub stopped")
	return nil
}

// Publish queues events for delivery to every connection of the session.
// The caller holds the session lock, so a full queue is waited on for at
// most publishTimeout before the batch is refused.
func (h *Hub) Publish(sessionCode string, events ...types.Event) error {
	if len(events) == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	batch := eventBatch{sessionCode: sessionCode, events: events}
	select {
	case h.eventChannel <- batch:
		return nil
	default:
	}

	// TECHNICAL DISCOVERY: a committed transition whose event is lost leaves
	// clients on a stale snapshot, so ride out short bursts before giving up
	timer := time.NewTimer(h.publishTimeout)
	defer timer.Stop()
	select {
	case h.eventChannel <- batch:
		return nil
	case <-timer.C:
		return ErrEventChannelFull
	}
}

// SendMessage queues an inbound client frame for validation and relay
func (h *Hub) SendMessage(sender interfaces.Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.messageChannel <- inboundFrame{sender: sender, data: data}:
		return nil
	default:
		return ErrMessageChannelFull
	}
}

// UnregisterConnection queues a closed connection for removal; the hub then
// announces user_left if it was still the user's current stream
func (h *Hub) UnregisterConnection(conn *websocket.Connection) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.unregisterChannel <- conn:
		return nil
	default:
		return ErrUnregisterChannelFull
	}
}

// GetStats returns delivery counters for monitoring
func (h *Hub) GetStats() map[string]int64 {
	return map[string]int64{
		"events_published":    h.published.Load(),
		"messages_relayed":    h.relayed.Load(),
		"connections_dropped": h.dropped.Load(),
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		select {
		case batch := <-h.eventChannel:
			for _, event := range batch.events {
				h.broadcast(batch.sessionCode, event)
				h.published.Add(1)
			}

		case frame := <-h.messageChannel:
			h.handleMessage(ctx, frame)

		case conn := <-h.unregisterChannel:
			h.drop(conn)

		case <-shutdown:
			return

		case <-ctx.Done():
			slog.Info("event hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, frame inboundFrame) {
	if h.router == nil {
		h.sendError(frame.sender, errors.New("relay disabled"))
		return
	}
	event, err := h.router.RouteMessage(ctx, frame.sender, frame.data)
	if err != nil {
		slog.Debug("inbound frame rejected", "username", frame.sender.GetUsername(),
			"session_code", frame.sender.GetSessionCode(), "error", err)
		h.sendError(frame.sender, err)
		return
	}
	h.broadcast(event.SessionCode, *event)
	h.relayed.Add(1)
}

// broadcast delivers to every connection and drops the ones that cannot keep up
func (h *Hub) broadcast(sessionCode string, event types.Event) {
	for _, conn := range h.deliver(sessionCode, event) {
		h.drop(conn)
	}
}

// deliver returns the connections whose Send failed.
func (h *Hub) deliver(sessionCode string, event types.Event) []*websocket.Connection {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "type", event.Type, "error", err)
		return nil
	}

	var failed []*websocket.Connection
	for _, conn := range h.registry.GetSessionConnections(sessionCode) {
		if err := conn.Send(data); err != nil {
			slog.Warn("event delivery failed", "username", conn.GetUsername(),
				"session_code", sessionCode, "type", event.Type, "error", err)
			failed = append(failed, conn)
		}
	}
	return failed
}

// drop closes and unregisters conn. If it was the user's current stream the
// rest of the session hears user_left; the participant set is untouched.
func (h *Hub) drop(conn *websocket.Connection) {
	if conn == nil {
		return
	}
	_ = conn.Close()
	if !h.registry.UnregisterConnection(conn) {
		return
	}
	h.dropped.Add(1)

	code := conn.GetSessionCode()
	left := types.Event{
		ID:          uuid.New().String(),
		Type:        types.EventUserLeft,
		SessionCode: code,
		Username:    conn.GetUsername(),
		Timestamp:   h.now(),
	}
	slog.Info("stream disconnected", "username", left.Username, "session_code", code)

	// failures here are closed without another announcement
	for _, failed := range h.deliver(code, left) {
		_ = failed.Close()
		if h.registry.UnregisterConnection(failed) {
			h.dropped.Add(1)
		}
	}
}

// sendError reports a rejected frame to its sender only
func (h *Hub) sendError(sender interfaces.Connection, routingErr error) {
	payload := map[string]interface{}{
		"type":      "error",
		"error":     routingErr.Error(),
		"timestamp": h.now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := sender.Send(data); err != nil {
		slog.Debug("failed to send error frame", "username", sender.GetUsername(), "error", err)
	}
}
