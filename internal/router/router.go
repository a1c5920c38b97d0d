package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

var _ interfaces.MessageRouter = (*Router)(nil)

// inboundMessage is the only frame shape clients may send on the stream.
type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Router implements the MessageRouter interface
// ARCHITECTURAL DISCOVERY: Pure validation and event construction; delivery belongs
// to the hub, which broadcasts whatever event the router returns
type Router struct {
	presence    interfaces.Presence
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewRouter creates a new message router. presence may be nil in tests.
func NewRouter(presence interfaces.Presence, limiter *RateLimiter) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	return &Router{
		presence:    presence,
		rateLimiter: limiter,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RouteMessage validates a client frame and returns the message event to relay
// FUNCTIONAL DISCOVERY: Server stamps id, author and time; anything the client sent
// besides type and content is ignored
func (r *Router) RouteMessage(ctx context.Context, sender interfaces.Connection, data []byte) (*types.Event, error) {
	if sender == nil || !sender.IsAuthenticated() {
		return nil, ErrSenderNotAuthenticated
	}
	code := sender.GetSessionCode()
	username := sender.GetUsername()

	if r.presence != nil && !r.presence.IsConnected(code, username) {
		return nil, ErrSenderNotConnected
	}

	msg, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if msg.Type != types.EventMessage {
		return nil, ErrInvalidMessageType
	}
	if err := validateContent(msg.Content); err != nil {
		return nil, err
	}

	// TECHNICAL DISCOVERY: Rate limiting applied after validation so malformed
	// frames do not consume the sender's budget
	if !r.rateLimiter.Allow(code + "/" + username) {
		return nil, ErrRateLimitExceeded
	}

	slog.Debug("relaying message", "session_code", code, "username", username, "bytes", len(msg.Content))
	return &types.Event{
		ID:          uuid.New().String(),
		Type:        types.EventMessage,
		SessionCode: code,
		Username:    username,
		Content:     msg.Content,
		Timestamp:   r.now(),
	}, nil
}

// StartCleanup prunes idle rate limiter entries until ctx is done.
func (r *Router) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.rateLimiter.Cleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeFrame(data []byte) (*inboundMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidFrame
	}
	var msg inboundMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, ErrInvalidFrame
	}
	return &msg, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" || len(content) > types.MaxMessageContent {
		return types.ErrInvalidMessage
	}
	return nil
}
