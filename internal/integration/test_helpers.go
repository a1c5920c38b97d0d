// Package integration drives a fully wired service over HTTP and the event stream.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agiletools/pkg/types"
)

// IdentityHeader mirrors the header the API reads the caller from
const IdentityHeader = "X-Auth-User"

// Frame is one event received on a stream together with its raw encoding
type Frame struct {
	Event types.Event
	Raw   []byte
}

// StreamClient is a session stream subscriber for tests
type StreamClient struct {
	Username    string
	SessionCode string

	conn      *websocket.Conn
	frames    chan Frame
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// DialStream opens /poker/{code}?username=... on the server at baseURL
func DialStream(ctx context.Context, baseURL, code, username string) (*StreamClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/poker/" + code
	u.RawQuery = url.Values{"username": {username}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &StreamClient{
		Username:    username,
		SessionCode: code,
		conn:        conn,
		frames:      make(chan Frame, 256),
		errors:      make(chan error, 1),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *StreamClient) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				select {
				case c.errors <- fmt.Errorf("read error: %w", err):
				default:
				}
			}
			return
		}

		var frame Frame
		frame.Raw = data
		if err := json.Unmarshal(data, &frame.Event); err != nil {
			continue
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// Next returns the next frame or fails after timeout
func (c *StreamClient) Next(timeout time.Duration) (Frame, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return Frame{}, fmt.Errorf("stream closed")
		}
		return frame, nil
	case <-time.After(timeout):
		return Frame{}, fmt.Errorf("no frame within %v", timeout)
	}
}

// WaitFor skips frames until one of eventType arrives
func (c *StreamClient) WaitFor(eventType string, timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, fmt.Errorf("no %s event within %v", eventType, timeout)
		}
		frame, err := c.Next(remaining)
		if err != nil {
			return Frame{}, fmt.Errorf("waiting for %s: %w", eventType, err)
		}
		if frame.Event.Type == eventType {
			return frame, nil
		}
	}
}

// SendMessage relays a chat message to the session
func (c *StreamClient) SendMessage(content string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(map[string]string{"type": "message", "content": content})
}

// Close closes the stream; safe to call more than once
func (c *StreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// APIClient calls the JSON API as one user
type APIClient struct {
	BaseURL  string
	Username string
	HTTP     *http.Client
}

// NewAPIClient returns a client acting as username
func NewAPIClient(baseURL, username string) *APIClient {
	return &APIClient{BaseURL: baseURL, Username: username, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Do sends body as JSON and decodes a successful response into out.
// It returns the status code; non-2xx responses are not decoded.
func (c *APIClient) Do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Username != "" {
		req.Header.Set(IdentityHeader, c.Username)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
