package interfaces

// Connection represents a live stream connection for one user in one session
// ARCHITECTURAL DISCOVERY: Implementations serialize writes through a single writer
// so Send and WriteJSON are safe from any goroutine
type Connection interface {
	// Send queues pre-encoded data without blocking; it fails when the buffer is full
	Send(data []byte) error

	// WriteJSON encodes v and queues it, waiting up to the write timeout
	WriteJSON(v interface{}) error

	// Close closes the connection; safe to call more than once
	Close() error

	GetUsername() string
	GetSessionCode() string
	IsAuthenticated() bool

	// SetCredentials binds the connection to a username and session code after validation
	SetCredentials(username, sessionCode string) error
}
