package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestConnection(t *testing.T, username, code string) *Connection {
	t.Helper()
	conn := NewConnection(createTestWebSocketConnection(t), DefaultOptions())
	if username != "" {
		_ = conn.SetCredentials(username, code)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Functional Validation Tests
func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := NewRegistry()

	stats := registry.GetStats()
	if stats["total_connections"] != 0 || stats["active_sessions"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestRegistry_RegisterConnectionValidation(t *testing.T) {
	registry := NewRegistry()

	if err := registry.RegisterConnection(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}

	unauthenticated := newTestConnection(t, "", "")
	if err := registry.RegisterConnection(unauthenticated); err != ErrConnectionNotAuthenticated {
		t.Errorf("Expected ErrConnectionNotAuthenticated, got %v", err)
	}
}

func TestRegistry_SessionScoping(t *testing.T) {
	registry := NewRegistry()

	alice := newTestConnection(t, "alice", "AAAAAA")
	bob := newTestConnection(t, "bob", "AAAAAA")
	carol := newTestConnection(t, "carol", "BBBBBB")
	for _, c := range []*Connection{alice, bob, carol} {
		if err := registry.RegisterConnection(c); err != nil {
			t.Fatalf("RegisterConnection failed: %v", err)
		}
	}

	if n := len(registry.GetSessionConnections("AAAAAA")); n != 2 {
		t.Errorf("Expected 2 connections in AAAAAA, got %d", n)
	}
	if registry.SessionConnectionCount("BBBBBB") != 1 {
		t.Error("Expected 1 connection in BBBBBB")
	}
	if !registry.IsConnected("AAAAAA", "bob") || registry.IsConnected("BBBBBB", "bob") {
		t.Error("IsConnected must be scoped by session")
	}
	if n := len(registry.GetSessionConnections("ZZZZZZ")); n != 0 {
		t.Errorf("Expected no connections for unknown session, got %d", n)
	}

	stats := registry.GetStats()
	if stats["total_connections"] != 3 || stats["active_sessions"] != 2 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestRegistry_SameUserInTwoSessions(t *testing.T) {
	registry := NewRegistry()

	first := newTestConnection(t, "alice", "AAAAAA")
	second := newTestConnection(t, "alice", "BBBBBB")
	_ = registry.RegisterConnection(first)
	_ = registry.RegisterConnection(second)

	if !registry.IsConnected("AAAAAA", "alice") || !registry.IsConnected("BBBBBB", "alice") {
		t.Error("a user may hold one stream per session")
	}
}

func TestRegistry_ReplacementClosesOldConnection(t *testing.T) {
	registry := NewRegistry()

	old := newTestConnection(t, "alice", "AAAAAA")
	replacement := newTestConnection(t, "alice", "AAAAAA")
	_ = registry.RegisterConnection(old)
	_ = registry.RegisterConnection(replacement)

	select {
	case <-old.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced connection should be closed")
	}

	// RACE CONDITION FIX validation: old connection cleanup must not remove its successor
	if registry.UnregisterConnection(old) {
		t.Error("unregistering a replaced connection should be a no-op")
	}
	if !registry.IsConnected("AAAAAA", "alice") {
		t.Error("replacement should still be registered")
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := newTestConnection(t, "alice", "AAAAAA")
	_ = registry.RegisterConnection(conn)

	if !registry.UnregisterConnection(conn) {
		t.Error("first unregister should remove the connection")
	}
	if registry.UnregisterConnection(conn) {
		t.Error("second unregister should report nothing removed")
	}
	if registry.UnregisterConnection(nil) {
		t.Error("nil unregister should report nothing removed")
	}
	if registry.GetStats()["active_sessions"] != 0 {
		t.Error("empty session maps should be cleaned up")
	}
}

// Technical Validation Tests (Race Detection)
func TestRegistry_ConcurrentOperations(t *testing.T) {
	registry := NewRegistry()

	const n = 20
	conns := make([]*Connection, n)
	for i := range conns {
		conns[i] = newTestConnection(t, fmt.Sprintf("user%d", i), "AAAAAA")
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(2)
		go func(c *Connection) {
			defer wg.Done()
			_ = registry.RegisterConnection(c)
		}(c)
		go func() {
			defer wg.Done()
			_ = registry.GetSessionConnections("AAAAAA")
			_ = registry.IsConnected("AAAAAA", "user0")
		}()
	}
	wg.Wait()

	if registry.SessionConnectionCount("AAAAAA") != n {
		t.Errorf("Expected %d connections, got %d", n, registry.SessionConnectionCount("AAAAAA"))
	}

	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			registry.UnregisterConnection(c)
		}(c)
	}
	wg.Wait()

	if registry.GetStats()["total_connections"] != 0 {
		t.Error("all connections should be unregistered")
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()
	a := newTestConnection(t, "alice", "ABC234")
	b := newTestConnection(t, "bob", "XYZ789")
	_ = registry.RegisterConnection(a)
	_ = registry.RegisterConnection(b)

	if closed := registry.CloseAll(); closed != 2 {
		t.Errorf("Expected 2 closed connections, got %d", closed)
	}
	for _, conn := range []*Connection{a, b} {
		select {
		case <-conn.Done():
		default:
			t.Errorf("Connection %s should be closed", conn.GetUsername())
		}
	}
}
