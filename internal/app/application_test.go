package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agiletools/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "agiletools.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	return cfg
}

// FUNCTIONAL VALIDATION TEST: Invalid configuration is rejected before any component starts
func TestApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Poker.CodeLength = 1

	if _, err := NewApplication(cfg); err == nil {
		t.Error("Expected configuration error")
	}
}

// FUNCTIONAL VALIDATION TEST: Start serves the API on the bound address and Stop releases it
func TestApplication_StartStop(t *testing.T) {
	app, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Start(context.Background()); err == nil {
		t.Error("Second Start should fail")
	}

	addr := app.Addr()
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Expected bound port, got %s", addr)
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil || health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q (%v)", health.Status, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Repeated Stop should be harmless: %v", err)
	}

	if _, err := http.Get("http://" + addr + "/health"); err == nil {
		t.Error("Server should not accept requests after Stop")
	}
}

// FUNCTIONAL VALIDATION TEST: Sessions survive a restart on the same database file
func TestApplication_WarmsActiveSessions(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	created, err := first.Sessions().CreateSession(context.Background(), "Sprint 9", "", "alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := first.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer second.Stop(context.Background())

	if stats := second.Sessions().GetStats(); stats["cached_sessions"] != 1 {
		t.Errorf("Expected 1 warmed session, got %v", stats)
	}
	got, err := second.Sessions().GetSession(context.Background(), created.Code)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.IsFacilitator("alice") {
		t.Error("Facilitator should survive restart")
	}
}

// FUNCTIONAL VALIDATION TEST: Run returns once its context is cancelled
func TestApplication_Run(t *testing.T) {
	app, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, 5*time.Second) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
