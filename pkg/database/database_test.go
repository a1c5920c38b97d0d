package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Driver = DriverPureGo
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

func migratedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Driver != DriverCGO {
		t.Errorf("Expected driver sqlite3, got %s", config.Driver)
	}
	if config.DatabasePath != "./data/agiletools.db" {
		t.Errorf("Expected DatabasePath './data/agiletools.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.BusyTimeout != 5*time.Second {
		t.Errorf("Expected BusyTimeout 5s, got %v", config.BusyTimeout)
	}
}

func TestConfig_Validation(t *testing.T) {
	mutate := func(fn func(c *Config)) *Config {
		c := DefaultConfig()
		fn(c)
		return c
	}
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"valid config", DefaultConfig(), false},
		{"pure go driver", mutate(func(c *Config) { c.Driver = DriverPureGo }), false},
		{"unknown driver", mutate(func(c *Config) { c.Driver = "postgres" }), true},
		{"empty database path", mutate(func(c *Config) { c.DatabasePath = "" }), true},
		{"zero max connections", mutate(func(c *Config) { c.MaxConnections = 0 }), true},
		{"zero lifetime", mutate(func(c *Config) { c.ConnMaxLifetime = 0 }), true},
		{"negative busy timeout", mutate(func(c *Config) { c.BusyTimeout = -time.Second }), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	c := DefaultConfig()
	c.DatabasePath = "/tmp/x.db"
	if dsn := c.DSN(); !strings.Contains(dsn, "_foreign_keys=on") || !strings.Contains(dsn, "_busy_timeout=5000") {
		t.Errorf("Unexpected sqlite3 DSN: %s", dsn)
	}
	c.Driver = DriverPureGo
	if dsn := c.DSN(); !strings.Contains(dsn, "_pragma=foreign_keys(1)") || !strings.Contains(dsn, "_pragma=busy_timeout(5000)") {
		t.Errorf("Unexpected sqlite DSN: %s", dsn)
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db)

	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	// second run is a no-op
	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("Failed to re-apply migrations: %v", err)
	}

	versions, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("Failed to read applied versions: %v", err)
	}
	if strings.Join(versions, ",") != "001,002" {
		t.Errorf("Expected versions 001,002, got %v", versions)
	}
	if err := mgr.ValidateSchema(); err != nil {
		t.Errorf("Schema validation failed: %v", err)
	}
}

func TestMigrationManager_CustomFS(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	mgr := NewMigrationManagerFS(db, fsys, "m")
	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	versions, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("Failed to read applied versions: %v", err)
	}
	if strings.Join(versions, ",") != "001,002" {
		t.Errorf("Expected versions 001,002, got %v", versions)
	}
	if err := mgr.ValidateSchema(); err == nil {
		t.Error("Expected schema validation to fail without the store tables")
	}
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_broken.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); NOT SQL;")},
	}
	mgr := NewMigrationManagerFS(db, fsys, "")
	if err := mgr.ApplyMigrations(); err == nil {
		t.Fatal("Expected broken migration to fail")
	}
	versions, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("Failed to read applied versions: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Expected no recorded versions, got %v", versions)
	}
}
