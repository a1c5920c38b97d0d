package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "AGILETOOLS_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Precedence is defaults < JSON file < environment; the env tags below name the
// variables without EnvPrefix.
type Config struct {
	Database  *DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WS_"`
	Poker     *PokerConfig     `json:"poker" envPrefix:"POKER_"`
	Telemetry *TelemetryConfig `json:"telemetry" envPrefix:"TELEMETRY_"`
	Log       *LogConfig       `json:"log" envPrefix:"LOG_"`
}

// DatabaseConfig selects the sqlite driver and file
type DatabaseConfig struct {
	Driver  string        `json:"driver" env:"DRIVER"`
	Path    string        `json:"path" env:"PATH"`
	Timeout time.Duration `json:"timeout" env:"TIMEOUT"`
}

type HTTPConfig struct {
	Port         int           `json:"port" env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	Host         string        `json:"host" env:"HOST"`
}

// FUNCTIONAL DISCOVERY: Stream heartbeat must fire well inside the read timeout
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize   int           `json:"buffer_size" env:"BUFFER_SIZE"`
}

// PokerConfig tunes estimation sessions. An empty deck means the default deck.
type PokerConfig struct {
	Deck       []string `json:"deck" env:"DECK" envSeparator:","`
	CodeLength int      `json:"code_length" env:"CODE_LENGTH"`
}

type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	Endpoint string `json:"endpoint" env:"ENDPOINT"`
}

// LogConfig selects the slog level (debug, info, warn, error) and format (text, json).
type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
}

// DefaultConfig returns settings that run a single node out of the box
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:  "sqlite3",
			Path:    "./data/agiletools.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Poker: &PokerConfig{
			CodeLength: 6,
		},
		Telemetry: &TelemetryConfig{},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database driver must be sqlite3 or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must be longer than the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Poker == nil {
		return fmt.Errorf("poker configuration is required")
	}
	if c.Poker.CodeLength < 4 || c.Poker.CodeLength > 16 {
		return fmt.Errorf("poker code length must be between 4 and 16")
	}

	if c.Telemetry != nil && c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// LoadFromEnv applies AGILETOOLS_* variables, after a .env file if one exists, over the defaults
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides only the fields whose variables are set.
func applyEnv(config *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Poker     *PokerConfig         `json:"poker"`
	Telemetry *TelemetryConfig     `json:"telemetry"`
	Log       *LogConfig           `json:"log"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

// LoadFromFile reads a JSON file over the defaults and validates the result
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f := file.Database; f != nil {
		setString(&config.Database.Driver, f.Driver)
		setString(&config.Database.Path, f.Path)
		if err := setDuration(&config.Database.Timeout, f.Timeout, "database.timeout"); err != nil {
			return err
		}
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		setString(&config.HTTP.Host, f.Host)
		if err := setDuration(&config.HTTP.ReadTimeout, f.ReadTimeout, "http.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, f.WriteTimeout, "http.write_timeout"); err != nil {
			return err
		}
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		if err := setDuration(&config.WebSocket.PingInterval, f.PingInterval, "websocket.ping_interval"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.ReadTimeout, f.ReadTimeout, "websocket.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.WriteTimeout, f.WriteTimeout, "websocket.write_timeout"); err != nil {
			return err
		}
	}

	if f := file.Poker; f != nil {
		if len(f.Deck) > 0 {
			config.Poker.Deck = f.Deck
		}
		if f.CodeLength > 0 {
			config.Poker.CodeLength = f.CodeLength
		}
	}

	if f := file.Telemetry; f != nil {
		config.Telemetry.Enabled = f.Enabled
		setString(&config.Telemetry.Endpoint, f.Endpoint)
	}

	if f := file.Log; f != nil {
		setString(&config.Log.Level, f.Level)
		setString(&config.Log.Format, f.Format)
	}

	return nil
}

// LoadConfigWithPrecedence layers defaults, the optional file and the environment, then validates
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// NewLogger builds the process logger described by the log section
func (l *LogConfig) NewLogger(w *os.File) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	*dst = d
	return nil
}
