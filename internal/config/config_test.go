package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.Database = nil }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero database timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"missing http", func(c *Config) { c.HTTP = nil }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.HTTP.WriteTimeout = 0 }},
		{"missing websocket", func(c *Config) { c.WebSocket = nil }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"read timeout below ping interval", func(c *Config) {
			c.WebSocket.PingInterval = 30 * time.Second
			c.WebSocket.ReadTimeout = 10 * time.Second
		}},
		{"zero websocket write timeout", func(c *Config) { c.WebSocket.WriteTimeout = 0 }},
		{"zero buffer size", func(c *Config) { c.WebSocket.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PROCTORBOARD_HTTP_HOST", "127.0.0.1")
	t.Setenv("PROCTORBOARD_HTTP_PORT", "9090")
	t.Setenv("PROCTORBOARD_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("PROCTORBOARD_DATABASE_TIMEOUT", "45s")
	t.Setenv("PROCTORBOARD_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("PROCTORBOARD_WEBSOCKET_BUFFER_SIZE", "250")

	config := LoadFromEnv()

	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("got host %q, want 127.0.0.1", config.HTTP.Host)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("got port %d, want 9090", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("got database path %q, want /tmp/test.db", config.Database.Path)
	}
	if config.Database.Timeout != 45*time.Second {
		t.Errorf("got database timeout %v, want 45s", config.Database.Timeout)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("got ping interval %v, want 15s", config.WebSocket.PingInterval)
	}
	if config.WebSocket.BufferSize != 250 {
		t.Errorf("got buffer size %d, want 250", config.WebSocket.BufferSize)
	}
	// Untouched values keep their defaults.
	if config.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("got read timeout %v, want default 30s", config.HTTP.ReadTimeout)
	}
}

func TestLoadFromEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("PROCTORBOARD_HTTP_PORT", "not-a-number")
	t.Setenv("PROCTORBOARD_DATABASE_TIMEOUT", "soon")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("got port %d, want default 8080", config.HTTP.Port)
	}
	if config.Database.Timeout != 30*time.Second {
		t.Errorf("got database timeout %v, want default 30s", config.Database.Timeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		"database": {"path": "/data/sessions.db", "timeout": "1m"},
		"http": {"host": "10.0.0.5", "port": 8888, "read_timeout": "20s"},
		"websocket": {"ping_interval": "10s", "read_timeout": "25s", "buffer_size": 50}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config file: %v", err)
	}

	if config.Database.Path != "/data/sessions.db" {
		t.Errorf("got database path %q, want /data/sessions.db", config.Database.Path)
	}
	if config.Database.Timeout != time.Minute {
		t.Errorf("got database timeout %v, want 1m", config.Database.Timeout)
	}
	if config.HTTP.Host != "10.0.0.5" || config.HTTP.Port != 8888 {
		t.Errorf("got %s:%d, want 10.0.0.5:8888", config.HTTP.Host, config.HTTP.Port)
	}
	if config.HTTP.ReadTimeout != 20*time.Second {
		t.Errorf("got read timeout %v, want 20s", config.HTTP.ReadTimeout)
	}
	if config.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("got ping interval %v, want 10s", config.WebSocket.PingInterval)
	}
	if config.WebSocket.BufferSize != 50 {
		t.Errorf("got buffer size %d, want 50", config.WebSocket.BufferSize)
	}
	// Unset file values keep their defaults.
	if config.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("got write timeout %v, want default 30s", config.HTTP.WriteTimeout)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	badJSON := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badJSON, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadFromFile(badJSON); err == nil {
		t.Error("expected error for malformed JSON")
	}

	// A file that parses but validates badly is rejected too.
	invalid := filepath.Join(t.TempDir(), "invalid.json")
	contents := `{"websocket": {"ping_interval": "2m", "read_timeout": "30s"}}`
	if err := os.WriteFile(invalid, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadFromFile(invalid); err == nil {
		t.Error("expected error for ping interval exceeding read timeout")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("PROCTORBOARD_HTTP_PORT", "9001")

	// File wins over the environment.
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 9002}}`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config := LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 9002 {
		t.Errorf("got port %d, want file value 9002", config.HTTP.Port)
	}

	// Without a file the environment wins.
	config = LoadConfigWithPrecedence("")
	if config.HTTP.Port != 9001 {
		t.Errorf("got port %d, want env value 9001", config.HTTP.Port)
	}

	// An unreadable file falls back to the environment.
	config = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "nope.json"))
	if config.HTTP.Port != 9001 {
		t.Errorf("got port %d, want env value 9001", config.HTTP.Port)
	}
}
