package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultInstance = "work"
	cfg.Delivery.Keepalive = 5 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "work" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "work")
	}
	if loaded.Delivery.Keepalive != 5*time.Second {
		t.Errorf("Keepalive = %v, want 5s", loaded.Delivery.Keepalive)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[http]\naddr = \"127.0.0.1:9000\"\n\n[delivery]\nkeepalive = \"10s\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q, want 127.0.0.1:9000", cfg.HTTP.Addr)
	}
	if cfg.Delivery.Keepalive != 10*time.Second {
		t.Errorf("Keepalive = %v, want 10s", cfg.Delivery.Keepalive)
	}
	if cfg.Delivery.QueueSize != 64 || cfg.Store.Driver != "sqlite" {
		t.Errorf("defaults lost: queue=%d driver=%q", cfg.Delivery.QueueSize, cfg.Store.Driver)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultInstance != "main" || cfg.HTTP.Addr != ":8000" {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WPPRELAY_STORE_DRIVER", "postgres")
	t.Setenv("WPPRELAY_STORE_DSN", "postgres://localhost/relay")
	t.Setenv("WPPRELAY_DELIVERY_QUEUE_SIZE", "8")
	t.Setenv("WPPRELAY_HTTP_ALLOWED_ORIGINS", "example.com,*.example.org")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://localhost/relay" {
		t.Errorf("store = %+v, want postgres from env", cfg.Store)
	}
	if cfg.Delivery.QueueSize != 8 {
		t.Errorf("QueueSize = %d, want 8", cfg.Delivery.QueueSize)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "*.example.org" {
		t.Errorf("AllowedOrigins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongodb" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"negative queue", func(c *Config) { c.Delivery.QueueSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
