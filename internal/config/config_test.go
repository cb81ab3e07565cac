package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.JWTSecret = "s3cret"
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	cfg.PingInterval = 15 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q, want %q", loaded.JWTSecret, "s3cret")
	}
	if loaded.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %s, want 15s", loaded.PingInterval)
	}
	if len(loaded.AllowedOrigins) != 1 || loaded.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", loaded.AllowedOrigins)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("jwt_secret = \"x\"\nrequest_timeout = \"2s\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %s, want 2s", cfg.RequestTimeout)
	}
	if cfg.SessionBuffer != 64 || cfg.ListenAddr != ":8080" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
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

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "from-file"
	l := envconfig.MapLookuper(map[string]string{
		"DM_JWT_SECRET":      "from-env",
		"DM_SESSION_BUFFER":  "8",
		"DM_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"DM_WRITE_TIMEOUT":   "250ms",
	})
	if err := cfg.ApplyEnv(context.Background(), l); err != nil {
		t.Fatal(err)
	}

	if cfg.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %q, want from-env", cfg.JWTSecret)
	}
	if cfg.SessionBuffer != 8 {
		t.Errorf("SessionBuffer = %d, want 8", cfg.SessionBuffer)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two entries", cfg.AllowedOrigins)
	}
	if cfg.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %s, want 250ms", cfg.WriteTimeout)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("unset variable overwrote ListenAddr: %q", cfg.ListenAddr)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	l := envconfig.MapLookuper(map[string]string{"DM_JWT_SECRET": "k"})
	cfg, err := Resolve(context.Background(), filepath.Join(t.TempDir(), "absent.toml"), l)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JWTSecret != "k" {
		t.Errorf("JWTSecret = %q, want k", cfg.JWTSecret)
	}
}

func TestResolveRequiresSecret(t *testing.T) {
	_, err := Resolve(context.Background(), "", envconfig.MapLookuper(nil))
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Resolve() error = %v, want jwt_secret error", err)
	}

	cfg, err := Read(context.Background(), "", envconfig.MapLookuper(nil))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.JWTSecret != "" {
		t.Errorf("JWTSecret = %q, want empty", cfg.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "jwt_secret"},
		{"zero buffer", func(c *Config) { c.SessionBuffer = 0 }, "session_buffer"},
		{"negative retries", func(c *Config) { c.StatusRetries = -1 }, "status_retries"},
		{"zero ping", func(c *Config) { c.PingInterval = 0 }, "ping_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.JWTSecret = "secret"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataDir: "/srv/dm"}
	if got := cfg.DBPath(); got != filepath.Join("/srv/dm", "dm.db") {
		t.Errorf("DBPath() = %q", got)
	}
	if got := cfg.AdminSocketPath(); got != filepath.Join("/srv/dm", "admin.sock") {
		t.Errorf("AdminSocketPath() = %q", got)
	}
	cfg.AdminSocket = "/run/dm.sock"
	if got := cfg.AdminSocketPath(); got != "/run/dm.sock" {
		t.Errorf("AdminSocketPath() override = %q", got)
	}
	if !strings.HasSuffix(cfg.LogPath(), filepath.Join("logs", "dmserverd.log")) {
		t.Errorf("LogPath() = %q", cfg.LogPath())
	}
}
