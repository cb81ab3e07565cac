// Package config loads dmserver settings from a TOML file and DM_*
// environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// Config is the daemon configuration. Zero paths are derived from DataDir.
type Config struct {
	ListenAddr     string        `toml:"listen_addr" env:"DM_LISTEN_ADDR"`
	MetricsAddr    string        `toml:"metrics_addr" env:"DM_METRICS_ADDR"`
	DataDir        string        `toml:"data_dir" env:"DM_DATA_DIR"`
	AdminSocket    string        `toml:"admin_socket,omitempty" env:"DM_ADMIN_SOCKET"`
	LogLevel       string        `toml:"log_level" env:"DM_LOG_LEVEL"`
	JWTSecret      string        `toml:"jwt_secret" env:"DM_JWT_SECRET"`
	AllowedOrigins []string      `toml:"allowed_origins" env:"DM_ALLOWED_ORIGINS"`
	SessionBuffer  int           `toml:"session_buffer" env:"DM_SESSION_BUFFER"`
	StatusRetries  int           `toml:"status_retries" env:"DM_STATUS_RETRIES"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"DM_REQUEST_TIMEOUT"`
	WriteTimeout   time.Duration `toml:"write_timeout" env:"DM_WRITE_TIMEOUT"`
	PingInterval   time.Duration `toml:"ping_interval" env:"DM_PING_INTERVAL"`
}

// BaseDir returns ~/.dmserver.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dmserver")
}

// DefaultPath returns the config file path inside BaseDir.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Default returns the built-in settings. JWTSecret is left empty.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MetricsAddr:    ":8081",
		DataDir:        BaseDir(),
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		SessionBuffer:  64,
		StatusRetries:  3,
		RequestTimeout: 10 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overrides fields with the DM_* variables found by l. A nil l
// reads the process environment.
func (c *Config) ApplyEnv(ctx context.Context, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           c,
		Lookuper:         l,
		DefaultOverwrite: true,
	}); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

// Read loads path when it exists, falls back to Default otherwise, then
// applies the environment.
func Read(ctx context.Context, path string, l envconfig.Lookuper) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(ctx, l); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve is Read followed by Validate.
func Resolve(ctx context.Context, path string, l envconfig.Lookuper) (*Config, error) {
	cfg, err := Read(ctx, path, l)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.SessionBuffer <= 0 {
		errs = append(errs, fmt.Errorf("session_buffer must be positive, got %d", c.SessionBuffer))
	}
	if c.StatusRetries <= 0 {
		errs = append(errs, fmt.Errorf("status_retries must be positive, got %d", c.StatusRetries))
	}
	for name, d := range map[string]time.Duration{
		"request_timeout": c.RequestTimeout,
		"write_timeout":   c.WriteTimeout,
		"ping_interval":   c.PingInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "dm.db")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "dmserverd.log")
}

// AdminSocketPath returns the admin gRPC socket path.
func (c *Config) AdminSocketPath() string {
	if c.AdminSocket != "" {
		return c.AdminSocket
	}
	return filepath.Join(c.DataDir, "admin.sock")
}

// EnsureDirs creates the data directory tree with proper permissions.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.DataDir, filepath.Dir(c.LogPath())} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
