// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/media-proxy/config.toml",
	"configs/config.toml",
}

// defaultConfigPath is where a default config is written when none is found.
const defaultConfigPath = "config.toml"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='MEDIA_PROXY_CONFIG'"`
	Bind      string `kong:"help='Listen address host:port (overrides config).',env='BIND_ADDR'"`
	UserAgent string `kong:"help='User-Agent sent upstream (overrides config).',env='MEDIA_PROXY_USER_AGENT'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Fetch   FetchConfig   `toml:"fetch"`
	Encode  EncodeConfig  `toml:"encode"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	BindAddr  string          `toml:"bind_addr"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// FetchConfig bounds the upstream retrieval.
type FetchConfig struct {
	TimeoutMillis   int64  `toml:"timeout_ms"`
	UserAgent       string `toml:"user_agent"`
	MaxSize         int64  `toml:"max_size"` // bytes
	IdleConnections int    `toml:"idle_connections"`
}

// EncodeConfig holds WebP encoder settings.
type EncodeConfig struct {
	Quality   float32 `toml:"quality"` // 0 means "use default" (80)
	Lossless  bool    `toml:"lossless"`
	MaxPixels int64   `toml:"max_pixels"` // decode budget per image or animation canvas
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration written to disk when no config file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr: "0.0.0.0:12766",
		},
		Fetch: FetchConfig{
			TimeoutMillis:   1000,
			UserAgent:       "media-proxy-go/1.0",
			MaxSize:         256 * 1024 * 1024,
			IdleConnections: 100,
		},
		Encode: EncodeConfig{
			Quality:   80,
			MaxPixels: 64 * 1024 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or MEDIA_PROXY_CONFIG), it searches
// /etc/media-proxy/config.toml then configs/config.toml, falling back to
// ./config.toml. A missing file is created with the defaults before loading.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// WriteDefault persists Default() as TOML at path, creating parent directories.
func WriteDefault(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write default %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Bind != "" {
		c.Server.BindAddr = cli.Bind
	}
	if cli.UserAgent != "" {
		c.Fetch.UserAgent = cli.UserAgent
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.BindAddr != "" {
		if _, _, err := net.SplitHostPort(c.Server.BindAddr); err != nil {
			return fmt.Errorf("server.bind_addr must be host:port; got %q: %w", c.Server.BindAddr, err)
		}
	}

	// Numeric bounds.
	if c.Fetch.TimeoutMillis < 0 {
		return fmt.Errorf("fetch.timeout_ms must be non-negative; got %d", c.Fetch.TimeoutMillis)
	}
	if c.Fetch.MaxSize < 0 {
		return fmt.Errorf("fetch.max_size must be non-negative; got %d", c.Fetch.MaxSize)
	}
	if c.Fetch.IdleConnections < 0 {
		return fmt.Errorf("fetch.idle_connections must be non-negative; got %d", c.Fetch.IdleConnections)
	}
	if c.Encode.MaxPixels < 0 {
		return fmt.Errorf("encode.max_pixels must be non-negative; got %d", c.Encode.MaxPixels)
	}
	if c.Encode.Quality < 0 || c.Encode.Quality > 100 {
		return fmt.Errorf("encode.quality must be 0–100; got %v", c.Encode.Quality)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if strings.ContainsAny(c.Fetch.UserAgent, "\r\n") {
		return fmt.Errorf("fetch.user_agent must not contain line breaks")
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if p == "/" {
			return fmt.Errorf("metrics.path must not be the root path")
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// As with any TOML integer, zero means "unset": fetch.max_size = 0 results in
// the default cap rather than rejecting every response.
func (c *Config) setDefaults() {
	d := Default()
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = d.Server.BindAddr
	}
	if c.Fetch.TimeoutMillis == 0 {
		c.Fetch.TimeoutMillis = d.Fetch.TimeoutMillis
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = d.Fetch.UserAgent
	}
	if c.Fetch.MaxSize == 0 {
		c.Fetch.MaxSize = d.Fetch.MaxSize
	}
	if c.Fetch.IdleConnections == 0 {
		c.Fetch.IdleConnections = d.Fetch.IdleConnections
	}
	if c.Encode.Quality == 0 {
		c.Encode.Quality = d.Encode.Quality
	}
	if c.Encode.MaxPixels == 0 {
		c.Encode.MaxPixels = d.Encode.MaxPixels
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Timeout returns the upstream fetch timeout.
func (c *FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// FilePath returns the path the configuration was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
