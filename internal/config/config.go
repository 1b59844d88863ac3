// Package config loads the pdfjobs daemon configuration from a YAML file and
// PDFJOBS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-pdfjobs/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Store drivers.
const (
	DriverFS       = "fs"
	DriverPostgres = "postgres"
)

// Limits.
const (
	MaxWorkers  = 64
	MaxBrowsers = 8
)

// Config holds every daemon setting. Durations are Go duration strings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workers   int             `yaml:"workers"`
	Queue     QueueConfig     `yaml:"queue"`
	Upload    UploadConfig    `yaml:"upload"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Templates TemplatesConfig `yaml:"templates"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
	// AllowedOrigins may open the event socket besides the server's own
	// host. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// QueueConfig defines the template queue drain loop.
type QueueConfig struct {
	DrainInterval string `yaml:"drainInterval"`
}

// UploadConfig defines the upload retry.
type UploadConfig struct {
	RetryDelay string `yaml:"retryDelay"`
}

// RendererConfig defines the headless browsers.
type RendererConfig struct {
	Timeout  string `yaml:"timeout"`
	Browsers int    `yaml:"browsers"` // 0 = auto from CPU count
	TempDir  string `yaml:"tempDir"`
}

// TemplatesConfig defines template rendering options.
type TemplatesConfig struct {
	DownloadImages bool `yaml:"downloadImages"`
}

// StoreConfig selects the binary store.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // "fs" or "postgres"
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"databaseURL"`
}

// LogConfig defines logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", ShutdownTimeout: "30s"},
		Workers:  3,
		Queue:    QueueConfig{DrainInterval: "3s"},
		Upload:   UploadConfig{RetryDelay: "500ms"},
		Renderer: RendererConfig{Timeout: "30s"},
		Store:    StoreConfig{Driver: DriverFS, Path: "data"},
		Log:      LogConfig{Level: "info"},
	}
}

// Validate checks ranges, durations and the store selection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidValue)
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be between 1 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Workers)
	}
	if c.Renderer.Browsers < 0 || c.Renderer.Browsers > MaxBrowsers {
		return fmt.Errorf("%w: renderer.browsers must be between 0 and %d, got %d", ErrInvalidValue, MaxBrowsers, c.Renderer.Browsers)
	}

	durations := []struct {
		field, value string
		allowZero    bool
	}{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout, false},
		{"queue.drainInterval", c.Queue.DrainInterval, false},
		{"upload.retryDelay", c.Upload.RetryDelay, true},
		{"renderer.timeout", c.Renderer.Timeout, false},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value, d.allowZero); err != nil {
			return err
		}
	}

	switch c.Store.Driver {
	case DriverFS:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("%w: store.path is required for the fs driver", ErrInvalidValue)
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("%w: store.databaseURL is required for the postgres driver", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: store.driver %q (must be %s or %s)", ErrInvalidValue, c.Store.Driver, DriverFS, DriverPostgres)
	}
	return nil
}

// redacted replaces the database password, or a whole keyword/value DSN,
// in printed configuration.
const redacted = "xxxxx"

// Dump encodes the configuration as YAML with credentials masked.
func (c *Config) Dump() ([]byte, error) {
	out := *c
	if dsn := c.Store.DatabaseURL; dsn != "" {
		u, err := url.Parse(dsn)
		if err != nil || u.Scheme == "" {
			out.Store.DatabaseURL = redacted
		} else {
			out.Store.DatabaseURL = u.Redacted()
		}
	}
	return yamlutil.Marshal(&out)
}

// ShutdownTimeout returns server.shutdownTimeout. Call Validate first.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

// DrainInterval returns queue.drainInterval. Call Validate first.
func (c *Config) DrainInterval() time.Duration {
	d, _ := time.ParseDuration(c.Queue.DrainInterval)
	return d
}

// UploadRetryDelay returns upload.retryDelay. Call Validate first.
func (c *Config) UploadRetryDelay() time.Duration {
	d, _ := time.ParseDuration(c.Upload.RetryDelay)
	return d
}

// RenderTimeout returns renderer.timeout. Call Validate first.
func (c *Config) RenderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Renderer.Timeout)
	return d
}

func parseDuration(field, value string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidValue, field, value)
	}
	return d, nil
}

// envBinding maps one PDFJOBS_* variable onto a field.
type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"PDFJOBS_ADDR", func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{"PDFJOBS_SHUTDOWN_TIMEOUT", func(c *Config, v string) error { c.Server.ShutdownTimeout = v; return nil }},
	{"PDFJOBS_ALLOWED_ORIGINS", func(c *Config, v string) error { c.Server.AllowedOrigins = splitList(v); return nil }},
	{"PDFJOBS_WORKERS", func(c *Config, v string) error { return setInt(&c.Workers, v) }},
	{"PDFJOBS_DRAIN_INTERVAL", func(c *Config, v string) error { c.Queue.DrainInterval = v; return nil }},
	{"PDFJOBS_UPLOAD_RETRY_DELAY", func(c *Config, v string) error { c.Upload.RetryDelay = v; return nil }},
	{"PDFJOBS_RENDER_TIMEOUT", func(c *Config, v string) error { c.Renderer.Timeout = v; return nil }},
	{"PDFJOBS_BROWSERS", func(c *Config, v string) error { return setInt(&c.Renderer.Browsers, v) }},
	{"PDFJOBS_TEMP_DIR", func(c *Config, v string) error { c.Renderer.TempDir = v; return nil }},
	{"PDFJOBS_DOWNLOAD_IMAGES", func(c *Config, v string) error { return setBool(&c.Templates.DownloadImages, v) }},
	{"PDFJOBS_STORE_DRIVER", func(c *Config, v string) error { c.Store.Driver = v; return nil }},
	{"PDFJOBS_STORE_PATH", func(c *Config, v string) error { c.Store.Path = v; return nil }},
	{"PDFJOBS_DATABASE_URL", func(c *Config, v string) error { c.Store.DatabaseURL = v; return nil }},
	{"PDFJOBS_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"PDFJOBS_LOG_PRETTY", func(c *Config, v string) error { return setBool(&c.Log.Pretty, v) }},
}

// EnvNames lists the recognized environment variables.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = b.name
	}
	return names
}

// ApplyEnv overrides fields from PDFJOBS_* variables found by lookup (the
// process environment when nil). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
	}
	*dst = b
	return nil
}

// LoadConfig loads configuration from a file path or config name on top of
// DefaultConfig. If nameOrPath contains a path separator, it's treated as a
// file path; otherwise it is searched in standard locations. ${VAR}
// references in the file are expanded through lookup.
func LoadConfig(nameOrPath string, lookup yamlutil.LookupFunc) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg, lookup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/pdfjobs/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "pdfjobs", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", &NotFoundError{Tried: triedPaths}
}

// NotFoundError lists the paths searched for a named config.
type NotFoundError struct {
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: tried %s", ErrConfigNotFound, strings.Join(e.Tried, ", "))
}

// Unwrap makes errors.Is(err, ErrConfigNotFound) hold.
func (e *NotFoundError) Unwrap() error {
	return ErrConfigNotFound
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
