package config

// Notes:
// - resolveConfigPath tests change the working directory with t.Chdir, so
//   they cannot run in parallel.
// - The user config directory branch is not exercised: it depends on the
//   machine's HOME layout.

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-pdfjobs/internal/yamlutil"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// TestDefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.DrainInterval() != 3*time.Second {
		t.Errorf("DrainInterval() = %v, want 3s", cfg.DrainInterval())
	}
	if cfg.UploadRetryDelay() != 500*time.Millisecond {
		t.Errorf("UploadRetryDelay() = %v, want 500ms", cfg.UploadRetryDelay())
	}
	if cfg.RenderTimeout() != 30*time.Second || cfg.ShutdownTimeout() != 30*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/30s", cfg.RenderTimeout(), cfg.ShutdownTimeout())
	}
}

// ---------------------------------------------------------------------------
// TestValidate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero retry delay", mutate: func(c *Config) { c.Upload.RetryDelay = "0s" }},
		{name: "postgres with url", mutate: func(c *Config) {
			c.Store = StoreConfig{Driver: DriverPostgres, DatabaseURL: "postgres://localhost/pdf"}
		}},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = " " }, wantErr: "server.addr"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers"},
		{name: "too many workers", mutate: func(c *Config) { c.Workers = MaxWorkers + 1 }, wantErr: "workers"},
		{name: "negative browsers", mutate: func(c *Config) { c.Renderer.Browsers = -1 }, wantErr: "renderer.browsers"},
		{name: "bad duration", mutate: func(c *Config) { c.Queue.DrainInterval = "soon" }, wantErr: "queue.drainInterval"},
		{name: "zero drain interval", mutate: func(c *Config) { c.Queue.DrainInterval = "0s" }, wantErr: "queue.drainInterval"},
		{name: "negative retry delay", mutate: func(c *Config) { c.Upload.RetryDelay = "-1s" }, wantErr: "upload.retryDelay"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "s3" }, wantErr: "store.driver"},
		{name: "fs without path", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: "store.path"},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.Driver = DriverPostgres }, wantErr: "store.databaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidValue) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want ErrInvalidValue mentioning %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestApplyEnv
// ---------------------------------------------------------------------------

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PDFJOBS_ADDR":            "127.0.0.1:9000",
		"PDFJOBS_WORKERS":         " 6 ",
		"PDFJOBS_DRAIN_INTERVAL":  "1s",
		"PDFJOBS_DOWNLOAD_IMAGES": "true",
		"PDFJOBS_STORE_DRIVER":    "postgres",
		"PDFJOBS_DATABASE_URL":    "postgres://db/pdf",
		"PDFJOBS_LOG_PRETTY":      "1",
		"PDFJOBS_LOG_LEVEL":       "",
		"PDFJOBS_ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Workers != 6 || cfg.DrainInterval() != time.Second {
		t.Errorf("server/workers/drain = %q/%d/%v", cfg.Server.Addr, cfg.Workers, cfg.DrainInterval())
	}
	if !cfg.Templates.DownloadImages || !cfg.Log.Pretty {
		t.Error("boolean overrides not applied")
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.DatabaseURL != "postgres://db/pdf" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("empty PDFJOBS_LOG_LEVEL overrode level: %q", cfg.Log.Level)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.Server.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %q, want %q", cfg.Server.AllowedOrigins, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after env error = %v", err)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"PDFJOBS_WORKERS":         "many",
		"PDFJOBS_BROWSERS":        "2.5",
		"PDFJOBS_DOWNLOAD_IMAGES": "maybe",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := DefaultConfig().ApplyEnv(envMap(map[string]string{name: value}))
			if !errors.Is(err, ErrInvalidValue) || !strings.Contains(err.Error(), name) {
				t.Errorf("ApplyEnv(%s=%s) error = %v", name, value, err)
			}
		})
	}
}

func TestEnvNames(t *testing.T) {
	t.Parallel()

	for _, name := range EnvNames() {
		if !strings.HasPrefix(name, "PDFJOBS_") {
			t.Errorf("env name %q lacks PDFJOBS_ prefix", name)
		}
	}
}

// ---------------------------------------------------------------------------
// TestDump
// ---------------------------------------------------------------------------

func TestDump(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dsn     string
		wantDSN string
	}{
		{name: "no database", dsn: "", wantDSN: ""},
		{name: "url password masked", dsn: "postgres://pdf:s3cret@db:5432/pdf", wantDSN: "postgres://pdf:xxxxx@db:5432/pdf"},
		{name: "keyword dsn masked", dsn: "host=db user=pdf password=s3cret", wantDSN: "xxxxx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Workers = 5
			cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
			cfg.Store.DatabaseURL = tt.dsn

			data, err := cfg.Dump()
			if err != nil {
				t.Fatalf("Dump() error = %v", err)
			}
			if strings.Contains(string(data), "s3cret") {
				t.Errorf("Dump() leaks the password:\n%s", data)
			}

			// The dump loads back into the same settings.
			back := DefaultConfig()
			if err := yamlutil.UnmarshalStrict(data, back, nil); err != nil {
				t.Fatalf("reloading dump: %v\n%s", err, data)
			}
			if back.Workers != 5 || back.Store.DatabaseURL != tt.wantDSN {
				t.Errorf("reloaded workers/dsn = %d/%q, want 5/%q", back.Workers, back.Store.DatabaseURL, tt.wantDSN)
			}
			if !reflect.DeepEqual(back.Server.AllowedOrigins, cfg.Server.AllowedOrigins) {
				t.Errorf("reloaded origins = %q", back.Server.AllowedOrigins)
			}
			if cfg.Store.DatabaseURL != tt.dsn {
				t.Error("Dump() modified the configuration")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestLoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, "pdfjobs.yaml", `
server:
  addr: "${HOST}:8081"
workers: 5
queue:
  drainInterval: 250ms
store:
  driver: fs
  path: /var/lib/pdfjobs
log:
  level: ${LEVEL:-warn}
`)

	cfg, err := LoadConfig(path, envMap(map[string]string{"HOST": "0.0.0.0"}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8081" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Workers != 5 || cfg.DrainInterval() != 250*time.Millisecond {
		t.Errorf("Workers/DrainInterval = %d/%v", cfg.Workers, cfg.DrainInterval())
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Renderer.Timeout != "30s" || cfg.Upload.RetryDelay != "500ms" {
		t.Errorf("unset keys lost their defaults: %+v %+v", cfg.Renderer, cfg.Upload)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	unknown := writeConfig(t, dir, "unknown.yaml", "workerz: 3\n")
	invalid := writeConfig(t, dir, "invalid.yaml", "workers: 0\n")
	unset := writeConfig(t, dir, "unset.yaml", "store:\n  databaseURL: ${NO_SUCH_VAR}\n")

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "empty name", path: "", wantErr: ErrEmptyConfigName},
		{name: "missing file", path: filepath.Join(dir, "nope.yaml"), wantErr: ErrConfigNotFound},
		{name: "unknown field", path: unknown, wantErr: ErrConfigParse},
		{name: "invalid value", path: invalid, wantErr: ErrInvalidValue},
		{name: "unset variable", path: unset, wantErr: ErrConfigParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadConfig(tt.path, envMap(nil))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	writeConfig(t, dir, "prod.yml", "workers: 4\n")

	got, err := resolveConfigPath("prod")
	if err != nil {
		t.Fatalf("resolveConfigPath() error = %v", err)
	}
	if got != "prod.yml" {
		t.Errorf("resolveConfigPath() = %q, want prod.yml", got)
	}

	_, err = resolveConfigPath("staging")
	var nf *NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("resolveConfigPath(missing) error = %v, want NotFoundError", err)
	}
	if len(nf.Tried) < 2 || nf.Tried[0] != "staging.yaml" {
		t.Errorf("Tried = %v", nf.Tried)
	}
}
