package main

// Notes:
// - loadServeConfig: we test the defaults < file < env < flags layering.
// - serve: we run the real server on a loopback listener with a FileStore
//   and no browser, and split a document end to end. Results are observed
//   in the store rather than over the event socket, which a subscriber may
//   join after the job already finished.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alnah/go-pdfjobs/internal/blobstore"
	"github.com/alnah/go-pdfjobs/internal/config"
)

// ---------------------------------------------------------------------------
// TestLoadServeConfig - Configuration layering
// ---------------------------------------------------------------------------

func TestLoadServeConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pdfjobs.yaml")
	yaml := "workers: 4\nserver:\n  addr: \"127.0.0.1:9000\"\nstore:\n  path: ${DATA_DIR}\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	tests := []struct {
		name        string
		flags       serveFlags
		env         map[string]string
		wantAddr    string
		wantWorkers int
		wantPath    string
		wantLevel   string
	}{
		{
			name:        "defaults",
			flags:       serveFlags{browsers: -1},
			wantAddr:    ":8080",
			wantWorkers: 3,
			wantPath:    "data",
			wantLevel:   "info",
		},
		{
			name:        "config file",
			flags:       serveFlags{config: cfgPath, browsers: -1},
			env:         map[string]string{"DATA_DIR": "/srv/pdf"},
			wantAddr:    "127.0.0.1:9000",
			wantWorkers: 4,
			wantPath:    "/srv/pdf",
			wantLevel:   "info",
		},
		{
			name:        "env over file",
			flags:       serveFlags{config: cfgPath, browsers: -1},
			env:         map[string]string{"DATA_DIR": "/srv/pdf", "PDFJOBS_WORKERS": "6", "PDFJOBS_LOG_LEVEL": "debug"},
			wantAddr:    "127.0.0.1:9000",
			wantWorkers: 6,
			wantPath:    "/srv/pdf",
			wantLevel:   "debug",
		},
		{
			name:        "flags over env",
			flags:       serveFlags{config: cfgPath, browsers: -1, workers: 8, addr: ":7000", logLevel: "warn"},
			env:         map[string]string{"DATA_DIR": "/srv/pdf", "PDFJOBS_WORKERS": "6", "PDFJOBS_LOG_LEVEL": "debug"},
			wantAddr:    ":7000",
			wantWorkers: 8,
			wantPath:    "/srv/pdf",
			wantLevel:   "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := tt.flags
			cfg, err := loadServeConfig(&f, mapLookup(tt.env))
			if err != nil {
				t.Fatalf("loadServeConfig() error = %v", err)
			}
			if cfg.Server.Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", cfg.Server.Addr, tt.wantAddr)
			}
			if cfg.Workers != tt.wantWorkers {
				t.Errorf("Workers = %d, want %d", cfg.Workers, tt.wantWorkers)
			}
			if cfg.Store.Path != tt.wantPath {
				t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, tt.wantPath)
			}
			if cfg.Log.Level != tt.wantLevel {
				t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, tt.wantLevel)
			}
		})
	}
}

func TestLoadServeConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flags    serveFlags
		env      map[string]string
		wantErr  error
		wantHint bool
	}{
		{
			name:     "missing config name",
			flags:    serveFlags{config: "pdfjobs-test-missing-config", browsers: -1},
			wantErr:  config.ErrConfigNotFound,
			wantHint: true,
		},
		{
			name:    "bad env value",
			flags:   serveFlags{browsers: -1},
			env:     map[string]string{"PDFJOBS_WORKERS": "many"},
			wantErr: config.ErrInvalidValue,
		},
		{
			name:    "workers flag out of range",
			flags:   serveFlags{browsers: -1, workers: config.MaxWorkers + 1},
			wantErr: config.ErrInvalidValue,
		},
		{
			name:    "unknown store",
			flags:   serveFlags{browsers: -1, store: "s3"},
			wantErr: config.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := tt.flags
			_, err := loadServeConfig(&f, mapLookup(tt.env))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("loadServeConfig() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantHint && !strings.Contains(err.Error(), "hint:") {
				t.Errorf("error %q has no hint", err)
			}
		})
	}
}

func TestRunServe_PrintConfig(t *testing.T) {
	t.Parallel()

	envFile := filepath.Join(t.TempDir(), "pdfjobs.env")
	if err := os.WriteFile(envFile, []byte("PDFJOBS_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	env, stdout, stderr := testEnv(map[string]string{
		"PDFJOBS_WORKERS":      "5",
		"PDFJOBS_STORE_DRIVER": "postgres",
		"PDFJOBS_DATABASE_URL": "postgres://pdf:s3cret@db/pdf",
	})

	code := run(context.Background(), []string{
		"serve", "--print-config", "--env-file", envFile, "--allow-origin", "https://app.example.com",
	}, env)
	if code != ExitSuccess {
		t.Fatalf("run() = %d, want %d; stderr: %s", code, ExitSuccess, stderr)
	}

	out := stdout.String()
	for _, want := range []string{"workers: 5", "level: debug", "https://app.example.com", "postgres://pdf:xxxxx@db/pdf"} {
		if !strings.Contains(out, want) {
			t.Errorf("printed config lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("printed config leaks the database password:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// TestEnvLookup - Dotenv layering
// ---------------------------------------------------------------------------

func TestEnvLookup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PDFJOBS_WORKERS=5\nPDFJOBS_ADDR=:9999\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	lookup, err := envLookup(path, mapLookup(map[string]string{"PDFJOBS_ADDR": ":1234"}))
	if err != nil {
		t.Fatalf("envLookup() error = %v", err)
	}

	if v, _ := lookup("PDFJOBS_ADDR"); v != ":1234" {
		t.Errorf("PDFJOBS_ADDR = %q, want process value :1234", v)
	}
	if v, _ := lookup("PDFJOBS_WORKERS"); v != "5" {
		t.Errorf("PDFJOBS_WORKERS = %q, want file value 5", v)
	}
	if _, ok := lookup("PDFJOBS_UNSET"); ok {
		t.Error("PDFJOBS_UNSET should not resolve")
	}
}

func TestEnvLookup_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := envLookup(filepath.Join(t.TempDir(), "missing.env"), mapLookup(nil))
	if !errors.Is(err, ErrReadInput) {
		t.Errorf("envLookup() error = %v, want ErrReadInput", err)
	}
}

// ---------------------------------------------------------------------------
// TestOpenStore - Store selection
// ---------------------------------------------------------------------------

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("fs", func(t *testing.T) {
		t.Parallel()
		cfg := config.DefaultConfig()
		cfg.Store.Path = filepath.Join(t.TempDir(), "blobs")

		store, release, err := openStore(context.Background(), cfg)
		if err != nil {
			t.Fatalf("openStore() error = %v", err)
		}
		defer release()
		if _, ok := store.(*blobstore.FileStore); !ok {
			t.Errorf("store = %T, want *blobstore.FileStore", store)
		}
	})

	t.Run("postgres without url", func(t *testing.T) {
		t.Parallel()
		cfg := config.DefaultConfig()
		cfg.Store.Driver = config.DriverPostgres

		_, _, err := openStore(context.Background(), cfg)
		if !errors.Is(err, ErrOpenStore) {
			t.Fatalf("openStore() error = %v, want ErrOpenStore", err)
		}
		if !strings.Contains(err.Error(), "PDFJOBS_DATABASE_URL") {
			t.Errorf("error %q lacks the database hint", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()
		cfg := config.DefaultConfig()
		cfg.Store.Driver = "s3"

		_, _, err := openStore(context.Background(), cfg)
		if !errors.Is(err, config.ErrInvalidValue) {
			t.Errorf("openStore() error = %v, want ErrInvalidValue", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestServe - HTTP server lifecycle
// ---------------------------------------------------------------------------

func TestServe_SplitEndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := blobstore.NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	src, err := store.Upload(context.Background(), "source.pdf", bytes.NewReader(minimalPDF(3)), "application/pdf")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Queue.DrainInterval = "10ms"
	cfg.Upload.RetryDelay = "0s"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Renderer.TempDir = t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- serve(ctx, ln, cfg, store, nil, zerolog.Nop()) }()

	resp := waitHealthy(t, base+"/v1/healthz")
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("healthz body = %s", body)
	}

	payload := fmt.Sprintf(`{"fileId":%q,"interval":1}`, src.FileID)
	resp, err = http.Post(base+"/v1/pdf/split", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST split error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST split status = %d, want 202", resp.StatusCode)
	}

	// One source file plus three single-page chunks.
	deadline := time.Now().Add(10 * time.Second)
	for countBlobs(t, root) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("store holds %d files, want 4", countBlobs(t, root))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}

func waitHealthy(t *testing.T, url string) *http.Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		if time.Now().After(deadline) {
			t.Fatalf("server not healthy: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func countBlobs(t *testing.T, root string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "*.bin"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	return len(matches)
}
