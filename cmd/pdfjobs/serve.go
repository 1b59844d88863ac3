package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-pdfjobs"
	"github.com/alnah/go-pdfjobs/internal/blobstore"
	"github.com/alnah/go-pdfjobs/internal/config"
	"github.com/alnah/go-pdfjobs/internal/hints"
	"github.com/alnah/go-pdfjobs/internal/httpapi"
	"github.com/alnah/go-pdfjobs/internal/logging"
)

const (
	defaultEnvFile    = ".env"
	readHeaderTimeout = 10 * time.Second
)

// runServe loads configuration, opens the store and serves the HTTP API
// until ctx is canceled.
func runServe(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseServeFlags(args)
	if err != nil {
		if isHelpRequest(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidFlags, err)
	}
	if len(positional) > 0 {
		return fmt.Errorf("%w: serve takes no arguments, got %q", ErrInvalidFlags, positional)
	}

	lookup, err := envLookup(f.envFile, env.Lookup)
	if err != nil {
		return err
	}
	cfg, err := loadServeConfig(f, lookup)
	if err != nil {
		return err
	}
	if f.dump {
		return printConfig(env.Stdout, cfg)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Pretty, env.Stderr)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %v%s", ErrListen, err, hints.ForAddrInUse(cfg.Server.Addr))
		}
		return fmt.Errorf("%w: %v", ErrListen, err)
	}

	browsers := pdfjobs.ResolvePoolSize(cfg.Renderer.Browsers)
	renderer := pdfjobs.NewRendererPool(browsers, func() pdfjobs.PageRenderer {
		return pdfjobs.NewRodRenderer(cfg.RenderTimeout(), cfg.Renderer.TempDir)
	})
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing browsers")
		}
	}()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("store", cfg.Store.Driver).
		Int("browsers", browsers).
		Str("version", Version).
		Msg("serving")

	err = serve(ctx, ln, cfg, store, renderer, logger)
	if errors.Is(err, pdfjobs.ErrBrowserConnect) {
		return fmt.Errorf("%w%s", err, hints.ForBrowserConnect())
	}
	return err
}

// serve runs the pipeline, the event hub and the HTTP server on ln. On
// shutdown the server stops accepting requests first, then accepted jobs
// finish and publish their events, then subscribers are disconnected.
func serve(ctx context.Context, ln net.Listener, cfg *config.Config, store pdfjobs.BinaryStore, renderer pdfjobs.PageRenderer, logger zerolog.Logger) error {
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	hub := httpapi.NewHub(logger, cfg.Server.AllowedOrigins...)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	p, err := pdfjobs.New(store, renderer,
		pdfjobs.WithWorkers(cfg.Workers),
		pdfjobs.WithDrainInterval(cfg.DrainInterval()),
		pdfjobs.WithUploadRetryDelay(cfg.UploadRetryDelay()),
		pdfjobs.WithImageLocalization(cfg.Templates.DownloadImages),
		pdfjobs.WithTempDir(cfg.Renderer.TempDir),
		pdfjobs.WithLogger(logger),
		pdfjobs.WithEventSink(hub),
	)
	if err != nil {
		_ = ln.Close()
		return err
	}
	if err := p.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           httpapi.NewRouter(p, hub, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Dur("timeout", cfg.ShutdownTimeout()).Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := p.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("pipeline close: %w", err))
		}
		stopHub()
		<-hubDone
		return errors.Join(errs...)
	})
	return g.Wait()
}

// loadServeConfig layers defaults, the config file, PDFJOBS_* variables
// and flags, in increasing priority.
func loadServeConfig(f *serveFlags, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.config != "" {
		loaded, err := config.LoadConfig(f.config, lookup)
		if err != nil {
			var nf *config.NotFoundError
			if errors.As(err, &nf) {
				return nil, fmt.Errorf("%w%s", err, hints.ForConfigNotFound(nf.Tried))
			}
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.browsers >= 0 {
		cfg.Renderer.Browsers = f.browsers
	}
	if f.store != "" {
		cfg.Store.Driver = f.store
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.pretty {
		cfg.Log.Pretty = true
	}
	if len(f.origins) > 0 {
		cfg.Server.AllowedOrigins = f.origins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printConfig writes cfg as YAML, with credentials masked.
func printConfig(w io.Writer, cfg *config.Config) error {
	data, err := cfg.Dump()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// envLookup returns a lookup over the process environment backed by a
// dotenv file. Process variables win. A missing default .env is ignored;
// a missing explicit file is an error.
func envLookup(path string, base func(string) (string, bool)) (func(string) (string, bool), error) {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("%w: env file %s: %v", ErrReadInput, path, err)
	}

	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// openStore opens the configured binary store and returns its release func.
func openStore(ctx context.Context, cfg *config.Config) (pdfjobs.BinaryStore, func(), error) {
	driver := cfg.Store.Driver

	switch driver {
	case config.DriverPostgres:
		s, err := blobstore.NewPGStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v%s", ErrOpenStore, err, hints.ForStore(driver))
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("%w: %v%s", ErrOpenStore, err, hints.ForStore(driver))
		}
		return s, s.Close, nil

	case config.DriverFS:
		s, err := blobstore.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v%s", ErrOpenStore, err, hints.ForStore(driver))
		}
		return s, func() {}, nil
	}

	return nil, nil, fmt.Errorf("%w: store driver %q%s", config.ErrInvalidValue, driver, hints.ForStore(driver))
}
