// Command signupd is the development server for the signup form. It serves
// the live form endpoint and a stub validation backend on one address.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jsignup/signupkit/internal/backend"
	"github.com/jsignup/signupkit/pkg/config"
	"github.com/jsignup/signupkit/pkg/health"
	"github.com/jsignup/signupkit/pkg/live"
	"github.com/jsignup/signupkit/pkg/logging"
	"github.com/jsignup/signupkit/pkg/protocol"
	"github.com/jsignup/signupkit/pkg/remote"
	"github.com/jsignup/signupkit/pkg/signup"
)

const (
	version     = "0.1.0"
	maxSessions = 1024
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "signupd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional; the environment wins over the file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Info("starting signupd",
		logging.String("addr", cfg.Addr),
		logging.String("backend", cfg.BackendURL),
	)

	svc := backend.New(logger.With(logging.String("component", "backend")))

	checker := remote.NewClient(cfg.BackendURL,
		remote.WithLogger(logger.With(logging.String("component", "remote"))),
	)

	factory := func() *signup.Engine {
		return signup.Build(cfg, checker, svc.Submitter(), logger)
	}

	codec, ok := protocol.DefaultCodecRegistry.Get(cfg.Codec)
	if !ok {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownCodec, cfg.Codec)
	}

	liveHandler := live.NewHandler(factory, live.Options{
		InsecureDevMode:   true, // dev server accepts any origin
		Codec:             codec,
		HeartbeatInterval: cfg.HeartbeatInterval,
		IdleTimeout:       cfg.SessionIdleTimeout,
		Logger:            logger.With(logging.String("component", "live")),
	})
	defer liveHandler.Close()

	checks := health.NewChecker()
	checks.SetVersion(version)
	checks.AddCheck("sessions", health.SessionCapacityCheck(liveHandler.SessionCount, maxSessions), time.Second)
	// The stub backend is served in-process by default; probing it through
	// the loopback would make readiness depend on itself.
	if !selfHosted(cfg) {
		checks.AddCheck("backend", health.BackendCheck(http.DefaultClient, cfg.BackendURL), 5*time.Second)
	}

	mux := http.NewServeMux()
	mux.Handle("/live", liveHandler)
	mux.Handle("/j_signup_validation/", svc.Routes())
	mux.Handle("/healthz", checks.LivenessHandler())
	mux.Handle("/readyz", checks.ReadinessHandler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// selfHosted reports whether the configured backend URL points back at this
// server's own listen address.
func selfHosted(cfg config.Config) bool {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return false
	}
	_, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return false
	}
	backendPort := u.Port()
	if backendPort == "" {
		backendPort = "80"
		if u.Scheme == "https" {
			backendPort = "443"
		}
	}
	return backendPort == port
}

func newLogger(cfg config.Config) logging.Logger {
	opts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.LogLevel))}
	if cfg.LogJSON {
		opts = append(opts, logging.WithJSON())
	}
	return logging.New(opts...)
}
