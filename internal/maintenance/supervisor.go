// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behaviour. Zero fields use suture's defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// Tree is the process supervisor. Listeners go under "api", background work
// under "background", so a crashing sweep never restarts the API.
type Tree struct {
	root       *suture.Supervisor
	api        *suture.Supervisor
	background *suture.Supervisor

	// served is set once root has been started; suture's report blocks
	// until a started supervisor terminates.
	served atomic.Bool
}

// NewTree builds the supervisor tree, logging supervisor events to logger.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	handler := &sutureslog.Handler{Logger: logger}

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root:       suture.New("manas360", rootSpec),
		api:        suture.New("api", spec),
		background: suture.New("background", spec),
	}
	t.root.Add(t.api)
	t.root.Add(t.background)
	return t
}

// AddAPI supervises a listener.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// AddBackground supervises a background loop.
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// Serve blocks until ctx is cancelled and every service has stopped.
func (t *Tree) Serve(ctx context.Context) error {
	t.served.Store(true)
	err := t.root.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// ServeBackground starts the tree in its own goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	t.served.Store(true)
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored shutdown. It waits for
// a started tree to terminate and reports nothing for a tree never served.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	if !t.served.Load() {
		return nil, nil
	}
	return t.root.UnstoppedServiceReport()
}

// HTTPService adapts an *http.Server to suture.Service.
type HTTPService struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// listen is swapped in tests.
	listen func(network, addr string) (net.Listener, error)
}

// NewHTTPService wraps server. A non-positive shutdownTimeout means 10s.
func NewHTTPService(name string, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPService{
		name:            name,
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		listen:          net.Listen,
	}
}

func (h *HTTPService) String() string { return h.name }

// Serve listens on the server's Addr and serves until ctx is cancelled.
func (h *HTTPService) Serve(ctx context.Context) error {
	ln, err := h.listen("tcp", h.server.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("server", h.name).With("addr", h.server.Addr).Wrap(err)
	}
	return h.serve(ctx, ln)
}

func (h *HTTPService) serve(ctx context.Context, ln net.Listener) error {
	h.logger.InfoContext(ctx, "http server listening", "server", h.name, "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return oops.Code("HTTP_SERVE_FAILED").With("server", h.name).Wrap(err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return oops.Code("HTTP_SHUTDOWN_FAILED").With("server", h.name).Wrap(err)
		}
		<-errCh
		h.logger.InfoContext(ctx, "http server stopped", "server", h.name)
		return ctx.Err()
	}
}
