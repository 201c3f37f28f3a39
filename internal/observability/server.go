// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package observability exposes Prometheus metrics and health probes.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe reports whether a dependency can serve traffic. A nil error means
// ready.
type Probe func(ctx context.Context) error

// probeTimeout bounds a single readiness probe.
const probeTimeout = 2 * time.Second

// Server owns the metrics registry and builds the handler mounted on the
// metrics listener.
type Server struct {
	registry *prometheus.Registry
	metrics  *Metrics
	probe    Probe
}

// NewServer registers the runtime collectors and the service metrics on a
// fresh registry. probe may be nil, in which case readiness always passes.
func NewServer(probe Probe) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{registry: reg, metrics: NewMetrics(reg), probe: probe}
}

// Metrics returns the collectors the auth, webhook and HTTP layers record to.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler serves /metrics, /healthz/liveness and /healthz/readiness.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok", "")
	})
	r.Get("/healthz/readiness", s.readiness)
	return r
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.probe == nil {
		writeStatus(w, http.StatusOK, "ok", "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	if err := s.probe(ctx); err != nil {
		writeStatus(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "ok", "")
}

type probeBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, status, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	//nolint:errcheck // the probe client may have gone away
	json.NewEncoder(w).Encode(probeBody{Status: status, Reason: reason})
}
