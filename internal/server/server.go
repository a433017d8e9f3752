// Package server wires the HTTP API for the feedbacker service.
package server

import (
	"context"
	"net/http"
	"time"

	"feedbacker/internal/server/handlers"
	"feedbacker/internal/server/middleware"
)

// Server is the HTTP server for the feedbacker API.
type Server struct {
	httpServer *http.Server
}

// New creates a new API server. metrics may be nil when the metrics
// endpoint is disabled.
func New(addr string, h *handlers.Handlers, metrics http.Handler, rateLimit float64, rateBurst int) *Server {
	limited := middleware.RateLimit(rateLimit, rateBurst)

	mux := http.NewServeMux()

	mux.Handle("POST /jobs", limited(http.HandlerFunc(h.SubmitJob)))
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /jobs/{id}", h.CancelJob)
	mux.HandleFunc("GET /stats", h.GetStats)

	// Called by the git host on every push.
	mux.Handle("POST /webhooks/push", limited(http.HandlerFunc(h.PushWebhook)))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
