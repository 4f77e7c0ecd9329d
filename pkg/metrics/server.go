package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions configures the admin listener.
type ServerOptions struct {
	// Gatherer defaults to the global registry.
	Gatherer prometheus.Gatherer
	// Profiling mounts net/http/pprof under /debug.
	Profiling bool
}

// NewAdminRouter serves /metrics and, optionally, /debug/pprof.
func NewAdminRouter(opts ServerOptions) http.Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	if opts.Profiling {
		r.Mount("/debug", chimw.Profiler())
	}
	return r
}

// StartServer runs the admin router on its own port and returns its
// shutdown func.
func StartServer(port int, opts ServerOptions) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewAdminRouter(opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "profiling", opts.Profiling)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
