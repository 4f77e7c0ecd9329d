// Command analytics starts the standalone analytics aggregation service.
//
// It consumes query-performance and catalog events published by the search
// service, aggregates them in memory (latency percentiles, cache hit ratio,
// per-strategy failure rates, popular and zero-result queries) and serves:
//
//	GET /api/v1/analytics             current aggregated stats
//	GET /api/v1/suggestions?q=        popular-query suggestions
//	GET /api/v1/analytics/snapshots   persisted snapshots (postgres only)
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-persist]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	persist := flag.Bool("persist", false, "snapshot aggregated stats to postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port, "persist", *persist)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}, true))

	var store *aggregator.Store
	if *persist {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store, err = aggregator.NewStore(ctx, db, 0)
		if err != nil {
			slog.Error("failed to prepare snapshot store", "error", err)
			os.Exit(1)
		}
		if last, err := store.Latest(ctx); err != nil {
			slog.Warn("could not read previous snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous snapshot found",
				"captured_at", last.CapturedAt,
				"total_searches", last.Stats.TotalSearches,
			)
		}
		go store.Run(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	stats := analytics.NewHandler(agg)
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	r.Get("/api/v1/analytics", stats.Stats)
	r.Get("/api/v1/suggestions", stats.Suggestions)
	r.Get("/api/v1/analytics/snapshots", snapshots(store))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}

func snapshots(store *aggregator.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "snapshot persistence disabled"})
			return
		}
		limit := 10
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		list, err := store.List(r.Context(), limit)
		if err != nil {
			logger.FromContext(r.Context()).Error("listing snapshots failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"snapshots": list})
	}
}
