package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/redis"
)

const redisNamespace = "catalog-search:page:"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"catalog_source", cfg.Catalog.Source,
		"strategies", cfg.Strategies.Default,
	)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	idx := indexer.NewEngine(cfg.Index, m)
	checker.Register("index", idx.HealthCheck())

	source, closeSource, err := catalogSource(cfg, checker)
	if err != nil {
		return err
	}
	defer closeSource()

	var remote cache.Remote
	if cfg.Cache.Enabled && cfg.Cache.RedisTier {
		redisClient, err := pkgredis.NewClient(cfg.Redis, redisNamespace)
		if err != nil {
			slog.Warn("redis unavailable, result cache stays in-process", "error", err)
		} else {
			defer redisClient.Close()
			remote = redisClient
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("redis cache tier enabled", "addr", cfg.Redis.Addr)
		}
	}

	aggregator := analytics.NewAggregator()
	sinks := []analytics.Sink{aggregator}
	var batch *collector.BatchCollector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		batch = collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		batch.Start(ctx)
		defer batch.Close()
		sinks = append(sinks, batch)
		checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}, false))
	}
	events := analytics.NewCollector(cfg.Analytics.BufferSize, m, sinks...)
	events.Start(ctx)
	// Runs after the server has drained and before the batch collector's
	// final flush.
	defer events.Close()

	engine, err := searcher.Build(cfg, idx, events, remote, m)
	if err != nil {
		return fmt.Errorf("building search engine: %w", err)
	}
	defer engine.Close()

	reloader := consumer.NewReloader(idx, source, events)
	report, err := reloader.ReloadWait(ctx)
	if err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}
	slog.Info("catalog loaded",
		"generation", report.Generation,
		"items", report.Items,
		"rejected", len(report.Rejected),
		"duration", report.Duration,
	)

	h := handler.New(engine, aggregator, reloader.Reload)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, checker, m, cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, metrics.ServerOptions{Profiling: cfg.Metrics.Profiling})
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Kafka.Enabled {
		// Every replica must see every reload, so each gets its own group.
		reloadCfg := cfg.Kafka
		host, _ := os.Hostname()
		reloadCfg.ConsumerGroup = fmt.Sprintf("%s-reload-%s-%d", cfg.Kafka.ConsumerGroup, host, os.Getpid())
		reloads := consumer.New(kafka.NewConsumer(reloadCfg, cfg.Kafka.Topics.CatalogReload, consumer.HandleMessage(reloader)))
		g.Go(func() error { return reloads.Start(gctx) })
	}
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// catalogSource opens the configured catalog source. The returned close
// func is always safe to call.
func catalogSource(cfg *config.Config, checker *health.Checker) (catalog.Source, func(), error) {
	if cfg.Catalog.Source != "postgres" {
		return catalog.FileSource{Path: cfg.Catalog.Path}, func() {}, nil
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting catalog database: %w", err)
	}
	checker.Register("postgres", health.PingCheck(db.Ping, true))
	return catalog.NewPostgresSource(db, cfg.Catalog), func() { _ = db.Close() }, nil
}
