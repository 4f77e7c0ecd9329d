// Package consumer drives index rebuilds from outside the request path:
// reload requests arriving on Kafka, the admin reload endpoint and the
// initial load at startup all go through a Reloader.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

// ReloadEvent is published on the catalog-reload topic when the catalog
// source has changed.
type ReloadEvent struct {
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Tracker receives a CatalogEvent after each successful rebuild.
type Tracker interface {
	Track(event any)
}

// Reloader rebuilds the index from a catalog source.
type Reloader struct {
	engine  *indexer.Engine
	source  catalog.Source
	tracker Tracker
	logger  *slog.Logger
}

// NewReloader creates a Reloader. tracker may be nil.
func NewReloader(engine *indexer.Engine, source catalog.Source, tracker Tracker) *Reloader {
	return &Reloader{
		engine:  engine,
		source:  source,
		tracker: tracker,
		logger:  slog.Default().With("component", "catalog-reloader", "source", source.Name()),
	}
}

// Reload rebuilds unless another rebuild is running, in which case it
// returns ErrRebuildInProgress immediately.
func (r *Reloader) Reload(ctx context.Context) (*indexer.RebuildReport, error) {
	report, err := r.engine.TryReload(ctx, r.source)
	if err != nil {
		return nil, err
	}
	r.track(report)
	return report, nil
}

// ReloadWait rebuilds, queueing behind any rebuild already running.
func (r *Reloader) ReloadWait(ctx context.Context) (*indexer.RebuildReport, error) {
	report, err := r.engine.Reload(ctx, r.source)
	if err != nil {
		return nil, err
	}
	r.track(report)
	return report, nil
}

func (r *Reloader) track(report *indexer.RebuildReport) {
	if r.tracker == nil {
		return
	}
	r.tracker.Track(CatalogEvent(report))
}

// CatalogEvent converts a rebuild report into its analytics event.
func CatalogEvent(report *indexer.RebuildReport) analytics.CatalogEvent {
	return analytics.CatalogEvent{
		Type:       analytics.EventCatalogRebuild,
		Generation: report.Generation,
		Items:      report.Items,
		Rejected:   len(report.Rejected),
		Skipped:    len(report.Warnings),
		DurationMs: report.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// HandleMessage returns a Kafka MessageHandler that rebuilds on every
// ReloadEvent. A reload that finds another one running is treated as done,
// since the running rebuild reads the same source.
func HandleMessage(r *Reloader) kafka.MessageHandler {
	return kafka.JSONHandler(r.logger, func(ctx context.Context, event ReloadEvent) error {
		r.logger.Info("catalog reload requested",
			"reason", event.Reason,
			"requested_by", event.RequestedBy,
			"requested_at", event.RequestedAt,
		)
		report, err := r.Reload(ctx)
		if errors.Is(err, apperrors.ErrRebuildInProgress) {
			r.logger.Info("reload already running, request coalesced")
			return nil
		}
		if err != nil {
			return err
		}
		r.logger.Info("catalog reloaded",
			"generation", report.Generation,
			"items", report.Items,
			"rejected", len(report.Rejected),
		)
		return nil
	})
}

// ReloadConsumer wraps a Kafka consumer subscribed to the reload topic.
type ReloadConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a ReloadConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *ReloadConsumer {
	return &ReloadConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "reload-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (rc *ReloadConsumer) Start(ctx context.Context) error {
	rc.logger.Info("reload consumer starting")
	return rc.consumer.Start(ctx)
}

// Publisher writes a single event. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// RequestReload publishes a ReloadEvent for every replica to pick up.
func RequestReload(ctx context.Context, pub Publisher, reason, requestedBy string) error {
	return pub.Publish(ctx, kafka.Event{
		Key: "reload",
		Value: ReloadEvent{
			Reason:      reason,
			RequestedBy: requestedBy,
			RequestedAt: time.Now().UTC(),
		},
	})
}
