// Package collector forwards analytics events to Kafka in batches so the
// search path never waits on a broker round trip.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	publishTimeout       = 5 * time.Second
	// A broker outage keeps at most this many batches queued.
	maxPendingBatches = 3
)

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector is an analytics.Sink that buffers events and publishes
// them when a batch fills up or the flush interval passes.
type BatchCollector struct {
	producer      Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event
	dropped atomic.Int64

	full     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewBatchCollector(producer Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		pending:       make([]kafka.Event, 0, batchSize),
		full:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until Close, then publishes whatever is left.
// Every publish gets its own deadline; cancelling ctx does not stop the
// loop, so events handed over during shutdown are still flushed.
func (bc *BatchCollector) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.publish(ctx)
			case <-bc.full:
				bc.publish(ctx)
			case <-bc.stop:
				bc.publish(ctx)
				return
			}
		}
	}()
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

// Track queues one event under key and wakes the flush loop once a batch
// is full.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: key, Value: value})
	full := len(bc.pending) >= bc.batchSize
	bc.mu.Unlock()
	if full {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Send implements analytics.Sink. Catalog events and query events use
// different keys so each kind stays ordered within its partition.
func (bc *BatchCollector) Send(_ context.Context, event any) error {
	switch event.(type) {
	case analytics.CatalogEvent, *analytics.CatalogEvent:
		bc.Track("catalog", event)
	default:
		bc.Track("query", event)
	}
	return nil
}

// Close stops the flush loop after a final flush and waits for it.
func (bc *BatchCollector) Close() {
	bc.stopOnce.Do(func() { close(bc.stop) })
	<-bc.done
}

// BufferLen is the number of events waiting to be published.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Dropped counts events discarded because the broker stayed unreachable.
func (bc *BatchCollector) Dropped() int64 { return bc.dropped.Load() }

func (bc *BatchCollector) publish(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	bc.flush(ctx)
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	batch := bc.pending
	if len(batch) == 0 {
		bc.mu.Unlock()
		return
	}
	bc.pending = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	err := bc.producer.PublishBatch(ctx, batch)
	if err == nil {
		bc.logger.Debug("batch published", "events", len(batch))
		return
	}

	bc.mu.Lock()
	bc.pending = append(batch, bc.pending...)
	limit := bc.batchSize * maxPendingBatches
	var dropped int
	if len(bc.pending) > limit {
		dropped = len(bc.pending) - limit
		bc.pending = bc.pending[dropped:]
	}
	bc.mu.Unlock()

	bc.dropped.Add(int64(dropped))
	bc.logger.Error("batch publish failed, requeued",
		"events", len(batch),
		"dropped_oldest", dropped,
		"error", err,
	)
}
