package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
)

// Sink receives collected events. Implementations are called from the
// collector's single delivery goroutine.
type Sink interface {
	Send(ctx context.Context, event any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event any) error

func (f SinkFunc) Send(ctx context.Context, event any) error { return f(ctx, event) }

// Collector buffers events and delivers them to its sinks off the request
// path. Track never blocks; when the buffer is full, or the collector is
// closed, the event is dropped.
type Collector struct {
	sinks   []Sink
	eventCh chan any
	metrics *metrics.Metrics
	logger  *slog.Logger
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(bufferSize int, m *metrics.Metrics, sinks ...Sink) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		sinks:   sinks,
		eventCh: make(chan any, bufferSize),
		metrics: m,
		logger:  slog.Default().With("component", "analytics-collector"),
		done:    make(chan struct{}),
	}
}

// Start delivers events until Close. Cancelling ctx does not stop
// delivery, so events tracked while in-flight requests finish still reach
// the sinks; call Close once the server has shut down.
func (c *Collector) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(c.done)
		for event := range c.eventCh {
			c.deliver(ctx, event)
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "sinks", len(c.sinks))
}

func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop("analytics event dropped (collector closed)")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.drop("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drop(msg string) {
	if c.metrics != nil {
		c.metrics.AnalyticsDropped.Inc()
	}
	c.logger.Warn(msg)
}

func (c *Collector) deliver(ctx context.Context, event any) {
	for _, s := range c.sinks {
		if err := s.Send(ctx, event); err != nil {
			c.logger.Error("failed to deliver analytics event", "error", err)
		}
	}
}
