// Package cache memoizes complete search result pages. A bounded,
// expiring in-process LRU is always consulted first; an optional remote
// tier (Redis) is shared between replicas and guarded by a circuit breaker
// so that an unhealthy remote never slows down searches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 30 * time.Minute

	remoteTimeout = 100 * time.Millisecond
)

// Remote is the shared second tier. pkg/redis.Client satisfies it.
type Remote interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushNamespace(ctx context.Context) (int64, error)
}

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	Capacity  int
	TTL       time.Duration
	Remote    Remote
	RemoteTTL time.Duration
	Metrics   *metrics.Metrics
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	HitRatio  float64 `json:"hit_ratio"`
	Remote    string  `json:"remote,omitempty"`
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	local     *expirable.LRU[string, V]
	capacity  int
	remote    Remote
	remoteTTL time.Duration
	breaker   *resilience.CircuitBreaker
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache.
func New[V any](opts Options) *Cache[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RemoteTTL <= 0 {
		opts.RemoteTTL = opts.TTL
	}
	c := &Cache[V]{
		local:     expirable.NewLRU[string, V](opts.Capacity, nil, opts.TTL),
		capacity:  opts.Capacity,
		remote:    opts.Remote,
		remoteTTL: opts.RemoteTTL,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "result-cache"),
	}
	if c.remote != nil {
		c.breaker = resilience.NewCircuitBreaker("cache-remote", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				if c.metrics != nil {
					c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}
	return c
}

// Get returns the cached page for key.
func (c *Cache[V]) Get(ctx context.Context, key Key) (V, bool) {
	k := key.String()
	if v, ok := c.lookup(ctx, k); ok {
		c.recordHit()
		return v, true
	}
	c.recordMiss()
	var zero V
	return zero, false
}

// Put stores a complete result page.
func (c *Cache[V]) Put(ctx context.Context, key Key, value V) {
	c.store(ctx, key.String(), value)
}

// Compute produces a value for a missed key. complete reports whether the
// value may be cached; partial results are returned to the caller but
// never stored.
type Compute[V any] func() (value V, complete bool, err error)

// GetOrCompute returns the cached page for key, or runs fn once across all
// concurrent callers of the same key and caches its result if it is
// complete. hit reports whether the value came from the cache.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, fn Compute[V]) (value V, hit bool, err error) {
	k := key.String()
	if v, ok := c.lookup(ctx, k); ok {
		c.recordHit()
		return v, true, nil
	}
	c.recordMiss()

	type shared struct {
		value V
		hit   bool
	}
	res, err, _ := c.group.Do(k, func() (any, error) {
		if v, ok := c.lookup(ctx, k); ok {
			return shared{value: v, hit: true}, nil
		}
		v, complete, err := fn()
		if err != nil {
			return nil, err
		}
		if complete {
			c.store(ctx, k, v)
		}
		return shared{value: v}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	s := res.(shared)
	return s.value, s.hit, nil
}

// Purge drops every cached page, locally and in the remote tier.
func (c *Cache[V]) Purge(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	deleted, err := c.remote.FlushNamespace(ctx)
	if err != nil {
		return fmt.Errorf("purging remote cache: %w", err)
	}
	c.logger.Info("cache purged", "remote_keys_deleted", deleted)
	return nil
}

// Stats returns counters since creation and the current size.
func (c *Cache[V]) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.local.Len(),
		Capacity:  c.capacity,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	if c.breaker != nil {
		s.Remote = c.breaker.State().String()
	}
	return s
}

func (c *Cache[V]) lookup(ctx context.Context, k string) (V, bool) {
	if v, ok := c.local.Get(k); ok {
		return v, true
	}
	var zero V
	if c.remote == nil {
		return zero, false
	}
	data, err := c.remoteGet(ctx, k)
	if err != nil || data == nil {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("remote cache entry unreadable", "key", k, "error", err)
		return zero, false
	}
	c.addLocal(k, v)
	return v, true
}

func (c *Cache[V]) store(ctx context.Context, k string, v V) {
	c.addLocal(k, v)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		_, err := resilience.Call(ctx, remoteTimeout, "cache-remote-set", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.SetBytes(ctx, k, data, c.remoteTTL)
		})
		return err
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("remote cache set failed", "key", k, "error", err)
	}
}

// remoteGet returns nil data for a clean miss. A miss is not a failure as
// far as the breaker is concerned.
func (c *Cache[V]) remoteGet(ctx context.Context, k string) ([]byte, error) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = resilience.Call(ctx, remoteTimeout, "cache-remote-get", func(ctx context.Context) ([]byte, error) {
			return c.remote.GetBytes(ctx, k)
		})
		if err != nil && pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("remote cache get failed", "key", k, "error", err)
	}
	return data, err
}

func (c *Cache[V]) addLocal(k string, v V) {
	if evicted := c.local.Add(k, v); evicted {
		c.evictions.Add(1)
		if c.metrics != nil {
			c.metrics.CacheEvictionsTotal.Inc()
		}
	}
}

func (c *Cache[V]) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache[V]) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
