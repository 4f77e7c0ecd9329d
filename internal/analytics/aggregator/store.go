// Package aggregator persists periodic snapshots of the search statistics
// to PostgreSQL so dashboards keep history across restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS search_stats_snapshots (
    id              BIGSERIAL PRIMARY KEY,
    total_searches  BIGINT NOT NULL,
    cache_hit_ratio DOUBLE PRECISION NOT NULL,
    p95_latency_ms  DOUBLE PRECISION NOT NULL,
    zero_results    BIGINT NOT NULL,
    data            JSONB NOT NULL,
    captured_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DefaultRetention bounds how many snapshots are kept.
const DefaultRetention = 10080

// Snapshot is one persisted copy of the aggregated stats.
type Snapshot struct {
	CapturedAt time.Time                 `json:"captured_at"`
	Stats      analytics.AggregatedStats `json:"stats"`
}

type Store struct {
	db        *postgres.Client
	retention int
	logger    *slog.Logger
}

// NewStore creates the snapshot table if needed. retention <= 0 means
// DefaultRetention.
func NewStore(ctx context.Context, db *postgres.Client, retention int) (*Store, error) {
	if err := db.EnsureSchema(ctx, schema); err != nil {
		return nil, err
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "stats-store"),
	}, nil
}

// Save writes one snapshot and prunes the oldest beyond the retention.
func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_stats_snapshots
			    (total_searches, cache_hit_ratio, p95_latency_ms, zero_results, data, captured_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			stats.TotalSearches, stats.CacheHitRatio, stats.P95LatencyMs, stats.ZeroResultCount,
			data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM search_stats_snapshots
			 WHERE id NOT IN (SELECT id FROM search_stats_snapshots ORDER BY captured_at DESC LIMIT $1)`,
			s.retention,
		); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("stats snapshot saved",
		"total_searches", stats.TotalSearches,
		"cache_hit_ratio", stats.CacheHitRatio,
	)
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	list, err := s.List(ctx, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// List returns up to limit snapshots, newest first. Rows that no longer
// decode are skipped.
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, captured_at FROM search_stats_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var data []byte
		var snap Snapshot
		if err := rows.Scan(&data, &snap.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// StatsSource is satisfied by *analytics.Aggregator.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

// Run saves a snapshot every interval until ctx is cancelled, then saves a
// final one.
func (s *Store) Run(ctx context.Context, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshots started", "interval", interval, "retention", s.retention)

	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, src.Stats()); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Save(finalCtx, src.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return
		}
	}
}
