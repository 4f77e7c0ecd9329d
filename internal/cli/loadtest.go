package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultLoadQueries = []string{
	"bluetooth speaker",
	"sony headphones",
	"wireless earphones",
	"samsung mobile",
	"laptop 8gb ram",
	"budget phone",
	"blutooth speeker",
	"camera lens",
	"car charger",
	"kitchen appliance",
}

type loadOptions struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	strategies  string
	queries     []string
}

// loadStats is shared by all workers.
type loadStats struct {
	total     atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	status    map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 1<<14),
		status:    make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.failed.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.status[status]++
	s.mu.Unlock()
}

func newLoadTestCommand() *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a running search service and report latency percentiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.concurrency <= 0 {
				return fmt.Errorf("concurrency must be positive, got %d", opts.concurrency)
			}
			if len(opts.queries) == 0 {
				opts.queries = defaultLoadQueries
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s, %d workers, %s\n", opts.baseURL, opts.concurrency, opts.duration)
			stats := runLoad(ctx, opts)
			return writeLoadReport(out, stats, opts.duration)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 10, "concurrent workers")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "test duration")
	cmd.Flags().StringVar(&opts.strategies, "strategies", "", "comma-separated strategies to request")
	cmd.Flags().StringArrayVarP(&opts.queries, "query", "q", nil, "query to send, repeatable (default: built-in set)")
	return cmd
}

func runLoad(ctx context.Context, opts *loadOptions) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	base := strings.TrimRight(opts.baseURL, "/") + "/api/v1/search"

	var g errgroup.Group
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				params := url.Values{"q": {opts.queries[i%len(opts.queries)]}}
				if opts.strategies != "" {
					params.Set("strategies", opts.strategies)
				}
				start := time.Now()
				status, hit, err := searchOnce(ctx, client, base+"?"+params.Encode())
				if ctx.Err() != nil {
					return nil
				}
				stats.record(time.Since(start), status, hit, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheHit, nil
}

func writeLoadReport(w io.Writer, stats *loadStats, duration time.Duration) error {
	total := stats.total.Load()
	if total == 0 {
		return fmt.Errorf("no requests completed, is the service running?")
	}
	failed := stats.failed.Load()
	fmt.Fprintf(w, "requests: %d (%.1f/s), failed %d (%.2f%%), cache hits %d\n",
		total, float64(total)/duration.Seconds(), failed,
		float64(failed)/float64(total)*100, stats.cacheHits.Load())

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.status))
	for code := range stats.status {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.status))
	for code, n := range stats.status {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		fmt.Fprintf(w, "latency: min %s p50 %s p90 %s p95 %s p99 %s max %s\n",
			latencies[0],
			latencyPercentile(latencies, 50),
			latencyPercentile(latencies, 90),
			latencyPercentile(latencies, 95),
			latencyPercentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}
	return nil
}

// latencyPercentile uses the nearest-rank method on sorted input.
func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
