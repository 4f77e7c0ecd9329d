package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

func newFacetsCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "facets",
		Short: "Show facet value counts for the whole catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := global.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			counts := s.engine.Facets()
			out := cmd.OutOrStdout()
			if global.jsonOutput {
				return writeJSON(out, map[string]any{"facets": counts})
			}
			for _, name := range facet.Names() {
				buckets := counts[name]
				if len(buckets) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s:\n", name)
				for _, b := range buckets {
					fmt.Fprintf(out, "  %-24s %d\n", b.Value, b.Count)
				}
			}
			return nil
		},
	}
}

func newReplayCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <queries-file>",
		Short: "Run one search per line of a file and print aggregated stats",
		Long: `replay runs every non-empty line of the file as a ranked search, then
prints the statistics an analytics deployment would report for that
traffic: latency percentiles, cache hit ratio, per-strategy failures and
zero-result queries. Lines that fail validation are counted and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening queries: %w", err)
			}
			defer f.Close()

			s, err := global.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			var ran, rejected int
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				_, err := s.engine.Search(cmd.Context(), searcher.Request{Query: line})
				if err != nil {
					if apperrors.IsValidation(err) {
						rejected++
						continue
					}
					return fmt.Errorf("query %q: %w", line, err)
				}
				ran++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading queries: %w", err)
			}

			stats := s.aggregator.Stats()
			out := cmd.OutOrStdout()
			if global.jsonOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "queries: %d run, %d rejected\n", ran, rejected)
			fmt.Fprintf(out, "latency: avg %.2fms p50 %.2fms p95 %.2fms p99 %.2fms\n",
				stats.AvgLatencyMs, stats.P50LatencyMs, stats.P95LatencyMs, stats.P99LatencyMs)
			fmt.Fprintf(out, "cache hit ratio: %.2f\n", stats.CacheHitRatio)
			fmt.Fprintf(out, "corrected: %d, zero results: %d\n", stats.CorrectedQueries, stats.ZeroResultCount)
			for _, q := range stats.ZeroResultQueries {
				fmt.Fprintf(out, "  no results: %q x%d\n", q.Query, q.Count)
			}
			return nil
		},
	}
}

func newValidateCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog file and list rejected records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.config()
			if err != nil {
				return err
			}
			store, rejected, err := catalog.FileSource{Path: cfg.Catalog.Path}.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if global.jsonOutput {
				return writeJSON(out, map[string]any{"items": store.Len(), "rejected": rejected})
			}
			fmt.Fprintf(out, "%d items accepted, %d rejected\n", store.Len(), len(rejected))
			for _, r := range rejected {
				fmt.Fprintf(out, "  record %d %s: %s\n", r.Index, r.ID, r.Reason)
			}
			if len(rejected) > 0 {
				return errors.New("catalog has rejected records")
			}
			return nil
		},
	}
}

func newReloadCommand(global *globalOptions) *cobra.Command {
	var reason string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running search services to rebuild their index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.config()
			if err != nil {
				return err
			}
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CatalogReload)
			defer producer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			host, _ := os.Hostname()
			if err := consumer.RequestReload(ctx, producer, reason, "searchctl@"+host); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reload requested on %s\n", cfg.Kafka.Topics.CatalogReload)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the request")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "publish timeout")
	return cmd
}
