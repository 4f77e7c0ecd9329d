// Package cli implements searchctl, an offline client that loads a catalog
// file into an in-process engine for ad-hoc queries, facet browsing and
// query-log replay. Its reload command talks to a running deployment over
// Kafka instead.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
)

type globalOptions struct {
	configPath  string
	catalogPath string
	logLevel    string
	jsonOutput  bool
}

// NewRootCommand builds the searchctl command tree. Logs go to stderr so
// command output on stdout stays machine-readable.
func NewRootCommand(stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Query a product catalog with the ranking engine",
		Long: `searchctl loads a catalog into an in-process search engine.

Examples:
  searchctl search "bluetooth speaker"
  searchctl search --strategies bm25,jaccard --filter brand=sony speaker
  searchctl search --boolean "headphones AND NOT wired"
  searchctl facets --json
  searchctl replay queries.txt
  searchctl reload --reason "feed refreshed"
  searchctl loadtest --url http://localhost:8080 -c 20 -d 1m`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(stderr, opts.logLevel, "text")
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when empty)")
	flags.StringVar(&opts.catalogPath, "catalog", "", "catalog JSON file, overrides catalog.path")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newSearchCommand(opts),
		newFacetsCommand(opts),
		newReplayCommand(opts),
		newValidateCommand(opts),
		newReloadCommand(opts),
		newLoadTestCommand(),
	)
	return root
}

func (o *globalOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.catalogPath != "" {
		cfg.Catalog.Path = o.catalogPath
	}
	return cfg, nil
}

// session is one in-process engine loaded from the catalog file.
type session struct {
	engine     *searcher.Engine
	aggregator *analytics.Aggregator
	report     *indexer.RebuildReport
}

func (s *session) Close() { s.engine.Close() }

func (o *globalOptions) open(ctx context.Context) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	idx := indexer.NewEngine(cfg.Index, nil)
	agg := analytics.NewAggregator()
	engine, err := searcher.Build(cfg, idx, agg, nil, nil)
	if err != nil {
		return nil, err
	}
	report, err := consumer.NewReloader(idx, catalog.FileSource{Path: cfg.Catalog.Path}, agg).ReloadWait(ctx)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return &session{engine: engine, aggregator: agg, report: report}, nil
}
