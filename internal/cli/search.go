package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/facet"
)

type searchOptions struct {
	strategies []string
	filters    []string
	page       int
	pageSize   int
	boolean    bool
}

func newSearchCommand(global *globalOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search against the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilters(opts.filters)
			if err != nil {
				return err
			}
			s, err := global.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			query := strings.Join(args, " ")
			var resp *searcher.Response
			if opts.boolean {
				resp, err = s.engine.SearchBoolean(cmd.Context(), searcher.BooleanRequest{
					Expression: query,
					Page:       opts.page,
					PageSize:   opts.pageSize,
					Filters:    filters,
				})
			} else {
				resp, err = s.engine.Search(cmd.Context(), searcher.Request{
					Query:      query,
					Strategies: opts.strategies,
					Page:       opts.page,
					PageSize:   opts.pageSize,
					Filters:    filters,
				})
			}
			if err != nil {
				return err
			}
			if global.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return writeResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.strategies, "strategies", "s", nil, "strategies to run (default: configured set)")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "facet filter as name=value, repeatable")
	cmd.Flags().IntVar(&opts.page, "page", 1, "result page")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "results per page (default: configured)")
	cmd.Flags().BoolVar(&opts.boolean, "boolean", false, "treat the query as an AND/OR/NOT expression")
	return cmd
}

func parseFilters(raw []string) (facet.Filters, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	f := make(facet.Filters)
	for _, r := range raw {
		name, value, ok := strings.Cut(r, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("filter %q must be name=value", r)
		}
		if !facet.Known(name) {
			return nil, fmt.Errorf("unknown facet %q (known: %s)", name, strings.Join(facet.Names(), ", "))
		}
		f[name] = append(f[name], value)
	}
	return f, nil
}

func writeResponse(w io.Writer, resp *searcher.Response) error {
	for _, c := range resp.Corrections {
		fmt.Fprintf(w, "corrected %q -> %q\n", c.From, c.To)
	}
	if resp.Fallback {
		fmt.Fprintln(w, "expression could not be parsed, showing ranked results")
	}
	if len(resp.FailedStrategies) > 0 {
		fmt.Fprintf(w, "failed strategies: %v\n", resp.FailedStrategies)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tSCORE\tITEM\tMATCHED")
	offset := (resp.Pagination.Page - 1) * resp.Pagination.PageSize
	for i, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\t%s\n",
			offset+i+1, r.ID, r.Score, label(r.Fields), strings.Join(r.MatchedFields, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := resp.Pagination
	fmt.Fprintf(w, "page %d of %d, %d results, %.2fms\n", p.Page, p.TotalPages, p.TotalResults, resp.TookMs)
	return nil
}

// label picks a short display name for an item.
func label(fields map[string]string) string {
	for _, k := range []string{"Name", "Title"} {
		if v := fields[k]; v != "" {
			return v
		}
	}
	var parts []string
	for _, k := range []string{"Brand", "Type"} {
		if v := fields[k]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "-"
	}
	return fields[keys[0]]
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
