package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
)

// Source produces a fresh Store on each call to Load.
type Source interface {
	Load(ctx context.Context) (*Store, []Rejection, error)
	Name() string
}

// FromRecords validates every record, keeping the valid ones in order and
// reporting the rest. It never fails as a whole.
func FromRecords(records []Record) (*Store, []Rejection) {
	items := make([]*Item, 0, len(records))
	var rejected []Rejection
	for i, rec := range records {
		item, rej := validateAt(i, rec)
		if rej != nil {
			rejected = append(rejected, *rej)
			continue
		}
		items = append(items, item)
	}
	return NewStore(items), rejected
}

// LoadJSON reads a JSON array of flat records. Entries that are not JSON
// objects are rejected individually; only a malformed outer document fails.
func LoadJSON(r io.Reader) (*Store, []Rejection, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decoding catalog: %w", err)
	}
	items := make([]*Item, 0, len(raw))
	var rejected []Rejection
	for i, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil || rec == nil {
			rejected = append(rejected, Rejection{Index: i, Reason: "record is not a JSON object"})
			continue
		}
		item, rej := validateAt(i, rec)
		if rej != nil {
			rejected = append(rejected, *rej)
			continue
		}
		items = append(items, item)
	}
	return NewStore(items), rejected, nil
}

func validateAt(i int, rec Record) (*Item, *Rejection) {
	item, err := ValidateRecord(rec)
	if err != nil {
		id, _ := rec[IDField].(string)
		return nil, &Rejection{Index: i, ID: id, Reason: err.Error()}
	}
	return item, nil
}

// FileSource loads a JSON catalog from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Load(ctx context.Context) (*Store, []Rejection, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog %s: %w", f.Path, err)
	}
	defer file.Close()
	store, rejected, err := LoadJSON(file)
	if err != nil {
		return nil, nil, fmt.Errorf("loading catalog %s: %w", f.Path, err)
	}
	return store, rejected, nil
}

// PostgresSource loads items from a table shaped as:
//
//	CREATE TABLE catalog_items (
//	    position BIGSERIAL PRIMARY KEY,
//	    id       TEXT NOT NULL,
//	    fields   JSONB NOT NULL
//	);
//
// Rows are read in position order so load order is stable across reloads.
type PostgresSource struct {
	db     *postgres.Client
	table  string
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// NewPostgresSource creates a PostgresSource reading from cfg.Table.
func NewPostgresSource(db *postgres.Client, cfg config.CatalogConfig) *PostgresSource {
	return &PostgresSource{
		db:     db,
		table:  cfg.Table,
		retry:  resilience.RetryConfig{MaxAttempts: 4},
		logger: slog.Default().With("component", "catalog-postgres"),
	}
}

func (p *PostgresSource) Name() string { return "postgres:" + p.table }

func (p *PostgresSource) Load(ctx context.Context) (*Store, []Rejection, error) {
	var records []Record
	err := resilience.Retry(ctx, "catalog-load", p.retry, func() error {
		var err error
		records, err = p.query(ctx)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading catalog from %s: %w", p.table, err)
	}
	store, rejected := FromRecords(records)
	p.logger.Info("catalog loaded from postgres",
		"table", p.table,
		"items", store.Len(),
		"rejected", len(rejected),
	)
	return store, rejected, nil
}

func (p *PostgresSource) query(ctx context.Context) ([]Record, error) {
	q := fmt.Sprintf(`SELECT id, fields FROM %s ORDER BY position`, pq.QuoteIdentifier(p.table))
	rows, err := p.db.DB.QueryContext(ctx, q)
	if err != nil {
		// Syntax and access-rule violations (missing table, bad column) do
		// not heal between attempts.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == "42" {
			return nil, resilience.Permanent(fmt.Errorf("querying catalog items: %w", err))
		}
		return nil, fmt.Errorf("querying catalog items: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		rec := Record{}
		if err := json.Unmarshal(data, &rec); err != nil {
			p.logger.Warn("catalog row has invalid fields, keeping id only", "id", id, "error", err)
			rec = Record{}
		}
		rec[IDField] = id
		records = append(records, rec)
	}
	return records, rows.Err()
}
