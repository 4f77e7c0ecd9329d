package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// IDField is the record key holding the stable item identifier.
const IDField = "id"

const (
	maxIDLength    = 256
	maxFieldLength = 65536
)

// Record is one raw catalog entry: a flat mapping of field name to value.
type Record map[string]any

// Rejection describes a record that was skipped during ingestion.
type Rejection struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError holds per-field validation failure messages for a record.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedItem
}

// ValidateRecord converts a raw record into an Item. Scalar values are
// rendered as text; nested objects and arrays are dropped from the item.
// A missing or blank id, or an oversized value, yields a ValidationError.
func ValidateRecord(rec Record) (*Item, error) {
	errs := make(map[string]string)

	id := ""
	switch v := rec[IDField].(type) {
	case string:
		id = strings.TrimSpace(v)
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
	default:
		errs[IDField] = fmt.Sprintf("unsupported id type %T", v)
	}
	if id == "" {
		if _, set := errs[IDField]; !set {
			errs[IDField] = "id is required"
		}
	} else if len(id) > maxIDLength {
		errs[IDField] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}

	fields := make(map[string]string, len(rec))
	for name, raw := range rec {
		if name == IDField {
			continue
		}
		text, ok := scalarText(raw)
		if !ok {
			continue
		}
		if len(text) > maxFieldLength {
			errs[name] = fmt.Sprintf("value must be at most %d characters", maxFieldLength)
			continue
		}
		fields[name] = text
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return NewItem(id, fields), nil
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
