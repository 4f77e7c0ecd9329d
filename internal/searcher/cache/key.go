package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

const keyPrefix = "search:"

// Key identifies one cached result page. Two requests map to the same key
// only if every field that can change the page is equal.
type Key struct {
	// Mode separates result families that share a query text, such as
	// ranked and boolean search.
	Mode       string
	Signature  string
	Strategies []string
	Page       int
	PageSize   int
	Filters    map[string][]string
	Generation uint64
}

// String returns the hashed storage key.
func (k Key) String() string {
	strategies := append([]string(nil), k.Strategies...)
	sort.Strings(strategies)

	filters := make([]string, 0, len(k.Filters))
	for name, values := range k.Filters {
		if len(values) == 0 {
			continue
		}
		vals := make([]string, len(values))
		for i, v := range values {
			vals[i] = strings.ToLower(v)
		}
		sort.Strings(vals)
		filters = append(filters, strings.ToLower(name)+"="+strings.Join(vals, ","))
	}
	sort.Strings(filters)

	raw := fmt.Sprintf("%s|%s|s=%s|p=%d|n=%d|f=%s|g=%d",
		k.Mode, k.Signature, strings.Join(strategies, ","), k.Page, k.PageSize,
		strings.Join(filters, "&"), k.Generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
