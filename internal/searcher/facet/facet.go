// Package facet derives browsable attributes (brand, type, category, price
// range, spec richness) from catalog items, counts them, and filters items
// by selected values.
package facet

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
)

// Facet names.
const (
	Brand      = "brand"
	Type       = "type"
	Category   = "category"
	PriceRange = "price_range"
	HasSpecs   = "has_specs"
)

// MaxBuckets caps the values reported per facet.
const MaxBuckets = 20

// Names returns every facet in display order.
func Names() []string {
	return []string{Brand, Type, Category, PriceRange, HasSpecs}
}

// Known reports whether name is a facet.
func Known(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Bucket is one facet value and the number of items carrying it.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Counts maps facet name to its buckets, most common first.
type Counts map[string][]Bucket

// Filters maps facet name to the accepted values. An item passes when, for
// every facet with at least one value, its own value is one of them.
type Filters map[string][]string

var categoryRules = []struct {
	name     string
	keywords []string
}{
	{"Mobile & Tablets", []string{"phone", "mobile", "smartphone", "tablet"}},
	{"Computers", []string{"laptop", "computer", "pc", "desktop"}},
	{"Audio", []string{"headphone", "earphone", "speaker", "audio"}},
	{"Automotive", []string{"car", "auto", "vehicle"}},
	{"Photography", []string{"camera", "photo", "lens"}},
	{"Home & Kitchen", []string{"home", "kitchen", "furniture"}},
	{"Beauty", []string{"beauty", "cosmetic", "skincare"}},
	{"Sports & Fitness", []string{"sport", "fitness", "exercise"}},
}

var specIndicators = []string{"gb", "mb", "inch", "mp", "mah", "hz", "ghz", "ram", "storage", "battery"}

// Values returns the facet values of one item. Facets without a value for
// the item (brand or type not set) are absent.
func Values(item *catalog.Item) map[string]string {
	out := make(map[string]string, 5)
	if b := strings.TrimSpace(item.Field(catalog.FieldBrand)); b != "" {
		out[Brand] = b
	}
	if t := strings.TrimSpace(item.Field(catalog.FieldType)); t != "" {
		out[Type] = t
		out[Category] = InferCategory(t)
	}
	out[PriceRange] = priceRange(item)
	if hasSpecs(item) {
		out[HasSpecs] = "Yes"
	} else {
		out[HasSpecs] = "No"
	}
	return out
}

// InferCategory maps a product type onto a coarse category by keyword.
func InferCategory(productType string) string {
	lower := strings.ToLower(productType)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.name
			}
		}
	}
	return "Other"
}

func priceRange(item *catalog.Item) string {
	text := strings.ToLower(item.Field(catalog.FieldSalesPackage) + " " + item.Field(catalog.FieldName))
	switch {
	case strings.Contains(text, "under") && containsAny(text, "1000", "500", "100"):
		return "Under 1000"
	case containsAny(text, "premium", "expensive", "high-end"):
		return "Premium"
	case containsAny(text, "budget", "affordable", "cheap"):
		return "Budget"
	default:
		return "Standard"
	}
}

func hasSpecs(item *catalog.Item) bool {
	pkg := item.Field(catalog.FieldSalesPackage)
	if strings.TrimSpace(pkg) == "" {
		return false
	}
	lower := strings.ToLower(pkg)
	count := 0
	for _, ind := range specIndicators {
		if strings.Contains(lower, ind) {
			count++
		}
	}
	return count >= 2 || len([]rune(pkg)) > 200
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Count tallies facet values across items, keeping the MaxBuckets most
// common values per facet. Ties order by value.
func Count(items []*catalog.Item) Counts {
	tallies := make(map[string]map[string]int, 5)
	for _, name := range Names() {
		tallies[name] = make(map[string]int)
	}
	for _, it := range items {
		for name, v := range Values(it) {
			tallies[name][v]++
		}
	}
	out := make(Counts, len(tallies))
	for name, tally := range tallies {
		buckets := make([]Bucket, 0, len(tally))
		for v, c := range tally {
			buckets = append(buckets, Bucket{Value: v, Count: c})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Value < buckets[j].Value
		})
		if len(buckets) > MaxBuckets {
			buckets = buckets[:MaxBuckets]
		}
		out[name] = buckets
	}
	return out
}

// Empty reports whether f restricts nothing.
func (f Filters) Empty() bool {
	for _, vals := range f {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// Match reports whether item passes every filter. Values compare
// case-insensitively.
func (f Filters) Match(item *catalog.Item) bool {
	if f.Empty() {
		return true
	}
	values := Values(item)
	for name, accepted := range f {
		if len(accepted) == 0 {
			continue
		}
		have, ok := values[name]
		if !ok {
			return false
		}
		matched := false
		for _, want := range accepted {
			if strings.EqualFold(strings.TrimSpace(want), have) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Canonical returns a copy with names lower-cased, values trimmed and
// sorted, and empty facets removed. Canonical filters compare equal when
// they select the same items.
func (f Filters) Canonical() Filters {
	out := make(Filters, len(f))
	for name, vals := range f {
		cleaned := make([]string, 0, len(vals))
		for _, v := range vals {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if len(cleaned) == 0 {
			continue
		}
		sort.Strings(cleaned)
		out[strings.ToLower(strings.TrimSpace(name))] = cleaned
	}
	return out
}
