// Package catalog holds the parsed item records the search engine indexes.
// A Store is read-only once loaded; a reload produces a new Store.
package catalog

import (
	"sort"
	"strings"
)

// Well-known field names used by the ranking heuristics and facets.
const (
	FieldName         = "Name"
	FieldType         = "Type"
	FieldBrand        = "Brand"
	FieldModelNumber  = "Model Number"
	FieldSalesPackage = "Sales Package"
)

// Item is an immutable catalog record: a stable identifier plus named text
// fields.
type Item struct {
	ID     string
	Fields map[string]string
	names  []string
}

// NewItem builds an Item, copying fields so later mutation of the input map
// cannot leak into the catalog.
func NewItem(id string, fields map[string]string) *Item {
	copied := make(map[string]string, len(fields))
	names := make([]string, 0, len(fields))
	for k, v := range fields {
		copied[k] = v
		names = append(names, k)
	}
	sort.Strings(names)
	return &Item{ID: id, Fields: copied, names: names}
}

// Field returns the named field's value, or "" when absent.
func (it *Item) Field(name string) string {
	return it.Fields[name]
}

// Has reports whether the named field is present and non-blank.
func (it *Item) Has(name string) bool {
	return strings.TrimSpace(it.Fields[name]) != ""
}

// FieldNames returns the item's field names in sorted order.
func (it *Item) FieldNames() []string {
	return it.names
}

// Store is an ordered, read-only collection of items. Order is load order
// and is significant to the approximate-similarity candidate ceiling.
type Store struct {
	items []*Item
	byID  map[string]*Item
}

// NewStore builds a Store from items in the given order. A later item with a
// duplicate id replaces the earlier one in place so ids stay unique.
func NewStore(items []*Item) *Store {
	s := &Store{
		items: make([]*Item, 0, len(items)),
		byID:  make(map[string]*Item, len(items)),
	}
	pos := make(map[string]int, len(items))
	for _, it := range items {
		if i, dup := pos[it.ID]; dup {
			s.items[i] = it
			s.byID[it.ID] = it
			continue
		}
		pos[it.ID] = len(s.items)
		s.items = append(s.items, it)
		s.byID[it.ID] = it
	}
	return s
}

// Items returns the items in load order. Callers must not modify the slice.
func (s *Store) Items() []*Item {
	return s.items
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (*Item, bool) {
	it, ok := s.byID[id]
	return it, ok
}

// Len returns the number of items.
func (s *Store) Len() int {
	return len(s.items)
}
