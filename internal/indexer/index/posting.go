package index

// Posting records where and how often one token occurs in one item.
type Posting struct {
	ItemID    string
	Frequency int
	Positions []int
	// Fields lists, in sorted order, the item fields the token occurs in.
	Fields []string
}

// PostingList holds one token's postings in catalog load order.
type PostingList []Posting

// BuildWarning reports an item skipped during Build.
type BuildWarning struct {
	Position int    `json:"position"`
	ItemID   string `json:"item_id,omitempty"`
	Reason   string `json:"reason"`
}

type itemStats struct {
	length       int
	fieldLengths map[string]int
	terms        map[string]int
}
