package fusion

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/understand"
)

// Factor is a secondary ranking signal computed from the item alone (and
// the query intent), independent of any strategy score. Implementations
// are heuristics and are meant to be swapped without touching Combine.
type Factor interface {
	Name() string
	Score(item *catalog.Item, intent understand.Intent) float64
}

// WeightedFactor pairs a Factor with the multiplier applied to its score.
type WeightedFactor struct {
	Factor
	Weight float64
}

var brandTiers = map[string]float64{
	"samsung": 0.4, "apple": 0.4, "sony": 0.4, "lg": 0.4, "xiaomi": 0.4, "oneplus": 0.4,
	"realme": 0.3, "vivo": 0.3, "oppo": 0.3, "huawei": 0.3, "motorola": 0.3,
}

const unlistedBrandScore = 0.2

// Authority rewards recognised brands, complete core fields and a
// substantial description. Scores fall in [0, 1].
type Authority struct{}

func (Authority) Name() string { return "authority" }

func (Authority) Score(item *catalog.Item, _ understand.Intent) float64 {
	score := 0.0
	if item.Has(catalog.FieldBrand) {
		brand := strings.ToLower(strings.TrimSpace(item.Field(catalog.FieldBrand)))
		if tier, ok := brandTiers[brand]; ok {
			score += tier
		} else {
			score += unlistedBrandScore
		}
	}

	core := []string{catalog.FieldName, catalog.FieldType, catalog.FieldBrand, catalog.FieldSalesPackage}
	present := 0
	for _, f := range core {
		if item.Has(f) {
			present++
		}
	}
	score += float64(present) / float64(len(core)) * 0.3

	switch n := textLen(item.Field(catalog.FieldSalesPackage)); {
	case n > 100:
		score += 0.2
	case n > 50:
		score += 0.1
	}
	return min(score, 1.0)
}

// Freshness approximates recency from record shape since items carry no
// timestamp: longer identifiers and longer descriptions score higher.
// Scores fall in [0.5, 1].
type Freshness struct{}

func (Freshness) Name() string { return "freshness" }

func (Freshness) Score(item *catalog.Item, _ understand.Intent) float64 {
	score := 0.5
	switch n := textLen(item.ID); {
	case n > 10:
		score += 0.2
	case n > 5:
		score += 0.1
	}
	switch n := textLen(item.Field(catalog.FieldSalesPackage)); {
	case n > 200:
		score += 0.2
	case n > 100:
		score += 0.1
	}
	return min(score, 1.0)
}

var techTerms = []string{"gb", "inch", "mp", "mah", "hz", "ram", "storage"}

// IntentBoost nudges items that suit the query's intent: detailed
// descriptions for comparisons, technical terms for specification
// lookups, and a present brand for brand queries.
type IntentBoost struct{}

func (IntentBoost) Name() string { return "intent" }

func (IntentBoost) Score(item *catalog.Item, intent understand.Intent) float64 {
	switch intent {
	case understand.IntentComparison:
		if textLen(item.Field(catalog.FieldSalesPackage)) > 100 {
			return 0.1
		}
	case understand.IntentSpecification:
		desc := strings.ToLower(item.Field(catalog.FieldSalesPackage))
		count := 0
		for _, term := range techTerms {
			if strings.Contains(desc, term) {
				count++
			}
		}
		return min(float64(count)*0.02, 0.1)
	case understand.IntentBrand:
		if item.Has(catalog.FieldBrand) {
			return 0.05
		}
	}
	return 0
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
