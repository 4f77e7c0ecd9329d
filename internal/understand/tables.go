package understand

// Intent is a coarse classification of what a query is after.
type Intent string

const (
	IntentNone          Intent = "none"
	IntentComparison    Intent = "comparison"
	IntentSpecification Intent = "specification"
	IntentPrice         Intent = "price"
	IntentBrand         Intent = "brand"
)

type intentRule struct {
	intent   Intent
	keywords []string
}

// intentRules are checked in order; the first rule with a keyword present
// in the query wins.
var intentRules = []intentRule{
	{IntentComparison, []string{"vs", "versus", "compare", "better", "best"}},
	{IntentSpecification, []string{"specs", "specifications", "features", "details"}},
	{IntentPrice, []string{"price", "cost", "cheap", "expensive", "budget"}},
	{IntentBrand, []string{"brand", "make", "manufacturer"}},
}

// DefaultSynonyms is the product-domain synonym table. Values are listed
// most-preferred first; expansion takes a prefix of each list.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"phone":     {"mobile", "cellphone", "smartphone", "device"},
		"laptop":    {"notebook", "computer", "pc"},
		"headphone": {"earphone", "earbud", "headset"},
		"charger":   {"adapter", "power", "cable"},
		"case":      {"cover", "protector", "shell"},
		"bluetooth": {"wireless", "bt"},
		"camera":    {"photo", "picture", "image"},
		"battery":   {"power", "charge"},
		"screen":    {"display", "monitor"},
		"memory":    {"storage", "ram", "gb"},
	}
}
