package prompt

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/worldofchami/bakerelay/pkg/models"
)

const Currency = "INR"

var (
	// LeadKeywords mark purchase intent in a first message.
	LeadKeywords = []string{"cake", "order", "buy", "purchase", "want"}

	// Menu is the fixed set of cakes offered to every lead, in display order.
	Menu = []models.Flavor{
		{Name: "chocolate", Price: models.Money{Amount: 500, Currency: Currency}},
		{Name: "vanilla", Price: models.Money{Amount: 300, Currency: Currency}},
		{Name: "butterscotch", Price: models.Money{Amount: 700, Currency: Currency}},
	}

	FlavorKeywords = lo.Map(Menu, func(f models.Flavor, _ int) string { return f.Name })
)

func containsAny(text string, keywords []string) bool {
	folded := strings.ToLower(text)
	return lo.SomeBy(keywords, func(k string) bool { return strings.Contains(folded, k) })
}

// HasLeadIntent reports whether text mentions any purchase keyword,
// case-insensitively.
func HasLeadIntent(text string) bool {
	return containsAny(text, LeadKeywords)
}

// HasFlavor reports whether text names any menu flavor, case-insensitively.
func HasFlavor(text string) bool {
	return containsAny(text, FlavorKeywords)
}

// DetectFlavor returns the first menu flavor named in text, in menu order.
func DetectFlavor(text string) (models.Flavor, bool) {
	folded := strings.ToLower(text)
	return lo.Find(Menu, func(f models.Flavor) bool { return strings.Contains(folded, f.Name) })
}

func menuLine() string {
	items := lo.Map(Menu, func(f models.Flavor, _ int) string {
		return fmt.Sprintf("%s %.0f", f.Name, f.Price.Amount)
	})
	return strings.Join(items, ", ")
}

func quoted(words []string) string {
	return strings.Join(lo.Map(words, func(w string, _ int) string { return "'" + w + "'" }), ", ")
}
