package pricing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

var (
	// ReducedRate applies to electronics.
	ReducedRate = money.Percent(10)
	// StandardRate applies to every other category.
	StandardRate = money.Percent(21)
)

var reducedCategories = map[string]struct{}{
	"electronica":  {},
	"electronicas": {},
	"electronico":  {},
	"electronicos": {},
}

// NormalizeCategory lowercases a category name and strips diacritics and
// surrounding whitespace, so "Electrónica " becomes "electronica".
func NormalizeCategory(category string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, category)
	if err != nil {
		s = category
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// TaxRate returns the tax rate for a product category.
func TaxRate(category string) money.Rate {
	if _, ok := reducedCategories[NormalizeCategory(category)]; ok {
		return ReducedRate
	}
	return StandardRate
}
