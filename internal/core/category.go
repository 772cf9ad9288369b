package core

import "strings"

// Canonical category codes. Historical rows also carry the legacy
// spelling "outcome" for expenses; those rows are never rewritten, so
// every filter that matches "expense" must match "outcome" too.
const (
	CategoryIncome  = "income"
	CategoryExpense = "expense"
	CategorySaving  = "saving"
	CategoryInvest  = "invest"

	// LegacyExpense is the pre-rename spelling still present in
	// stored rows.
	LegacyExpense = "outcome"

	// DefaultCategory is the single-category fallback used when a
	// requested filter expands to nothing.
	DefaultCategory = CategoryExpense
)

// Sentinel labels for blank dimension values.
const (
	SentinelUnknown       = "(unknown)"
	SentinelUncategorized = "(uncategorized)"
)

// NormalizeCategory canonicalizes a category code: trims, lower-cases
// and folds the legacy expense alias.
func NormalizeCategory(cat string) string {
	cat = strings.ToLower(strings.TrimSpace(cat))
	if cat == LegacyExpense {
		return CategoryExpense
	}
	return cat
}

// ExpandCategoryFilter normalizes each requested category and, when
// "expense" is present, adds the legacy spelling so historical rows
// keep matching. Empty members are dropped. Idempotent:
// ExpandCategoryFilter(ExpandCategoryFilter(s)) == ExpandCategoryFilter(s).
func ExpandCategoryFilter(requested []string) []string {
	seen := make(map[string]bool, len(requested)+1)
	out := make([]string, 0, len(requested)+1)

	add := func(cat string) {
		if cat == "" || seen[cat] {
			return
		}
		seen[cat] = true
		out = append(out, cat)
	}

	for _, cat := range requested {
		add(NormalizeCategory(cat))
	}
	if seen[CategoryExpense] {
		add(LegacyExpense)
	}
	return out
}

var categoryLabels = map[string]string{
	CategoryIncome:        "Income",
	CategoryExpense:       "Expense",
	LegacyExpense:         "Expense",
	CategorySaving:        "Saving",
	CategoryInvest:        "Invest",
	"":                    SentinelUncategorized,
	SentinelUncategorized: SentinelUncategorized,
	SentinelUnknown:       SentinelUnknown,
}

// PrettyLabel maps a raw dimension value to its display form. Known
// categories get capitalized names, blanks get the uncategorized
// sentinel, anything else passes through unchanged.
func PrettyLabel(raw string) string {
	if label, ok := categoryLabels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return label
	}
	return raw
}
