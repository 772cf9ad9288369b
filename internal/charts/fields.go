package charts

import (
	"strings"

	"kasku/internal/core"
)

// Column names shared by the three chartable tables.
const (
	colUserID   = "user_id"
	colCategory = "category"
	colStore    = "store_name"
	colItem     = "item_name"
	colQuantity = "quantity"
	colPrice    = "price"
	colEntry    = "created_at"
	colTxDate   = "tx_date"
)

// Physical tables behind the logical placeholders of the raw surface.
// The builder always targets the transactions table.
const (
	tableTransactions = "transactions"
	tableSavings      = "savings"
	tableReminders    = "payment_reminders"
)

var logicalTables = map[string]string{
	"active":    tableTransactions,
	"savings":   tableSavings,
	"reminders": tableReminders,
}

var calendarKeys = map[string]bool{
	"day": true, "week": true, "month": true, "year": true, "day_of_week": true,
}

var categoricalDims = map[string]string{
	"store":    colStore,
	"item":     colItem,
	"category": colCategory,
}

func isCalendarKey(key string) bool { return calendarKeys[key] }

// dateColumn selects the timestamp column the date basis points at.
func dateColumn(basis core.DateBasis) string {
	if basis == core.BasisTransactionDate {
		return colTxDate
	}
	return colEntry
}

// dimensionExpr compiles a dimension field key into a row expression.
// Calendar keys truncate the date-basis column; categorical keys
// coalesce blanks to a sentinel, with the legacy expense alias folded
// in for "category". Unrecognized keys fail open to day truncation;
// the second return value lets callers count that.
func dimensionExpr(d Dialect, key string, basis core.DateBasis) (expr string, known bool) {
	if isCalendarKey(key) {
		return d.CalendarExpr(key, dateColumn(basis)), true
	}
	switch key {
	case "category":
		return "CASE WHEN " + colCategory + " = '" + core.LegacyExpense + "'" +
			" THEN '" + core.CategoryExpense + "'" +
			" ELSE COALESCE(NULLIF(" + colCategory + ", ''), '" + core.SentinelUncategorized + "') END", true
	case "store":
		return "COALESCE(NULLIF(" + colStore + ", ''), '" + core.SentinelUnknown + "')", true
	case "item":
		return "COALESCE(NULLIF(" + colItem + ", ''), '" + core.SentinelUnknown + "')", true
	}
	return d.CalendarExpr("day", dateColumn(basis)), false
}

// metricExpr compiles a metric field key into a row expression plus
// the aggregation the key implies, if any ("count" is always COUNT,
// "avg_price" always AVG). Unknown keys fall back to "amount".
func metricExpr(key string) (expr string, forced core.Aggregation, known bool) {
	amount := colPrice + " * " + colQuantity
	switch key {
	case "amount":
		return amount, "", true
	case "quantity":
		return colQuantity, "", true
	case "count":
		return "1", core.AggCount, true
	case "avg_price":
		return colPrice, core.AggAvg, true
	case "income_total":
		return "CASE WHEN " + colCategory + " = '" + core.CategoryIncome + "'" +
			" THEN " + amount + " ELSE 0 END", "", true
	case "expense_total":
		return "CASE WHEN " + colCategory + " IN (" + quoteList(expenseCategories()) + ")" +
			" THEN " + amount + " ELSE 0 END", "", true
	}
	return amount, "", false
}

// expenseCategories is the normalizer-expanded expense match set.
func expenseCategories() []string {
	return core.ExpandCategoryFilter([]string{core.CategoryExpense})
}

// resolveAggregation picks the aggregation for a metric: the implied
// one when the key forces it, otherwise the requested one, defaulting
// to SUM.
func resolveAggregation(m core.Metric) core.Aggregation {
	if _, forced, _ := metricExpr(m.Key); forced != "" {
		return forced
	}
	return core.NormalizeAggregation(m.Agg)
}

var metricLabels = map[string]string{
	"amount":        "Total",
	"quantity":      "Quantity",
	"count":         "Count",
	"avg_price":     "Avg Price",
	"income_total":  "Income",
	"expense_total": "Expense",
}

// metricLabel returns the display name of a metric key, title-casing
// unrecognized keys.
func metricLabel(key string) string {
	if label, ok := metricLabels[key]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return "Value"
	}
	return strings.Join(words, " ")
}

// quoteList renders trusted category constants as a SQL literal list.
// Never call it with caller-supplied strings.
func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ", ")
}
