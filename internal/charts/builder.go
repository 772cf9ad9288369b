package charts

import (
	"strconv"
	"strings"

	"kasku/internal/core"
)

// Query is a parameterized statement ready for execution, in
// driver-neutral "?" placeholder form.
type Query struct {
	SQL  string
	Args []any
}

// builderPlan describes the shape of the rows a builder query returns,
// so the scanner and the series assembler agree with the SQL.
type builderPlan struct {
	HasSeries      bool
	MetricNames    []string
	TopN           bool
	UnknownDims    []string
	UnknownMetrics []string
}

// buildChartQuery compiles a builder-mode spec into a single
// parameterized aggregate query over the transactions table. Pure
// string/parameter assembly: it cannot fail.
//
// Two of the spec's fields interact destructively: a series split and
// top-N cannot coexist. A positive top-N on a categorical dimension
// wins and disables the series dimension for that query; otherwise a
// series split truncates the metric list to one.
func buildChartQuery(d Dialect, spec core.ChartSpec, caller core.Caller, win core.Window) (Query, builderPlan) {
	var plan builderPlan

	seriesDim := spec.SeriesDimension
	_, topNDim := categoricalDims[spec.Dimension]
	plan.TopN = spec.TopN > 0 && topNDim
	if plan.TopN {
		seriesDim = ""
	}

	metrics := spec.Metrics
	if seriesDim != "" && len(metrics) > 1 {
		metrics = metrics[:1]
	}
	plan.HasSeries = seriesDim != ""

	dimExpr, known := dimensionExpr(d, spec.Dimension, spec.DateBasis)
	if !known {
		plan.UnknownDims = append(plan.UnknownDims, spec.Dimension)
	}

	sel := []string{dimExpr + " AS dim"}
	if plan.HasSeries {
		seriesExpr, seriesKnown := dimensionExpr(d, seriesDim, spec.DateBasis)
		if !seriesKnown {
			plan.UnknownDims = append(plan.UnknownDims, seriesDim)
		}
		sel = append(sel, seriesExpr+" AS series_dim")
	}
	for i, m := range metrics {
		expr, _, metricKnown := metricExpr(m.Key)
		if !metricKnown {
			plan.UnknownMetrics = append(plan.UnknownMetrics, m.Key)
		}
		agg := resolveAggregation(m)
		sel = append(sel, string(agg)+"("+expr+") AS m"+strconv.Itoa(i))
		plan.MetricNames = append(plan.MetricNames, metricLabel(m.Key))
	}

	var (
		where []string
		args  []any
	)

	// Half-open [start, end) on the date-basis column; end exclusive
	// always, for dates and timestamps alike.
	if spec.DateBasis == core.BasisTransactionDate {
		where = append(where,
			d.TimeCond(colTxDate, ">=", true),
			d.TimeCond(colTxDate, "<", true))
		args = append(args, win.FromDate(), win.ToExclDate())
	} else {
		where = append(where,
			d.TimeCond(colEntry, ">=", false),
			d.TimeCond(colEntry, "<", false))
		args = append(args, win.FromDateTime(), win.ToExclDateTime())
	}

	// Row scoping is mandatory for non-privileged callers.
	if !caller.Privileged {
		where = append(where, colUserID+" = ?")
		args = append(args, caller.UserID)
	}

	if len(spec.CategoryFilter) > 0 {
		cats := core.ExpandCategoryFilter(spec.CategoryFilter)
		if len(cats) == 0 {
			// A filter that expands to nothing (all blanks) falls
			// back to the default category rather than matching
			// everything.
			cats = core.ExpandCategoryFilter([]string{core.DefaultCategory})
		}
		where = append(where, colCategory+" IN ("+placeholders(len(cats))+")")
		for _, c := range cats {
			args = append(args, c)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(sel, ", "))
	b.WriteString(" FROM " + tableTransactions)
	b.WriteString(" WHERE " + strings.Join(where, " AND "))

	if plan.TopN {
		// Top-N by the first metric, descending. Series split is
		// already off, so the metric is column 2.
		b.WriteString(" GROUP BY 1 ORDER BY 2 DESC LIMIT ?")
		args = append(args, spec.TopN)
	} else if plan.HasSeries {
		b.WriteString(" GROUP BY 1, 2 ORDER BY 1 ASC, 2 ASC")
	} else {
		b.WriteString(" GROUP BY 1 ORDER BY 1 ASC")
	}

	return Query{SQL: b.String(), Args: args}, plan
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
