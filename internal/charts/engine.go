package charts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"kasku/internal/core"
)

// DefaultRawRowLimit caps raw-query result sets; a runaway query gets
// truncated, not errored.
const DefaultRawRowLimit = 2000

// Config tunes engine behavior.
type Config struct {
	// StrictFields rejects unknown dimension/metric keys instead of
	// failing open to day/amount.
	StrictFields bool

	// RawRowLimit overrides DefaultRawRowLimit when positive.
	RawRowLimit int
}

// Engine turns a chart spec plus caller identity into a renderable
// payload. It holds no mutable state beyond diagnostic counters, so
// concurrent use needs no locking; every request is a single
// read-only round trip to the store.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config

	unknownDimensions atomic.Int64
	unknownMetrics    atomic.Int64
}

func NewEngine(db *sql.DB, dialect Dialect, cfg Config) *Engine {
	if cfg.RawRowLimit <= 0 {
		cfg.RawRowLimit = DefaultRawRowLimit
	}
	return &Engine{db: db, dialect: dialect, cfg: cfg}
}

// UnknownFieldCounts reports how many times unrecognized dimension and
// metric keys have been silently defaulted. Exposed so operators can
// spot caller bugs the fail-open behavior would otherwise hide.
func (e *Engine) UnknownFieldCounts() (dims, metrics int64) {
	return e.unknownDimensions.Load(), e.unknownMetrics.Load()
}

// ChartSeries is the engine entry point. It never fails loudly: every
// failure mode terminates in a renderable payload whose message field
// carries the diagnostic.
func (e *Engine) ChartSeries(ctx context.Context, spec core.ChartSpec, caller core.Caller) core.Payload {
	spec.Normalize()

	if e.db == nil {
		return core.EmptyPayload(spec.Kind, "no data store is configured")
	}

	win, err := spec.Range.Resolve(time.Now().UTC())
	if err != nil {
		return core.EmptyPayload(spec.Kind, err.Error())
	}

	if spec.Mode == core.ModeRawQuery {
		return e.rawSeries(ctx, spec, caller, win)
	}
	return e.builderSeries(ctx, spec, caller, win)
}

func (e *Engine) builderSeries(ctx context.Context, spec core.ChartSpec, caller core.Caller, win core.Window) core.Payload {
	q, plan := buildChartQuery(e.dialect, spec, caller, win)

	if fields := append(plan.UnknownDims, plan.UnknownMetrics...); len(fields) > 0 {
		e.unknownDimensions.Add(int64(len(plan.UnknownDims)))
		e.unknownMetrics.Add(int64(len(plan.UnknownMetrics)))
		slog.WarnContext(ctx, "Unknown chart field keys defaulted",
			"chart_id", spec.ID, "fields", strings.Join(fields, ","), "strict", e.cfg.StrictFields)
		if e.cfg.StrictFields {
			return core.EmptyPayload(spec.Kind,
				fmt.Sprintf("unknown field key %q", fields[0]))
		}
	}

	rows, err := e.queryBuilderRows(ctx, q, plan)
	if err != nil {
		slog.ErrorContext(ctx, "Builder chart query failed",
			"chart_id", spec.ID, "error", err)
		return core.EmptyPayload(spec.Kind, "chart query failed: "+err.Error())
	}

	var preAxis []string
	if spec.Dimension == "day" && !plan.TopN {
		preAxis = win.Dates()
	}

	return assemblePayload(seriesInput{
		Kind:        spec.Kind,
		Rows:        rows,
		SplitSeries: plan.HasSeries,
		MetricNames: plan.MetricNames,
		PreAxis:     preAxis,
		Overrides:   spec.RenderOverrides,
	})
}

func (e *Engine) rawSeries(ctx context.Context, spec core.ChartSpec, caller core.Caller, win core.Window) core.Payload {
	if err := validateRawTemplate(spec.RawQuery); err != nil {
		slog.WarnContext(ctx, "Raw chart query rejected",
			"chart_id", spec.ID, "user_id", caller.UserID, "reason", err.Error())
		return core.EmptyPayload(spec.Kind, err.Error())
	}

	q := substituteRawTemplate(spec.RawQuery, caller, win, spec.DateBasis)
	rows, err := e.queryRawRows(ctx, q)
	if err != nil {
		slog.ErrorContext(ctx, "Raw chart query failed",
			"chart_id", spec.ID, "error", err)
		return core.EmptyPayload(spec.Kind, "query failed: "+err.Error())
	}

	return assemblePayload(seriesInput{
		Kind:      spec.Kind,
		Rows:      rows,
		RawPath:   true,
		Overrides: spec.RenderOverrides,
	})
}

func (e *Engine) queryBuilderRows(ctx context.Context, q Query, plan builderPlan) ([]resultRow, error) {
	rows, err := e.db.QueryContext(ctx, e.dialect.Rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resultRow
	for rows.Next() {
		var (
			dim       sql.NullString
			seriesVal sql.NullString
			metrics   = make([]sql.NullFloat64, len(plan.MetricNames))
		)
		dest := []any{&dim}
		if plan.HasSeries {
			dest = append(dest, &seriesVal)
		}
		for i := range metrics {
			dest = append(dest, &metrics[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := resultRow{Dim: dim.String, Series: seriesVal.String}
		for _, m := range metrics {
			row.Values = append(row.Values, m.Float64)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (e *Engine) queryRawRows(ctx context.Context, q Query) ([]resultRow, error) {
	rows, err := e.db.QueryContext(ctx, e.dialect.Rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// Column contract: label, value, optional series — by name when
	// present, by position otherwise. Extra columns are ignored.
	labelIdx, valueIdx, seriesIdx := -1, -1, -1
	for i, c := range cols {
		switch strings.ToLower(c) {
		case "label":
			labelIdx = i
		case "value":
			valueIdx = i
		case "series":
			seriesIdx = i
		}
	}
	if labelIdx < 0 {
		labelIdx = 0
	}
	if valueIdx < 0 && len(cols) > 1 && labelIdx != 1 {
		valueIdx = 1
	}

	var out []resultRow
	for rows.Next() {
		if len(out) >= e.cfg.RawRowLimit {
			slog.WarnContext(ctx, "Raw chart query truncated", "limit", e.cfg.RawRowLimit)
			break
		}

		raw := make([]any, len(cols))
		for i := range raw {
			raw[i] = new(any)
		}
		if err := rows.Scan(raw...); err != nil {
			return nil, err
		}

		cell := func(i int) any {
			if i < 0 || i >= len(raw) {
				return nil
			}
			return *(raw[i].(*any))
		}

		row := resultRow{
			Dim:    asString(cell(labelIdx)),
			Values: []float64{asFloat(cell(valueIdx))},
		}
		if seriesIdx >= 0 {
			row.Series = asString(cell(seriesIdx))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case []byte:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
