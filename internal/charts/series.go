package charts

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"kasku/internal/core"
)

// resultRow is one tabular row from either query path, already
// reduced to the shape the assembler cares about.
type resultRow struct {
	Dim    string
	Series string
	Values []float64
}

// seriesInput carries rows plus the flags that decide how they are
// reshaped into an aligned payload.
type seriesInput struct {
	Kind        core.ChartKind
	Rows        []resultRow
	SplitSeries bool     // builder series split: one series per Series value
	MetricNames []string // builder: one series per metric when not split
	PreAxis     []string // seeds the x-axis so empty days chart as zero
	RawPath     bool     // raw rows: drop blank labels, sort date axes, no pretty labels
	Overrides   string   // render-override JSON merge-patch, best effort
}

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// blankSeriesLabel names the series of rows whose series-split value
// is blank.
const blankSeriesLabel = "(series)"

// assemblePayload turns tabular rows into the aligned, zero-filled
// payload the rendering layer consumes. Every series' data array has
// exactly one element per x-axis label, in axis order. An empty axis
// is a normal terminal state reported via the message field.
func assemblePayload(in seriesInput) core.Payload {
	axis := make([]string, 0, len(in.PreAxis)+len(in.Rows))
	seen := make(map[string]bool, len(in.PreAxis)+len(in.Rows))
	addLabel := func(label string) {
		if !seen[label] {
			seen[label] = true
			axis = append(axis, label)
		}
	}
	for _, label := range in.PreAxis {
		addLabel(label)
	}

	// values[seriesName][label] accumulates; order tracks first-seen
	// series names.
	values := make(map[string]map[string]float64)
	var order []string
	record := func(name, label string, v float64) {
		bucket, ok := values[name]
		if !ok {
			bucket = make(map[string]float64)
			values[name] = bucket
			order = append(order, name)
		}
		bucket[label] += v
	}

	for _, row := range in.Rows {
		label := row.Dim
		if in.RawPath {
			if strings.TrimSpace(label) == "" {
				continue
			}
		} else {
			label = core.PrettyLabel(label)
		}
		addLabel(label)

		switch {
		case in.SplitSeries:
			name := core.PrettyLabel(row.Series)
			if strings.TrimSpace(name) == "" {
				name = blankSeriesLabel
			}
			if len(row.Values) > 0 {
				record(name, label, row.Values[0])
			}
		case in.RawPath:
			name := strings.TrimSpace(row.Series)
			if name == "" {
				name = "Value"
			}
			if len(row.Values) > 0 {
				record(name, label, row.Values[0])
			}
		default:
			for i, name := range in.MetricNames {
				if i < len(row.Values) {
					record(name, label, row.Values[i])
				}
			}
		}
	}

	// Builder metrics always appear, even with zero rows matching.
	if !in.SplitSeries && !in.RawPath {
		for _, name := range in.MetricNames {
			if _, ok := values[name]; !ok {
				values[name] = make(map[string]float64)
				order = append(order, name)
			}
		}
	}

	if in.RawPath && len(axis) > 0 && allISODates(axis) {
		sort.Strings(axis)
	}

	payload := core.Payload{
		Type:   string(in.Kind),
		X:      axis,
		Series: make([]core.Series, 0, len(order)),
	}
	if len(axis) == 0 {
		payload.Message = "no data for the selected window"
		payload.Series = []core.Series{}
		payload.Option = parseOverrides(in.Overrides)
		return payload
	}

	for _, name := range order {
		data := make([]float64, len(axis))
		for i, label := range axis {
			data[i] = values[name][label]
		}
		payload.Series = append(payload.Series, core.Series{Name: name, Data: data})
	}

	payload.Option = parseOverrides(in.Overrides)
	return payload
}

func allISODates(labels []string) bool {
	for _, l := range labels {
		if !isoDateRe.MatchString(l) {
			return false
		}
	}
	return true
}

// parseOverrides attaches a well-formed render-override object and
// silently ignores anything else; overrides are a best-effort
// enhancement, never a required input.
func parseOverrides(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var opt map[string]any
	if err := json.Unmarshal([]byte(raw), &opt); err != nil {
		slog.Warn("Ignoring malformed render override", "error", err)
		return nil
	}
	return opt
}
