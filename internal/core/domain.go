package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Chart kinds understood by the rendering layer.
const (
	KindBar        ChartKind = "bar"
	KindStackedBar ChartKind = "stacked_bar"
	KindLine       ChartKind = "line"
	KindArea       ChartKind = "area"
	KindScatter    ChartKind = "scatter"
	KindPie        ChartKind = "pie"
	KindDonut      ChartKind = "donut"
)

const (
	ModeBuilder  Mode = "builder"
	ModeRawQuery Mode = "raw_query"
)

const (
	BasisEntryTime       DateBasis = "entry_time"
	BasisTransactionDate DateBasis = "transaction_date"
)

const (
	AggSum   Aggregation = "SUM"
	AggAvg   Aggregation = "AVG"
	AggCount Aggregation = "COUNT"
	AggMax   Aggregation = "MAX"
	AggMin   Aggregation = "MIN"
)

// MaxMetrics is the most metrics a single chart may carry.
const MaxMetrics = 3

type (
	ChartKind   string
	Mode        string
	DateBasis   string
	Aggregation string

	// Metric pairs a metric field key with its requested aggregation.
	// Some keys imply an aggregation that overrides the requested one.
	Metric struct {
		Key string      `json:"metric_key"`
		Agg Aggregation `json:"aggregation"`
	}

	// ChartSpec is the declarative definition of one chart. It is
	// persisted as JSON and consumed read-only by the engine;
	// ParseSpec normalizes it once at the boundary.
	ChartSpec struct {
		ID              string    `json:"id"`
		Title           string    `json:"title"`
		Kind            ChartKind `json:"chart_kind"`
		Mode            Mode      `json:"mode"`
		Dimension       string    `json:"dimension"`
		SeriesDimension string    `json:"series_dimension,omitempty"`
		Metrics         []Metric  `json:"metrics"`
		CategoryFilter  []string  `json:"category_filter,omitempty"`
		TopN            int       `json:"top_n,omitempty"`
		Range           DateRange `json:"date_range"`
		DateBasis       DateBasis `json:"date_basis"`
		RawQuery        string    `json:"raw_query_template,omitempty"`
		RenderOverrides string    `json:"render_overrides,omitempty"`
		OwnerID         int64     `json:"owner_id,omitempty"`
		IsPublic        bool      `json:"is_public,omitempty"`
	}

	// Caller identifies the authenticated requester. Privileged
	// callers see unscoped data; everyone else is row-scoped to
	// their own user id.
	Caller struct {
		UserID     int64
		Privileged bool
	}

	// Series is one named data line of a payload.
	Series struct {
		Name string    `json:"name"`
		Data []float64 `json:"data"`
	}

	// Payload is the wire shape handed to the rendering layer.
	// Invariant: len(Series[i].Data) == len(X) for every i.
	Payload struct {
		Type    string         `json:"type"`
		X       []string       `json:"x"`
		Series  []Series       `json:"series"`
		Message string         `json:"message,omitempty"`
		Option  map[string]any `json:"option,omitempty"`
	}
)

var (
	ErrEmptySpecID   = errors.New("chart spec id is empty")
	ErrMissingRaw    = errors.New("raw_query mode requires a query template")
	ErrTooManyMetric = fmt.Errorf("a chart may carry at most %d metrics", MaxMetrics)
)

// EmptyPayload returns a renderable payload with no data and the
// given diagnostic message. All failure modes of the engine terminate
// here rather than in a returned error.
func EmptyPayload(kind ChartKind, message string) Payload {
	return Payload{
		Type:    string(kind),
		X:       []string{},
		Series:  []Series{},
		Message: message,
	}
}

// ParseSpec decodes a chart spec from its stored JSON form and
// normalizes it. The zero-config spec parses to a valid default chart
// (daily amount totals over the last 30 days).
func ParseSpec(raw []byte) (ChartSpec, error) {
	var spec ChartSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return ChartSpec{}, fmt.Errorf("decode chart spec: %w", err)
	}
	spec.Normalize()
	return spec, nil
}

// Normalize applies defaults and folds the legacy wire aliases older
// clients still send ("sql" mode, "custom" range, "input" date basis,
// "amount_total" metric). Idempotent.
func (s *ChartSpec) Normalize() {
	kind := ChartKind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
	switch kind {
	case KindBar, KindStackedBar, KindLine, KindArea, KindScatter, KindPie, KindDonut:
		s.Kind = kind
	default:
		s.Kind = KindBar
	}

	switch strings.ToLower(strings.TrimSpace(string(s.Mode))) {
	case "raw_query", "sql":
		s.Mode = ModeRawQuery
	default:
		s.Mode = ModeBuilder
	}

	switch strings.ToLower(strings.TrimSpace(string(s.DateBasis))) {
	case "transaction_date", "transaction":
		s.DateBasis = BasisTransactionDate
	default:
		// "input" is the original name for the entry timestamp.
		s.DateBasis = BasisEntryTime
	}

	s.Dimension = strings.ToLower(strings.TrimSpace(s.Dimension))
	if s.Dimension == "" {
		s.Dimension = "day"
	}
	s.SeriesDimension = strings.ToLower(strings.TrimSpace(s.SeriesDimension))

	if len(s.Metrics) == 0 {
		s.Metrics = []Metric{{Key: "amount", Agg: AggSum}}
	}
	if len(s.Metrics) > MaxMetrics {
		s.Metrics = s.Metrics[:MaxMetrics]
	}
	for i := range s.Metrics {
		key := strings.ToLower(strings.TrimSpace(s.Metrics[i].Key))
		if key == "amount_total" || key == "" {
			key = "amount"
		}
		s.Metrics[i].Key = key
		s.Metrics[i].Agg = NormalizeAggregation(s.Metrics[i].Agg)
	}

	if s.TopN < 0 {
		s.TopN = 0
	}
	s.Range.Normalize()
}

// Validate reports structural problems a normalized spec may still
// have. Field-key problems are not errors here: unknown dimension and
// metric keys fail open in the compiler.
func (s ChartSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptySpecID
	}
	if s.Mode == ModeRawQuery && strings.TrimSpace(s.RawQuery) == "" {
		return ErrMissingRaw
	}
	if len(s.Metrics) > MaxMetrics {
		return ErrTooManyMetric
	}
	return s.Range.Validate()
}

// NormalizeAggregation maps a requested aggregation onto the supported
// set, defaulting to SUM for anything unrecognized.
func NormalizeAggregation(agg Aggregation) Aggregation {
	up := Aggregation(strings.ToUpper(strings.TrimSpace(string(agg))))
	switch up {
	case AggSum, AggAvg, AggCount, AggMax, AggMin:
		return up
	default:
		return AggSum
	}
}
