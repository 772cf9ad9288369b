package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	RangeRelative RangeMode = "relative_last_n_days"
	RangeExplicit RangeMode = "explicit"

	// DefaultRangeDays drives the relative window when the spec does
	// not say otherwise.
	DefaultRangeDays = 30

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

type RangeMode string

// DateRange describes the requested date window of a chart, either
// relative to "today" or with explicit inclusive bounds.
type DateRange struct {
	Mode RangeMode `json:"mode"`
	Days int       `json:"n_days,omitempty"`
	From string    `json:"from,omitempty"`
	To   string    `json:"to,omitempty"`
}

// Normalize folds the legacy wire aliases ("days", "custom") and
// defaults into a canonical range. Idempotent.
func (r *DateRange) Normalize() {
	switch strings.ToLower(strings.TrimSpace(string(r.Mode))) {
	case "explicit", "custom":
		r.Mode = RangeExplicit
	default:
		r.Mode = RangeRelative
	}
	if r.Days <= 0 {
		r.Days = DefaultRangeDays
	}
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
}

// Validate checks explicit bounds parse and are ordered.
func (r DateRange) Validate() error {
	if r.Mode != RangeExplicit {
		return nil
	}
	from, err := time.Parse(dateLayout, r.From)
	if err != nil {
		return fmt.Errorf("invalid from date %q: %w", r.From, err)
	}
	to, err := time.Parse(dateLayout, r.To)
	if err != nil {
		return fmt.Errorf("invalid to date %q: %w", r.To, err)
	}
	if to.Before(from) {
		return fmt.Errorf("date range ends %s before it starts %s", r.To, r.From)
	}
	return nil
}

// Window is a resolved half-open date interval [From, ToExcl) at UTC
// midnight granularity.
type Window struct {
	From   time.Time
	ToExcl time.Time
}

// Resolve turns the range into a concrete window. Relative mode spans
// the last N days ending today (inclusive); explicit mode uses the
// stored inclusive bounds.
func (r DateRange) Resolve(now time.Time) (Window, error) {
	if r.Mode == RangeExplicit {
		if err := r.Validate(); err != nil {
			return Window{}, err
		}
		from, _ := time.Parse(dateLayout, r.From)
		to, _ := time.Parse(dateLayout, r.To)
		return Window{From: from, ToExcl: to.AddDate(0, 0, 1)}, nil
	}

	days := r.Days
	if days <= 0 {
		days = DefaultRangeDays
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{From: today.AddDate(0, 0, -(days - 1)), ToExcl: today.AddDate(0, 0, 1)}, nil
}

// FromDate is the first day of the window as a calendar date.
func (w Window) FromDate() string { return w.From.Format(dateLayout) }

// ToDate is the last day of the window (inclusive) as a calendar date.
func (w Window) ToDate() string { return w.ToExcl.AddDate(0, 0, -1).Format(dateLayout) }

// ToExclDate is the first day after the window.
func (w Window) ToExclDate() string { return w.ToExcl.Format(dateLayout) }

// FromDateTime is the opening timestamp bound (midnight).
func (w Window) FromDateTime() string { return w.From.Format(dateTimeLayout) }

// ToDateTime is the closing timestamp of the last day (inclusive).
func (w Window) ToDateTime() string {
	return w.ToExcl.Add(-time.Second).Format(dateTimeLayout)
}

// ToExclDateTime is the exclusive closing timestamp bound (midnight of
// the day after the window).
func (w Window) ToExclDateTime() string { return w.ToExcl.Format(dateTimeLayout) }

// Dates lists every calendar day of the window in order. Used to seed
// a continuous x-axis so empty days still chart as zero.
func (w Window) Dates() []string {
	var out []string
	for d := w.From; d.Before(w.ToExcl); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}
