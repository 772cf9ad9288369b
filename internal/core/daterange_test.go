package core

import (
	"reflect"
	"testing"
	"time"
)

func TestDateRangeNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   DateRange
		want DateRange
	}{
		{
			name: "zero value defaults to relative 30 days",
			in:   DateRange{},
			want: DateRange{Mode: RangeRelative, Days: 30},
		},
		{
			name: "legacy custom alias becomes explicit",
			in:   DateRange{Mode: "custom", From: "2024-01-01", To: "2024-01-31"},
			want: DateRange{Mode: RangeExplicit, Days: 30, From: "2024-01-01", To: "2024-01-31"},
		},
		{
			name: "unknown mode falls back to relative",
			in:   DateRange{Mode: "whatever", Days: 7},
			want: DateRange{Mode: RangeRelative, Days: 7},
		},
		{
			name: "bounds are trimmed",
			in:   DateRange{Mode: "explicit", From: " 2024-01-01 ", To: "2024-02-01 "},
			want: DateRange{Mode: RangeExplicit, Days: 30, From: "2024-01-01", To: "2024-02-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Normalize()
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}

			got.Normalize()
			if got != tt.want {
				t.Errorf("Normalize() not idempotent: %+v", got)
			}
		})
	}
}

func TestDateRangeResolve(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	t.Run("relative window ends tomorrow exclusive", func(t *testing.T) {
		r := DateRange{Mode: RangeRelative, Days: 7}
		win, err := r.Resolve(now)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := win.FromDate(); got != "2024-03-09" {
			t.Errorf("FromDate = %s, want 2024-03-09", got)
		}
		if got := win.ToExclDate(); got != "2024-03-16" {
			t.Errorf("ToExclDate = %s, want 2024-03-16", got)
		}
		if got := win.ToDate(); got != "2024-03-15" {
			t.Errorf("ToDate = %s, want 2024-03-15", got)
		}
	})

	t.Run("explicit bounds are inclusive", func(t *testing.T) {
		r := DateRange{Mode: RangeExplicit, From: "2024-01-01", To: "2024-01-03"}
		win, err := r.Resolve(now)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := win.ToExclDate(); got != "2024-01-04" {
			t.Errorf("ToExclDate = %s, want 2024-01-04", got)
		}
		want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
		if got := win.Dates(); !reflect.DeepEqual(got, want) {
			t.Errorf("Dates() = %v, want %v", got, want)
		}
	})

	t.Run("single day window", func(t *testing.T) {
		r := DateRange{Mode: RangeExplicit, From: "2024-01-01", To: "2024-01-01"}
		win, err := r.Resolve(now)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := win.Dates(); len(got) != 1 || got[0] != "2024-01-01" {
			t.Errorf("Dates() = %v, want one day", got)
		}
	})

	t.Run("inverted explicit bounds error", func(t *testing.T) {
		r := DateRange{Mode: RangeExplicit, From: "2024-02-01", To: "2024-01-01"}
		if _, err := r.Resolve(now); err == nil {
			t.Error("expected error for inverted bounds")
		}
	})

	t.Run("unparsable explicit bound errors", func(t *testing.T) {
		r := DateRange{Mode: RangeExplicit, From: "01/02/2024", To: "2024-02-01"}
		if _, err := r.Resolve(now); err == nil {
			t.Error("expected error for unparsable from date")
		}
	})
}

func TestWindowTimestampBounds(t *testing.T) {
	r := DateRange{Mode: RangeExplicit, From: "2024-01-01", To: "2024-01-02"}
	win, err := r.Resolve(time.Now())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := win.FromDateTime(); got != "2024-01-01 00:00:00" {
		t.Errorf("FromDateTime = %q", got)
	}
	if got := win.ToDateTime(); got != "2024-01-02 23:59:59" {
		t.Errorf("ToDateTime = %q", got)
	}
	if got := win.ToExclDateTime(); got != "2024-01-03 00:00:00" {
		t.Errorf("ToExclDateTime = %q", got)
	}
}
