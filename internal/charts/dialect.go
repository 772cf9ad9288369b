package charts

import (
	"strconv"
	"strings"
)

// Dialect abstracts the SQL differences between the supported storage
// engines: calendar truncation syntax, parameter casts, and the
// placeholder style of the driver.
type Dialect interface {
	Name() string

	// CalendarExpr returns a row expression that truncates the given
	// timestamp column to the calendar grain of key ("day", "week",
	// "month", "year", "day_of_week"), formatted as a text label.
	CalendarExpr(key, col string) string

	// TimeCond returns a comparison fragment binding one parameter,
	// e.g. "created_at >= ?". dateOnly selects date semantics for the
	// bound value.
	TimeCond(col, op string, dateOnly bool) string

	// Rebind rewrites driver-neutral "?" placeholders into the form
	// the driver expects.
	Rebind(query string) string
}

type sqliteDialect struct{}

// SQLite is the Dialect for the embedded sqlite backend.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) CalendarExpr(key, col string) string {
	switch key {
	case "week":
		return "strftime('%Y-W%W', " + col + ")"
	case "month":
		return "strftime('%Y-%m', " + col + ")"
	case "year":
		return "strftime('%Y', " + col + ")"
	case "day_of_week":
		return "CASE strftime('%w', " + col + ")" +
			" WHEN '0' THEN 'Sun' WHEN '1' THEN 'Mon' WHEN '2' THEN 'Tue'" +
			" WHEN '3' THEN 'Wed' WHEN '4' THEN 'Thu' WHEN '5' THEN 'Fri'" +
			" ELSE 'Sat' END"
	default: // day
		return "strftime('%Y-%m-%d', " + col + ")"
	}
}

func (sqliteDialect) TimeCond(col, op string, dateOnly bool) string {
	// Bounds are bound as ISO text; sqlite compares them
	// lexicographically against the stored text timestamps.
	return col + " " + op + " ?"
}

func (sqliteDialect) Rebind(query string) string { return query }

type postgresDialect struct{}

// Postgres is the Dialect for the pgx-backed postgres backend.
var Postgres Dialect = postgresDialect{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) CalendarExpr(key, col string) string {
	switch key {
	case "week":
		return "to_char(" + col + ", 'IYYY-\"W\"IW')"
	case "month":
		return "to_char(" + col + ", 'YYYY-MM')"
	case "year":
		return "to_char(" + col + ", 'YYYY')"
	case "day_of_week":
		return "trim(to_char(" + col + ", 'Dy'))"
	default: // day
		return "to_char(" + col + ", 'YYYY-MM-DD')"
	}
}

func (postgresDialect) TimeCond(col, op string, dateOnly bool) string {
	cast := "::timestamp"
	if dateOnly {
		cast = "::date"
	}
	return col + " " + op + " ?" + cast
}

// Rebind converts "?" placeholders to "$1".."$n", leaving quoted
// literals and identifiers untouched.
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '?' && !inSingle && !inDouble:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
