package charts

import "testing"

func TestPostgresRebind(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sequential numbering",
			in:   "SELECT * FROM t WHERE a = ? AND b = ?",
			want: "SELECT * FROM t WHERE a = $1 AND b = $2",
		},
		{
			name: "question mark inside string literal untouched",
			in:   "SELECT * FROM t WHERE a = '?' AND b = ?",
			want: "SELECT * FROM t WHERE a = '?' AND b = $1",
		},
		{
			name: "question mark inside quoted identifier untouched",
			in:   `SELECT "odd?col" FROM t WHERE a = ?`,
			want: `SELECT "odd?col" FROM t WHERE a = $1`,
		},
		{
			name: "no placeholders",
			in:   "SELECT 1",
			want: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Postgres.Rebind(tt.in); got != tt.want {
				t.Errorf("Rebind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSQLiteRebindIsIdentity(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := SQLite.Rebind(q); got != q {
		t.Errorf("Rebind changed the query: %q", got)
	}
}

func TestCalendarExprGrains(t *testing.T) {
	grains := []string{"day", "week", "month", "year", "day_of_week"}

	for _, d := range []Dialect{SQLite, Postgres} {
		for _, g := range grains {
			if expr := d.CalendarExpr(g, "created_at"); expr == "" {
				t.Errorf("%s: empty expression for grain %q", d.Name(), g)
			}
		}
	}

	if SQLite.CalendarExpr("month", "created_at") != "strftime('%Y-%m', created_at)" {
		t.Error("sqlite month truncation changed")
	}
	if Postgres.CalendarExpr("month", "created_at") != "to_char(created_at, 'YYYY-MM')" {
		t.Error("postgres month truncation changed")
	}
}

func TestTimeCondCasts(t *testing.T) {
	if got := SQLite.TimeCond("created_at", ">=", false); got != "created_at >= ?" {
		t.Errorf("sqlite cond = %q", got)
	}
	if got := Postgres.TimeCond("created_at", ">=", false); got != "created_at >= ?::timestamp" {
		t.Errorf("postgres timestamp cond = %q", got)
	}
	if got := Postgres.TimeCond("tx_date", "<", true); got != "tx_date < ?::date" {
		t.Errorf("postgres date cond = %q", got)
	}
}
