package charts

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"kasku/internal/core"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "charts.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		store_name TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL DEFAULT 1,
		price REAL NOT NULL DEFAULT 0,
		tx_date TEXT,
		created_at TEXT NOT NULL
	);
	CREATE TABLE savings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT 'saving',
		store_name TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL DEFAULT 1,
		price REAL NOT NULL DEFAULT 0,
		tx_date TEXT,
		created_at TEXT NOT NULL
	);
	CREATE TABLE payment_reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		store_name TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL DEFAULT 1,
		price REAL NOT NULL DEFAULT 0,
		tx_date TEXT,
		due_date TEXT,
		created_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedTransaction(t *testing.T, db *sql.DB, userID int64, category, store string, qty, price float64, day string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO transactions (user_id, category, store_name, quantity, price, tx_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, category, store, qty, price, day, day+" 12:00:00")
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func explicitRange(from, to string) core.DateRange {
	return core.DateRange{Mode: core.RangeExplicit, From: from, To: to}
}

func TestChartSeriesBuilderScoping(t *testing.T) {
	db := testDB(t)
	seedTransaction(t, db, 1, "expense", "grocer", 1, 100, "2024-01-01")
	seedTransaction(t, db, 2, "expense", "grocer", 1, 999, "2024-01-01")

	engine := NewEngine(db, SQLite, Config{})
	spec := core.ChartSpec{
		ID:    "c1",
		Range: explicitRange("2024-01-01", "2024-01-03"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if p.Message != "" {
		t.Fatalf("unexpected message: %q", p.Message)
	}
	wantX := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	if !reflect.DeepEqual(p.X, wantX) {
		t.Errorf("x = %v, want gap-filled %v", p.X, wantX)
	}
	if len(p.Series) != 1 || p.Series[0].Name != "Total" {
		t.Fatalf("series = %+v", p.Series)
	}
	if !reflect.DeepEqual(p.Series[0].Data, []float64{100, 0, 0}) {
		t.Errorf("data = %v, caller must only see their own rows", p.Series[0].Data)
	}
}

func TestChartSeriesPrivilegedSeesAll(t *testing.T) {
	db := testDB(t)
	seedTransaction(t, db, 1, "expense", "grocer", 1, 100, "2024-01-01")
	seedTransaction(t, db, 2, "expense", "grocer", 1, 900, "2024-01-01")

	engine := NewEngine(db, SQLite, Config{})
	spec := core.ChartSpec{
		ID:    "c1",
		Range: explicitRange("2024-01-01", "2024-01-01"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1, Privileged: true})

	if !reflect.DeepEqual(p.Series[0].Data, []float64{1000}) {
		t.Errorf("data = %v, want unscoped total", p.Series[0].Data)
	}
}

func TestChartSeriesCategoryDimension(t *testing.T) {
	db := testDB(t)
	seedTransaction(t, db, 1, "outcome", "a", 1, 5, "2024-01-01")
	seedTransaction(t, db, 1, "expense", "b", 1, 7, "2024-01-01")
	seedTransaction(t, db, 1, "income", "c", 1, 3, "2024-01-02")
	seedTransaction(t, db, 1, "", "d", 1, 2, "2024-01-02")

	engine := NewEngine(db, SQLite, Config{})
	spec := core.ChartSpec{
		ID:        "c1",
		Kind:      core.KindPie,
		Dimension: "category",
		Range:     explicitRange("2024-01-01", "2024-01-03"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	got := map[string]float64{}
	for i, label := range p.X {
		got[label] = p.Series[0].Data[i]
	}
	want := map[string]float64{
		"Expense":         12,
		"Income":          3,
		"(uncategorized)": 2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("category totals = %v, want %v", got, want)
	}
}

func TestChartSeriesTopN(t *testing.T) {
	db := testDB(t)
	seedTransaction(t, db, 1, "expense", "alpha", 1, 10, "2024-01-01")
	seedTransaction(t, db, 1, "expense", "beta", 1, 30, "2024-01-01")
	seedTransaction(t, db, 1, "expense", "gamma", 1, 20, "2024-01-02")

	engine := NewEngine(db, SQLite, Config{})
	spec := core.ChartSpec{
		ID:        "c1",
		Dimension: "store",
		TopN:      2,
		Range:     explicitRange("2024-01-01", "2024-01-03"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if !reflect.DeepEqual(p.X, []string{"beta", "gamma"}) {
		t.Errorf("x = %v, want top two stores by total", p.X)
	}
}

func TestChartSeriesRawQueryScoping(t *testing.T) {
	db := testDB(t)
	seedTransaction(t, db, 1, "expense", "a", 1, 10, "2024-01-01")
	seedTransaction(t, db, 2, "expense", "a", 1, 50, "2024-01-01")

	engine := NewEngine(db, SQLite, Config{})
	spec := core.ChartSpec{
		ID:   "c1",
		Mode: core.ModeRawQuery,
		RawQuery: "SELECT category AS label, SUM(price * quantity) AS value" +
			" FROM {{active}} WHERE {{date_col}} >= {{from_dt}} GROUP BY 1",
		Range: explicitRange("2024-01-01", "2024-01-02"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if p.Message != "" {
		t.Fatalf("unexpected message: %q", p.Message)
	}
	if !reflect.DeepEqual(p.X, []string{"expense"}) {
		t.Errorf("x = %v", p.X)
	}
	if !reflect.DeepEqual(p.Series[0].Data, []float64{10}) {
		t.Errorf("data = %v, raw path must stay row-scoped", p.Series[0].Data)
	}
}

func TestChartSeriesRawQueryRejected(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db, SQLite, Config{})

	spec := core.ChartSpec{
		ID:       "c1",
		Mode:     core.ModeRawQuery,
		RawQuery: "DELETE FROM {{active}}",
		Range:    explicitRange("2024-01-01", "2024-01-02"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if p.Message == "" {
		t.Fatal("rejected template must surface a message")
	}
	if len(p.X) != 0 || len(p.Series) != 0 {
		t.Errorf("rejected payload should be empty: %+v", p)
	}
}

func TestChartSeriesRawRowLimit(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		seedTransaction(t, db, 1, "expense", "s", 1, float64(i+1), "2024-01-01")
	}

	engine := NewEngine(db, SQLite, Config{RawRowLimit: 3})
	spec := core.ChartSpec{
		ID:   "c1",
		Mode: core.ModeRawQuery,
		RawQuery: "SELECT id AS label, price AS value FROM {{active}}" +
			" ORDER BY id",
		Range: explicitRange("2024-01-01", "2024-01-02"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if len(p.X) != 3 {
		t.Errorf("x = %v, want truncation at 3 rows", p.X)
	}
}

func TestChartSeriesStrictFields(t *testing.T) {
	db := testDB(t)
	engine := NewEngine(db, SQLite, Config{StrictFields: true})

	spec := core.ChartSpec{
		ID:        "c1",
		Dimension: "weather",
		Range:     explicitRange("2024-01-01", "2024-01-02"),
	}

	p := engine.ChartSeries(context.Background(), spec, core.Caller{UserID: 1})

	if p.Message != `unknown field key "weather"` {
		t.Errorf("message = %q", p.Message)
	}

	dims, _ := engine.UnknownFieldCounts()
	if dims != 1 {
		t.Errorf("unknown dimension count = %d, want 1", dims)
	}
}

func TestChartSeriesNilStore(t *testing.T) {
	engine := NewEngine(nil, SQLite, Config{})
	p := engine.ChartSeries(context.Background(), core.ChartSpec{ID: "c1"}, core.Caller{UserID: 1})
	if p.Message != "no data store is configured" {
		t.Errorf("message = %q", p.Message)
	}
}
