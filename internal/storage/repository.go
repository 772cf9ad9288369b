package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kasku/internal/charts"
	"kasku/internal/core"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrSpecNotFound is returned when no chart spec has the given id.
var ErrSpecNotFound = errors.New("chart spec not found")

// Repository owns the relational store behind the chart engine: the
// three chartable tables plus the saved chart specs.
type Repository struct {
	db      *sql.DB
	dialect charts.Dialect
}

// NewSQLiteRepository opens (creating if needed) the embedded sqlite
// store and brings its schema up to date.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: charts.SQLite}, nil
}

// NewPostgresRepository connects to a postgres store through the pgx
// stdlib adapter and brings its schema up to date.
func NewPostgresRepository(dsn string) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runPostgresMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: charts.Postgres}, nil
}

// DB exposes the connection pool for the chart engine.
func (r *Repository) DB() *sql.DB { return r.db }

// Dialect reports which SQL dialect the store speaks.
func (r *Repository) Dialect() charts.Dialect { return r.dialect }

// Ping verifies the store is reachable. Used by readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FindSpec loads one chart spec by id. The row's identity columns
// (id, title, owner, visibility) are authoritative over whatever the
// stored config JSON claims.
func (r *Repository) FindSpec(ctx context.Context, id string) (core.ChartSpec, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		"SELECT id, title, owner_id, is_public, config FROM charts WHERE id = ?"), id)

	var (
		specID, title, config string
		ownerID               int64
		isPublic              any
	)
	if err := row.Scan(&specID, &title, &ownerID, &isPublic, &config); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ChartSpec{}, ErrSpecNotFound
		}
		return core.ChartSpec{}, fmt.Errorf("find chart spec %s: %w", id, err)
	}

	spec, err := core.ParseSpec([]byte(config))
	if err != nil {
		return core.ChartSpec{}, fmt.Errorf("chart spec %s: %w", id, err)
	}
	spec.ID = specID
	spec.Title = title
	spec.OwnerID = ownerID
	spec.IsPublic = asBool(isPublic)
	return spec, nil
}

// SaveSpec upserts a chart spec, storing the normalized config as
// JSON next to the identity columns.
func (r *Repository) SaveSpec(ctx context.Context, spec core.ChartSpec) error {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid chart spec: %w", err)
	}

	config, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode chart spec: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO charts (id, title, owner_id, is_public, config, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title,
		   owner_id = excluded.owner_id,
		   is_public = excluded.is_public,
		   config = excluded.config,
		   updated_at = CURRENT_TIMESTAMP`),
		spec.ID, spec.Title, spec.OwnerID, spec.IsPublic, string(config))
	if err != nil {
		return fmt.Errorf("save chart spec %s: %w", spec.ID, err)
	}

	slog.InfoContext(ctx, "Chart spec saved", "id", spec.ID, "owner_id", spec.OwnerID)
	return nil
}

// SpecSummary is one row of a chart listing.
type SpecSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	OwnerID  int64  `json:"owner_id"`
	IsPublic bool   `json:"is_public"`
}

// ListSpecs returns the specs the caller may see: their own plus
// public ones, or everything for privileged callers.
func (r *Repository) ListSpecs(ctx context.Context, caller core.Caller) ([]SpecSummary, error) {
	query := "SELECT id, title, owner_id, is_public FROM charts"
	var args []any
	if !caller.Privileged {
		query += " WHERE owner_id = ? OR is_public"
		args = append(args, caller.UserID)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list chart specs: %w", err)
	}
	defer rows.Close()

	var out []SpecSummary
	for rows.Next() {
		var (
			s        SpecSummary
			isPublic any
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.OwnerID, &isPublic); err != nil {
			return nil, fmt.Errorf("scan chart spec: %w", err)
		}
		s.IsPublic = asBool(isPublic)
		out = append(out, s)
	}
	return out, rows.Err()
}

// asBool bridges the backends' boolean representations (sqlite
// integers, postgres booleans).
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case []byte:
		return len(t) > 0 && t[0] != '0' && t[0] != 0
	default:
		return false
	}
}
