// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. Batches are inserted inside a transaction; SQLite has no
// bulk-load API like Postgres COPY, but transactions keep performance
// acceptable for rollup-sized volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver.
	_ "modernc.org/sqlite"

	"searchrollup/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg storage.Config
}

// NewRepository opens a SQLite connection using cfg.DSN. The DSN is passed
// straight to database/sql; for example:
//
//	"file:rollup.db?cache=shared"
//	"rollup.db"
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("sqlite: table must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Repository{db: db, cfg: cfg}, nil
}

// Prepare enforces the save mode against the destination table and creates
// it when needed.
//
//   - error: fail with ErrDestinationExists when the table already exists.
//   - overwrite: drop and recreate the table.
//   - append: create the table only if missing.
func (r *Repository) Prepare(ctx context.Context) error {
	exists, err := r.tableExists(ctx)
	if err != nil {
		return err
	}

	switch r.cfg.SaveMode {
	case storage.SaveModeError:
		if exists {
			return fmt.Errorf("sqlite: table %s: %w", r.cfg.Table, storage.ErrDestinationExists)
		}
	case storage.SaveModeOverwrite:
		if exists {
			if _, err := r.db.ExecContext(ctx, "DROP TABLE "+ident(r.cfg.Table)); err != nil {
				return fmt.Errorf("sqlite: drop table: %w", err)
			}
			exists = false
		}
	case storage.SaveModeAppend:
		// Keep existing rows.
	}

	if exists {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, createTableSQL(r.cfg)); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

func (r *Repository) tableExists(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		r.cfg.Table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: inspect schema: %w", err)
	}
	return n > 0, nil
}

// CopyFrom inserts the given rows inside a single transaction using a
// prepared statement. len(row) must equal len(columns) for every row.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ident(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		ident(r.cfg.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error { return r.db.Close() }

// createTableSQL renders the CREATE TABLE statement for the rollup schema.
func createTableSQL(cfg storage.Config) string {
	defs := make([]string, len(cfg.Schema))
	for i, col := range cfg.Schema {
		defs[i] = ident(col.Name) + " " + sqlType(col.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident(cfg.Table), strings.Join(defs, ", "))
}

func sqlType(t storage.ColumnType) string {
	switch t {
	case storage.ColumnInteger:
		return "INTEGER"
	case storage.ColumnReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// ident double-quotes an identifier; rollup column names contain hyphens
// (tagged-sap) and must always be quoted.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
