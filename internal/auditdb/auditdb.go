// Package auditdb maintains a sqlite index over the audit log for
// post-mortem queries. The flat audit file stays the source of truth; the
// index is derived and can be rebuilt from it at any time.
package auditdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/sidecar/internal/ledger"
	"github.com/hyperengineering/sidecar/internal/types"
	"github.com/hyperengineering/sidecar/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite-backed audit index.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the index at path, applies pragmas and runs
// migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &DB{db: db}, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies all pending migrations using goose and the embedded
// SQL files.
func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ingest indexes audit entries, one transaction for the whole batch.
// Returns the number of entries inserted.
func (d *DB) Ingest(ctx context.Context, entries []types.AuditEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, e := range entries {
		event, err := json.Marshal(e.Event)
		if err != nil {
			return 0, fmt.Errorf("encode entry %d event: %w", i, err)
		}
		var errors any
		if len(e.Errors) > 0 {
			raw, err := json.Marshal(e.Errors)
			if err != nil {
				return 0, fmt.Errorf("encode entry %d errors: %w", i, err)
			}
			errors = string(raw)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO audit_entries (audit_type, event_type, event_id, at, errors, event)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(e.AuditType), string(e.Event.Type), e.Event.ID,
			e.At.Format(time.RFC3339Nano), errors, string(event))
		if err != nil {
			return 0, fmt.Errorf("insert entry %d: %w", i, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get last insert id: %w", err)
		}
		for _, ref := range ledger.EventRefs(e.Event) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_refs (seq, entity_id) VALUES (?, ?)`, seq, ref); err != nil {
				return 0, fmt.Errorf("insert ref for entry %d: %w", i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(entries), nil
}

// Rebuild clears the index and re-ingests the given history.
func (d *DB) Rebuild(ctx context.Context, entries []types.AuditEntry) (int, error) {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM audit_entries`); err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	return d.Ingest(ctx, entries)
}

// IndexedEntry is one indexed audit record.
type IndexedEntry struct {
	Seq       int64              `json:"seq"`
	AuditType types.AuditType    `json:"audit_type"`
	At        time.Time          `json:"at"`
	Errors    []types.FieldError `json:"errors,omitempty"`
	Event     types.Event        `json:"event"`
}

const selectEntry = `
	SELECT DISTINCT e.seq, e.audit_type, e.at, e.errors, e.event
	FROM audit_entries e`

// ByEntity returns every indexed entry whose event touches the given id, in
// audit order.
func (d *DB) ByEntity(ctx context.Context, id string) ([]IndexedEntry, error) {
	rows, err := d.db.QueryContext(ctx, selectEntry+`
		JOIN audit_refs r ON r.seq = e.seq
		WHERE r.entity_id = ?
		ORDER BY e.seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query by entity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Failures returns failure entries, optionally restricted to those touching
// the given id, in audit order.
func (d *DB) Failures(ctx context.Context, id string) ([]IndexedEntry, error) {
	query := selectEntry + `
		WHERE e.audit_type != 'success'
		ORDER BY e.seq ASC`
	args := []any{}
	if id != "" {
		query = selectEntry + `
			JOIN audit_refs r ON r.seq = e.seq
			WHERE e.audit_type != 'success' AND r.entity_id = ?
			ORDER BY e.seq ASC`
		args = append(args, id)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]IndexedEntry, error) {
	entries := make([]IndexedEntry, 0)
	for rows.Next() {
		var e IndexedEntry
		var auditType, at, event string
		var errs sql.NullString
		if err := rows.Scan(&e.Seq, &auditType, &at, &errs, &event); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.AuditType = types.AuditType(auditType)
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse entry at: %w", err)
		}
		e.At = parsed
		if errs.Valid {
			if err := json.Unmarshal([]byte(errs.String), &e.Errors); err != nil {
				return nil, fmt.Errorf("decode entry errors: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(event), &e.Event); err != nil {
			return nil, fmt.Errorf("decode entry event: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
