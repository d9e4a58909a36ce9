// Package store persists exact typed records in SQLite. It is the ground
// truth the answer verifier checks numeric claims against.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mfukata/kensho/internal/model"
)

// Store manages the structured record database
type Store struct {
	db *sql.DB
}

// Open opens or creates the record database, creating the schema when it
// does not exist
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id TEXT NOT NULL,
			category TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value_kind INTEGER NOT NULL,
			value_num REAL,
			value_text TEXT,
			raw_text TEXT,
			source_unit TEXT NOT NULL,
			UNIQUE(entity_id, category, attribute)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_entity ON records(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_entity_attr ON records(entity_id, attribute)`,
		`CREATE INDEX IF NOT EXISTS idx_records_unit ON records(source_unit)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Upsert inserts a record, replacing any existing record with the same
// (entity, category, attribute) key
func (s *Store) Upsert(ctx context.Context, rec model.Record) error {
	return s.upsert(ctx, s.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, ex execer, rec model.Record) error {
	var num sql.NullFloat64
	var text sql.NullString
	switch rec.Value.Kind {
	case model.ValueNumeric:
		num = sql.NullFloat64{Float64: rec.Value.Number, Valid: true}
	case model.ValueText:
		text = sql.NullString{String: rec.Value.Text, Valid: true}
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO records (entity_id, category, attribute, value_kind, value_num, value_text, raw_text, source_unit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity_id, category, attribute) DO UPDATE SET
			value_kind=excluded.value_kind, value_num=excluded.value_num,
			value_text=excluded.value_text, raw_text=excluded.raw_text,
			source_unit=excluded.source_unit`,
		rec.EntityID, rec.Category, rec.Attribute, int(rec.Value.Kind),
		num, text, rec.RawText, rec.SourceUnit,
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.Key(), err)
	}
	return nil
}

// ReplaceUnit commits all records of one source unit in a single
// transaction, replacing any records from a previous ingestion of that
// unit. The unit is all-or-nothing: a failed insert rolls everything back.
func (s *Store) ReplaceUnit(ctx context.Context, unitID string, records []model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source_unit = ?`, unitID); err != nil {
		return fmt.Errorf("deleting old unit records: %w", err)
	}

	for _, rec := range records {
		if err := s.upsert(ctx, tx, rec); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Lookup returns records matching a partial key. Empty category or
// attribute act as wildcards; entity is required (the verifier's primary
// access pattern is entity-only).
func (s *Store) Lookup(ctx context.Context, entityID, category, attribute string) ([]model.Record, error) {
	if entityID == "" {
		return nil, fmt.Errorf("lookup requires an entity id")
	}

	query := `SELECT entity_id, category, attribute, value_kind, value_num, value_text, raw_text, source_unit
		FROM records WHERE entity_id = ?`
	args := []any{entityID}

	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if attribute != "" {
		query += ` AND attribute = ?`
		args = append(args, attribute)
	}
	query += ` ORDER BY category, attribute`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var rec model.Record
		var kind int
		var num sql.NullFloat64
		var text sql.NullString
		if err := rows.Scan(&rec.EntityID, &rec.Category, &rec.Attribute, &kind, &num, &text, &rec.RawText, &rec.SourceUnit); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		switch model.ValueKind(kind) {
		case model.ValueNumeric:
			rec.Value = model.NumericValue(num.Float64)
		case model.ValueText:
			rec.Value = model.TextValue(text.String)
		default:
			rec.Value = model.MissingValue()
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Entities lists all known entity IDs
func (s *Store) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT entity_id FROM records ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MatchEntities returns the known entity IDs mentioned in the given text.
// Used to resolve which entities an answer talks about.
func (s *Store) MatchEntities(ctx context.Context, text string) ([]string, error) {
	all, err := s.Entities(ctx)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, id := range all {
		if strings.Contains(text, id) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// Count returns the total number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&n)
	return n, err
}
