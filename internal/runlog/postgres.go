package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS audience_hash_runs (
	id                   UUID PRIMARY KEY,
	command              TEXT NOT NULL,
	source               TEXT NOT NULL,
	output               TEXT,
	rows_in              INTEGER NOT NULL DEFAULT 0,
	rows_filtered        INTEGER NOT NULL DEFAULT 0,
	rows_out             INTEGER NOT NULL DEFAULT 0,
	duplicates           INTEGER NOT NULL DEFAULT 0,
	unresolved_countries INTEGER NOT NULL DEFAULT 0,
	malformed            INTEGER NOT NULL DEFAULT 0,
	match_kinds          JSONB,
	status               TEXT NOT NULL,
	error                TEXT,
	started_at           TIMESTAMPTZ NOT NULL,
	finished_at          TIMESTAMPTZ NOT NULL
)`

// PostgresRecorder writes entries to the audience_hash_runs table.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder wraps an open database handle.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates the runs table when missing.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating audience_hash_runs: %w", err)
	}
	return nil
}

// Record inserts one entry.
func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	var kinds []byte
	if len(e.MatchKinds) > 0 {
		var err error
		if kinds, err = json.Marshal(e.MatchKinds); err != nil {
			return fmt.Errorf("marshaling match kinds for run %s: %w", e.ID, err)
		}
	}

	query := `
		INSERT INTO audience_hash_runs (
			id, command, source, output, rows_in, rows_filtered, rows_out,
			duplicates, unresolved_countries, malformed, match_kinds,
			status, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Command, e.Source, nullString(e.Output), e.RowsIn, e.RowsFiltered, e.RowsOut,
		e.Duplicates, e.UnresolvedCountries, e.Malformed, kinds,
		e.Status, nullString(e.Error), e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", e.ID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Recent returns up to limit entries, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, command, source, COALESCE(output, ''), rows_in, rows_filtered, rows_out,
			duplicates, unresolved_countries, malformed, match_kinds,
			status, COALESCE(error, ''), started_at, finished_at
		FROM audience_hash_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			kinds []byte
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Source, &e.Output, &e.RowsIn, &e.RowsFiltered, &e.RowsOut,
			&e.Duplicates, &e.UnresolvedCountries, &e.Malformed, &kinds,
			&e.Status, &e.Error, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if len(kinds) > 0 {
			if err := json.Unmarshal(kinds, &e.MatchKinds); err != nil {
				return nil, fmt.Errorf("decoding match kinds for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
