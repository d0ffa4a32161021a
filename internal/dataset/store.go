package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS sample_runs (
    id         TEXT PRIMARY KEY,
    source     TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    games      INTEGER NOT NULL DEFAULT 0,
    kept       INTEGER NOT NULL DEFAULT 0,
    row_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS positions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES sample_runs(id),
    fen         TEXT NOT NULL,
    move        TEXT NOT NULL,
    san         TEXT NOT NULL,
    ply         INTEGER NOT NULL,
    turn        TEXT NOT NULL,
    eval        INTEGER NOT NULL,
    piece_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS positions_by_run ON positions(run_id);
`

// csvHeader matches the column layout of the original extraction pipeline,
// so downstream consumers keep working.
var csvHeader = []string{"fen", "move", "move_san", "move_number", "to_move", "evaluation", "piece_count"}

// Store persists sample runs in a local SQLite database in WAL mode.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path, enables WAL mode and a
// busy timeout, and creates the schema if it does not exist.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open database: %w", err)
	}

	// One connection: SQLite has a single writer, and sharing one
	// connection keeps the PRAGMA setup applying to every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("dataset: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("dataset: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dataset: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (st *Store) Close() error {
	return st.db.Close()
}

// Run is one ingestion pass over a named source.
type Run struct {
	store *Store
	id    string
}

// Begin records a new run and returns its handle.
func (st *Store) Begin(ctx context.Context, source string) (*Run, error) {
	id := uuid.NewString()
	created := time.Now().UTC().Format(time.RFC3339)
	_, err := st.db.ExecContext(ctx,
		"INSERT INTO sample_runs (id, source, created_at) VALUES (?, ?, ?)",
		id, source, created)
	if err != nil {
		return nil, fmt.Errorf("dataset: begin run: %w", err)
	}
	return &Run{store: st, id: id}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.id }

// Add persists one retained row under this run.
func (r *Run) Add(ctx context.Context, row Row) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO positions (run_id, fen, move, san, ply, turn, eval, piece_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, row.FEN, row.Move, row.SAN, row.Ply, row.Turn, row.Eval, row.PieceCount)
	if err != nil {
		return fmt.Errorf("dataset: insert position: %w", err)
	}
	return nil
}

// Finish stamps the run with its final statistics.
func (r *Run) Finish(ctx context.Context, st Stats) error {
	_, err := r.store.db.ExecContext(ctx,
		"UPDATE sample_runs SET games = ?, kept = ?, row_count = ? WHERE id = ?",
		st.Games, st.Kept, st.Rows, r.id)
	if err != nil {
		return fmt.Errorf("dataset: finish run: %w", err)
	}
	return nil
}

// ExportCSV writes a run's rows to w in the original column order and
// returns the number of data rows written.
func (st *Store) ExportCSV(ctx context.Context, w io.Writer, runID string) (int, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT fen, move, san, ply, turn, eval, piece_count
		 FROM positions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return 0, fmt.Errorf("dataset: export query: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("dataset: export header: %w", err)
	}
	n := 0
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.FEN, &row.Move, &row.SAN, &row.Ply, &row.Turn, &row.Eval, &row.PieceCount); err != nil {
			return n, fmt.Errorf("dataset: export scan: %w", err)
		}
		rec := []string{
			row.FEN, row.Move, row.SAN,
			strconv.Itoa(row.Ply), row.Turn,
			strconv.Itoa(row.Eval), strconv.Itoa(row.PieceCount),
		}
		if err := cw.Write(rec); err != nil {
			return n, fmt.Errorf("dataset: export row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("dataset: export: %w", err)
	}
	cw.Flush()
	return n, cw.Error()
}
