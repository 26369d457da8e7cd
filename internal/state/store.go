// Package state implements the State Store (component E): a SQLite-backed
// record of which papers have been processed, so a crashed or interrupted
// run can resume without redoing completed work. Grounded directly on
// rag/internal/storage.DB — same embedded-schema-via-conn.Exec shape,
// generalized from the RAG indexer's documents/embeddings tables to the
// pipeline's runs/processing_state/checkpoints tables.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	fetched    INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	located    INTEGER NOT NULL DEFAULT 0,
	geocoded   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'in_progress'
);

CREATE TABLE IF NOT EXISTS processing_state (
	run_id      TEXT NOT NULL,
	paper_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	first_seen  TIMESTAMP NOT NULL,
	last_update TIMESTAMP NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	PRIMARY KEY (run_id, paper_id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id                TEXT NOT NULL,
	batch_seq             INTEGER NOT NULL,
	last_completed_paper  TEXT NOT NULL,
	written_at            TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, batch_seq)
);

CREATE INDEX IF NOT EXISTS idx_processing_state_paper ON processing_state(paper_id, status);
`

// ErrStateStore wraps every error this package returns.
type ErrStateStore struct {
	Op    string
	Cause error
}

func (e *ErrStateStore) Error() string { return fmt.Sprintf("state: %s: %v", e.Op, e.Cause) }
func (e *ErrStateStore) Unwrap() error { return e.Cause }

// Store is the State Store. A single *sql.DB with max open connections
// capped at 1 serializes every write, matching the teacher's single-writer
// assumption — SQLite itself only supports one writer at a time.
type Store struct {
	db *sql.DB
}

// Open creates or reuses the SQLite database at dbPath and runs its schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ErrStateStore{"open", fmt.Errorf("create state directory: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &ErrStateStore{"open", err}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, &ErrStateStore{"open", err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &ErrStateStore{"open", err}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun inserts a new runs row and returns it, establishing the run_id
// every subsequent call in this run is scoped to.
func (s *Store) BeginRun(runID, city string) (model.Run, error) {
	run := model.Run{RunID: runID, City: city, StartedAt: time.Now(), Status: string(model.StatusInProgress)}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, city, started_at, status) VALUES (?, ?, ?, ?)`,
		run.RunID, run.City, run.StartedAt, run.Status,
	)
	if err != nil {
		return model.Run{}, &ErrStateStore{"begin_run", err}
	}
	return run, nil
}

// Mark upserts a ProcessingState row. Repeated calls for the same
// (run_id, paper_id) update in place, keeping first_seen and incrementing
// retry_count whenever the new status is failed.
func (s *Store) Mark(runID, paperID string, status model.Status, lastError string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO processing_state (run_id, paper_id, status, first_seen, last_update, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(run_id, paper_id) DO UPDATE SET
			status = excluded.status,
			last_update = excluded.last_update,
			last_error = excluded.last_error,
			retry_count = retry_count + CASE WHEN excluded.status = ? THEN 1 ELSE 0 END
	`, runID, paperID, string(status), now, now, lastError, string(model.StatusFailed))
	if err != nil {
		return &ErrStateStore{"mark", err}
	}
	return nil
}

// IsCompleted reports whether paperID has ever completed successfully in
// any run — the cross-run durability decision spec.md §9 asks for, so a
// paper already processed by an earlier run is skipped even on a fresh
// run_id.
func (s *Store) IsCompleted(paperID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM processing_state WHERE paper_id = ? AND status = ? LIMIT 1`,
		paperID, string(model.StatusCompleted),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &ErrStateStore{"is_completed", err}
	}
	return true, nil
}

// WriteCheckpoint records a batch boundary so a resumed run knows the last
// paper it fully finished.
func (s *Store) WriteCheckpoint(runID string, batchSeq int, lastCompletedPaper string) error {
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (run_id, batch_seq, last_completed_paper, written_at) VALUES (?, ?, ?, ?)`,
		runID, batchSeq, lastCompletedPaper, time.Now(),
	)
	if err != nil {
		return &ErrStateStore{"write_checkpoint", err}
	}
	return nil
}

// LatestCheckpoint returns the highest-batch_seq checkpoint for runID, or
// ok=false if the run has no checkpoints yet.
func (s *Store) LatestCheckpoint(runID string) (cp model.Checkpoint, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT run_id, batch_seq, last_completed_paper, written_at FROM checkpoints
		 WHERE run_id = ? ORDER BY batch_seq DESC LIMIT 1`,
		runID,
	)
	if scanErr := row.Scan(&cp.RunID, &cp.BatchSeq, &cp.LastCompletedPaper, &cp.WrittenAt); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, &ErrStateStore{"latest_checkpoint", scanErr}
	}
	return cp, true, nil
}

// FailedPaperIDs returns every paper_id marked failed in runID, for the
// orchestrator's end-of-run reprocess_failed pass.
func (s *Store) FailedPaperIDs(runID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT paper_id FROM processing_state WHERE run_id = ? AND status = ?`,
		runID, string(model.StatusFailed),
	)
	if err != nil {
		return nil, &ErrStateStore{"failed_paper_ids", err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ErrStateStore{"failed_paper_ids", err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summarize aggregates processing_state counts for runID into a RunSummary
// and marks the run row ended with the given terminal status.
func (s *Store) Summarize(runID, terminalStatus string) (model.RunSummary, error) {
	summary := model.RunSummary{RunID: runID, TerminalStatus: terminalStatus}

	row := s.db.QueryRow(`SELECT city, started_at FROM runs WHERE run_id = ?`, runID)
	var started time.Time
	if err := row.Scan(&summary.City, &started); err != nil {
		return summary, &ErrStateStore{"summarize", err}
	}

	counts, err := s.countsByStatus(runID)
	if err != nil {
		return summary, err
	}
	summary.Processed = counts[model.StatusCompleted]
	summary.FailedExtraction = counts[model.StatusFailed]
	summary.Skipped = counts[model.StatusSkipped]

	endedAt := time.Now()
	_, err = s.db.Exec(
		`UPDATE runs SET ended_at = ?, processed = ?, failed = ?, skipped = ?, status = ? WHERE run_id = ?`,
		endedAt, summary.Processed, summary.FailedExtraction, summary.Skipped, terminalStatus, runID,
	)
	if err != nil {
		return summary, &ErrStateStore{"summarize", err}
	}

	summary.DurationMs = endedAt.Sub(started).Milliseconds()
	return summary, nil
}

func (s *Store) countsByStatus(runID string) (map[model.Status]int, error) {
	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM processing_state WHERE run_id = ? GROUP BY status`, runID,
	)
	if err != nil {
		return nil, &ErrStateStore{"summarize", err}
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, &ErrStateStore{"summarize", err}
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}
