package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertRun records the start of a run. An empty r.ID is replaced with a
// fresh UUID.
func (s *Store) InsertRun(r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, root, started_at) VALUES (?, ?, ?)",
		r.ID, r.Root, r.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return r.ID, nil
}

// FinishRun stamps the run's finish time and final counts.
func (s *Store) FinishRun(r *Run) error {
	now := time.Now()
	res, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, file_count = ?, skipped_count = ?, failed_count = ? WHERE id = ?",
		now, r.FileCount, r.SkippedCount, r.FailedCount, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %s", r.ID)
	}
	r.FinishedAt = &now
	return nil
}

const runColumns = "id, COALESCE(root, ''), started_at, finished_at, file_count, skipped_count, failed_count"

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	if err := sc.Scan(&r.ID, &r.Root, &r.StartedAt, &r.FinishedAt, &r.FileCount, &r.SkippedCount, &r.FailedCount); err != nil {
		return nil, err
	}
	return r, nil
}

// RunByID returns the run with the given ID, or nil if there is none.
func (s *Store) RunByID(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// Runs returns up to limit runs, most recent first.
func (s *Store) Runs(limit int) ([]*Run, error) {
	rows, err := s.db.Query("SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
