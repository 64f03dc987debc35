package store

import (
	"database/sql"
	"fmt"
)

// FileColumns is the column list ScanFile expects.
const FileColumns = `id, path, language, COALESCE(hash, ''), line_count, open_braces, close_braces,
	error_kind, error_count, error_line, grammar_checked, grammar_open, grammar_close,
	divergent, options, COALESCE(run_id, ''), last_checked`

const upsertFileSQL = `INSERT INTO files (path, language, hash, line_count, open_braces, close_braces,
		error_kind, error_count, error_line, grammar_checked, grammar_open, grammar_close,
		divergent, options, run_id, last_checked)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		language = excluded.language,
		hash = excluded.hash,
		line_count = excluded.line_count,
		open_braces = excluded.open_braces,
		close_braces = excluded.close_braces,
		error_kind = excluded.error_kind,
		error_count = excluded.error_count,
		error_line = excluded.error_line,
		grammar_checked = excluded.grammar_checked,
		grammar_open = excluded.grammar_open,
		grammar_close = excluded.grammar_close,
		divergent = excluded.divergent,
		options = excluded.options,
		run_id = excluded.run_id,
		last_checked = excluded.last_checked`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func upsertFile(x execer, f *File) (int64, error) {
	if f.ErrorKind == "" {
		f.ErrorKind = "none"
	}
	var runID any
	if f.RunID != "" {
		runID = f.RunID
	}
	if _, err := x.Exec(upsertFileSQL,
		f.Path, f.Language, f.Hash, f.LineCount, f.OpenBraces, f.CloseBraces,
		f.ErrorKind, f.ErrorCount, f.ErrorLine, f.GrammarChecked, f.GrammarOpen, f.GrammarClose,
		f.Divergent, f.Options, runID, f.LastChecked,
	); err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	// LastInsertId is unreliable for the update branch of an upsert.
	var id int64
	if err := x.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert file %s: read id: %w", f.Path, err)
	}
	f.ID = id
	return id, nil
}

// UpsertFile inserts f or replaces the existing row with the same path.
// f.ID is set to the row's ID.
func (s *Store) UpsertFile(f *File) (int64, error) {
	return upsertFile(s.db, f)
}

// CommitFiles upserts all files within a single transaction.
func (s *Store) CommitFiles(files []*File) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit files: begin: %w", err)
	}
	defer tx.Rollback()

	for _, f := range files {
		if _, err := upsertFile(tx, f); err != nil {
			return fmt.Errorf("commit files: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit files: %w", err)
	}
	return nil
}

// ScanFile decodes a files row selected with FileColumns.
func ScanFile(sc scanner) (*File, error) {
	f := &File{}
	err := sc.Scan(
		&f.ID, &f.Path, &f.Language, &f.Hash, &f.LineCount, &f.OpenBraces, &f.CloseBraces,
		&f.ErrorKind, &f.ErrorCount, &f.ErrorLine, &f.GrammarChecked, &f.GrammarOpen, &f.GrammarClose,
		&f.Divergent, &f.Options, &f.RunID, &f.LastChecked,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := ScanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileByPath returns the stored result for path, or nil if there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := ScanFile(s.db.QueryRow("SELECT "+FileColumns+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// DeleteFile removes the stored result for path. Deleting an unknown path is
// not an error.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// FilesByRun returns the files last written by the given run, ordered by path.
func (s *Store) FilesByRun(runID string) ([]*File, error) {
	files, err := s.queryFiles("SELECT "+FileColumns+" FROM files WHERE run_id = ? ORDER BY path", runID)
	if err != nil {
		return nil, fmt.Errorf("files by run: %w", err)
	}
	return files, nil
}

// FilesByLanguages returns the files in any of the given languages, ordered
// by path.
func (s *Store) FilesByLanguages(languages ...string) ([]*File, error) {
	if len(languages) == 0 {
		return nil, nil
	}
	files, err := s.queryFiles(
		"SELECT "+FileColumns+" FROM files WHERE language IN ("+placeholderList(len(languages))+") ORDER BY path",
		stringsToArgs(languages)...,
	)
	if err != nil {
		return nil, fmt.Errorf("files by languages: %w", err)
	}
	return files, nil
}
