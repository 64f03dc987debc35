package store

import "time"

// File is the latest check result for one source file.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	OpenBraces  int
	CloseBraces int

	// ErrorKind is the wire code of the brace diagnosis ("none",
	// "tooManyOpen", ...). ErrorCount and ErrorLine carry its payload.
	ErrorKind  string
	ErrorCount int
	ErrorLine  int

	GrammarChecked bool
	GrammarOpen    int
	GrammarClose   int
	Divergent      bool

	// Options lists the engine options that produced the row, as written
	// by the engine ("grammar,rewrite", "grammar", "").
	Options string

	RunID       string
	LastChecked time.Time
}

// Failed reports whether the file's diagnosis is an error.
func (f *File) Failed() bool {
	return f.ErrorKind != "" && f.ErrorKind != "none"
}

// Run records one batch check invocation.
type Run struct {
	ID           string
	Root         string
	StartedAt    time.Time
	FinishedAt   *time.Time
	FileCount    int
	SkippedCount int
	FailedCount  int
}
