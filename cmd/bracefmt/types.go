package main

import "time"

// CLIResult is the top-level envelope for check and query commands.
type CLIResult struct {
	Command    string `json:"command" yaml:"command"`
	Results    any    `json:"results" yaml:"results"`
	TotalCount *int   `json:"total_count,omitempty" yaml:"total_count,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIReport is one file's outcome in a check run, with the policy verdict.
type CLIReport struct {
	Path        string `json:"path" yaml:"path"`
	Language    string `json:"language" yaml:"language"`
	Lines       int    `json:"lines" yaml:"lines"`
	OpenBraces  int    `json:"open_braces" yaml:"open_braces"`
	CloseBraces int    `json:"close_braces" yaml:"close_braces"`
	Error       string `json:"error" yaml:"error"`
	Count       int    `json:"count,omitempty" yaml:"count,omitempty"`
	Line        int    `json:"line,omitempty" yaml:"line,omitempty"`
	Message     string `json:"message" yaml:"message"`
	Divergent   bool   `json:"divergent" yaml:"divergent"`
	Rewritten   bool   `json:"rewritten" yaml:"rewritten"`
	Cached      bool   `json:"cached" yaml:"cached"`
	Pass        bool   `json:"pass" yaml:"pass"`
}

// CLICheck is the result of the check command.
type CLICheck struct {
	RunID    string      `json:"run_id" yaml:"run_id"`
	Policy   string      `json:"policy" yaml:"policy"`
	Checked  int         `json:"checked" yaml:"checked"`
	Skipped  int         `json:"skipped" yaml:"skipped"`
	Failed   int         `json:"failed" yaml:"failed"`
	Rejected int         `json:"rejected" yaml:"rejected"`
	Purged   int         `json:"purged" yaml:"purged"`
	Files    []CLIReport `json:"files" yaml:"files"`
}

// CLIFile is a stored file result.
type CLIFile struct {
	Path        string    `json:"path" yaml:"path"`
	Language    string    `json:"language" yaml:"language"`
	Lines       int       `json:"lines" yaml:"lines"`
	OpenBraces  int       `json:"open_braces" yaml:"open_braces"`
	CloseBraces int       `json:"close_braces" yaml:"close_braces"`
	Error       string    `json:"error" yaml:"error"`
	Failed      bool      `json:"failed" yaml:"failed"`
	Count       int       `json:"count,omitempty" yaml:"count,omitempty"`
	Line        int       `json:"line,omitempty" yaml:"line,omitempty"`
	Divergent   bool      `json:"divergent" yaml:"divergent"`
	LastChecked time.Time `json:"last_checked" yaml:"last_checked"`
}

// CLIRun is a recorded check run.
type CLIRun struct {
	ID         string     `json:"id" yaml:"id"`
	Root       string     `json:"root" yaml:"root"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Checked    int        `json:"checked" yaml:"checked"`
	Skipped    int        `json:"skipped" yaml:"skipped"`
	Failed     int        `json:"failed" yaml:"failed"`
}

// CLIRunDetail is a recorded run with the files it last wrote.
type CLIRunDetail struct {
	Run   CLIRun    `json:"run" yaml:"run"`
	Files []CLIFile `json:"files" yaml:"files"`
}
