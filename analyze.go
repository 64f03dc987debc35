package bracefmt

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/jward/bracefmt/internal/scan"
)

// Indent is the indentation unit emitted once per nesting level.
const Indent = "\t"

// Stats summarizes the analyzed text.
type Stats struct {
	Lines       int `json:"lines" yaml:"lines"`
	OpenBraces  int `json:"open_braces" yaml:"open_braces"`
	CloseBraces int `json:"close_braces" yaml:"close_braces"`
}

// Diagnosis is the brace-balance classification of an analysis. Count is set
// for ErrorTooManyOpen and Line (1-based) for ErrorTooManyClose.
type Diagnosis struct {
	Kind  ErrorKind
	Count int
	Line  int
}

// OK reports whether the diagnosis carries no error.
func (d Diagnosis) OK() bool {
	return d.Kind == ErrorNone
}

// Message renders the diagnosis as the user-facing sentence of the web
// analyzer.
func (d Diagnosis) Message() string {
	switch d.Kind {
	case ErrorNone:
		return "Analysis complete!"
	case ErrorEmptyInput:
		return "Please paste some code before analyzing."
	case ErrorTooManyOpen:
		return "There are too many opening braces { in the code"
	case ErrorTooManyClose:
		return fmt.Sprintf("There are too many closing braces } in the code. The error was found before line %d", d.Line)
	default:
		return d.Kind.String()
	}
}

// Err returns the diagnosis as an error for a brace imbalance. ErrorNone
// and ErrorEmptyInput yield nil: blank input has nothing to fix.
func (d Diagnosis) Err() error {
	if d.Kind == ErrorNone || d.Kind == ErrorEmptyInput {
		return nil
	}
	return &BraceError{Diagnosis: d}
}

// BraceError wraps a failing Diagnosis for callers that prefer error values.
type BraceError struct {
	Diagnosis Diagnosis
}

func (e *BraceError) Error() string {
	return "bracefmt: " + e.Diagnosis.Message()
}

type wireDiagnosis struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count,omitempty" yaml:"count,omitempty"`
	Line  int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// MarshalJSON encodes ErrorNone as null and every other kind as an object
// tagged by its wire code.
func (d Diagnosis) MarshalJSON() ([]byte, error) {
	if d.Kind == ErrorNone {
		return []byte("null"), nil
	}
	return json.Marshal(wireDiagnosis{Type: d.Kind.Code(), Count: d.Count, Line: d.Line})
}

func (d *Diagnosis) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Diagnosis{}
		return nil
	}
	var w wireDiagnosis
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := ParseErrorKind(w.Type)
	if err != nil {
		return err
	}
	*d = Diagnosis{Kind: kind, Count: w.Count, Line: w.Line}
	return nil
}

// MarshalYAML mirrors the JSON encoding.
func (d Diagnosis) MarshalYAML() (any, error) {
	if d.Kind == ErrorNone {
		return nil, nil
	}
	return wireDiagnosis{Type: d.Kind.Code(), Count: d.Count, Line: d.Line}, nil
}

// Result is the output of Analyze.
type Result struct {
	Formatted string    `json:"formatted_code" yaml:"formatted_code"`
	Error     Diagnosis `json:"error" yaml:"error"`
	Stats     Stats     `json:"stats" yaml:"stats"`
}

// Analyze re-indents text with one tab per brace nesting level and
// classifies its brace balance. Braces inside string literals and comments
// are ignored, line by line. It never fails: problems are reported in the
// returned Diagnosis.
func Analyze(text string) Result {
	if scan.IsBlank(text) {
		return Result{Error: Diagnosis{Kind: ErrorEmptyInput}}
	}

	lines := SplitLines(text)
	formatted, st, stats := indentLines(lines)
	formatted = alignReturns(formatted)

	return Result{
		Formatted: strings.Join(formatted, "\n"),
		Error:     st.diagnose(),
		Stats:     stats,
	}
}

// SplitLines normalizes CRLF and lone CR to LF and splits on LF. Blank lines
// keep their position; a trailing newline yields a final empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// indentLines is the first pass: each line is indented by the level in
// effect before it, minus its own leading run of '}'.
func indentLines(lines []string) ([]string, *analysisState, Stats) {
	var st analysisState
	st.reset()
	stats := Stats{Lines: len(lines)}
	out := make([]string, len(lines))

	for i, line := range lines {
		trimmed := scan.TrimLeft(line)
		if trimmed == "" {
			continue
		}

		d := scan.AnalyzeBraces(trimmed)
		stats.OpenBraces += d.Open
		stats.CloseBraces += d.Close

		st.updateBraceBalance(d.Open, d.Close, i+1)

		level := max(0, st.indentLevel-scan.CountLeadingCloseBraces(trimmed))
		out[i] = strings.Repeat(Indent, level) + trimmed

		st.updateIndentLevel(d.Open, d.Close)
	}
	return out, &st, stats
}

// alignReturns is the second pass over first-pass output. It recomputes the
// nesting with its own counter and re-indents lines starting with "return"
// to that nesting; every other line is kept as is.
func alignReturns(lines []string) []string {
	out := make([]string, len(lines))
	nesting := 0

	for i, line := range lines {
		trimmed := scan.TrimLeft(line)
		if trimmed == "" {
			continue
		}

		nesting = max(0, nesting-scan.CountLeadingCloseBraces(trimmed))

		if strings.HasPrefix(trimmed, "return") && nesting > 0 {
			out[i] = strings.Repeat(Indent, nesting) + trimmed
		} else {
			out[i] = line
		}

		d := scan.AnalyzeBraces(trimmed)
		nesting = max(0, nesting+d.Net())
	}
	return out
}
