package bracefmt

import "fmt"

//go:generate go tool stringer -type=ErrorKind -trimprefix=Error -output=errorkind_string.go

// ErrorKind classifies the brace-balance outcome of an analysis.
type ErrorKind int

const (
	// ErrorNone means every brace was matched and the balance never dipped
	// below zero.
	ErrorNone ErrorKind = iota
	// ErrorEmptyInput means the text had nothing to analyze.
	ErrorEmptyInput
	// ErrorTooManyOpen means blocks were left unterminated.
	ErrorTooManyOpen
	// ErrorTooManyClose means a '}' appeared with no matching '{'.
	ErrorTooManyClose
)

// Wire codes for each kind, as emitted in JSON reports and stored in the
// results database.
var kindCodes = [...]string{
	ErrorNone:         "none",
	ErrorEmptyInput:   "empty_input",
	ErrorTooManyOpen:  "tooManyOpen",
	ErrorTooManyClose: "tooManyClose",
}

// Code returns the stable wire name of k.
func (k ErrorKind) Code() string {
	if k < 0 || int(k) >= len(kindCodes) {
		return k.String()
	}
	return kindCodes[k]
}

// ParseErrorKind maps a wire code back to its ErrorKind.
func ParseErrorKind(code string) (ErrorKind, error) {
	for k, c := range kindCodes {
		if c == code {
			return ErrorKind(k), nil
		}
	}
	return ErrorNone, fmt.Errorf("bracefmt: unknown error kind %q", code)
}
