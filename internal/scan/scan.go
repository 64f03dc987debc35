// Package scan classifies the characters of a single source line and counts
// the curly braces that sit outside string literals and comments.
//
// The scanner is line-local: quote, escape and comment state start fresh on
// every call, so an unterminated string or block comment never affects the
// next line.
package scan

import (
	"strings"
	"unicode"
)

// Delta is the number of opening and closing braces found on one line.
type Delta struct {
	Open  int
	Close int
}

// Net returns Open - Close.
func (d Delta) Net() int {
	return d.Open - d.Close
}

// AnalyzeBraces counts the braces of line that are outside string literals
// and comments.
//
// A backslash consumes the following byte. Single and double quotes toggle
// their own context only while the other kind is closed. Outside quotes, "//"
// ends the line and "/*" skips to the matching "*/" on the same line, or ends
// the line when there is none.
func AnalyzeBraces(line string) Delta {
	var d Delta
	var inSingle, inDouble, escaped bool

	for i := 0; i < len(line); i++ {
		c := line[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}

		if c == '\'' && !inDouble {
			inSingle = !inSingle
		}
		if c == '"' && !inSingle {
			inDouble = !inDouble
		}
		if inSingle || inDouble {
			continue
		}

		if c == '/' && i+1 < len(line) {
			switch line[i+1] {
			case '/':
				return d
			case '*':
				end := strings.Index(line[i+2:], "*/")
				if end < 0 {
					return d
				}
				// Land on the '/' of "*/"; the loop increment steps past it.
				i += 2 + end + 1
				continue
			}
		}

		switch c {
		case '{':
			d.Open++
		case '}':
			d.Close++
		}
	}
	return d
}

// CountLeadingCloseBraces returns the length of the run of '}' characters at
// the start of line, ignoring leading whitespace. No lexing is done: the run
// stops at the first character that is not '}'.
func CountLeadingCloseBraces(line string) int {
	rest := TrimLeft(line)
	n := 0
	for n < len(rest) && rest[n] == '}' {
		n++
	}
	return n
}

// TrimLeft strips leading whitespace, including a byte order mark.
func TrimLeft(s string) string {
	return strings.TrimLeftFunc(s, isSpace)
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.TrimFunc(s, isSpace) == ""
}

// isSpace matches the ECMAScript whitespace and line terminator set, which
// adds the byte order mark to unicode.IsSpace and leaves out NEL.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\uFEFF'
}
