package bracefmt

// analysisState holds the counters for a single Analyze call.
type analysisState struct {
	braceBalance   int // net '{' minus '}' so far; may go negative
	indentLevel    int // never negative
	firstErrorLine int // 1-based; 0 until the balance first dips below zero
}

func (s *analysisState) reset() {
	*s = analysisState{}
}

func (s *analysisState) updateBraceBalance(opens, closes, lineNumber int) {
	s.braceBalance += opens - closes
	if s.braceBalance < 0 && s.firstErrorLine == 0 {
		s.firstErrorLine = lineNumber
	}
}

func (s *analysisState) updateIndentLevel(opens, closes int) {
	s.indentLevel = max(0, s.indentLevel+opens-closes)
}

// diagnose classifies the final state. An early unmatched '}' wins over a
// balance that later recovers.
func (s *analysisState) diagnose() Diagnosis {
	switch {
	case s.braceBalance > 0:
		return Diagnosis{Kind: ErrorTooManyOpen, Count: s.braceBalance}
	case s.braceBalance < 0 || s.firstErrorLine > 0:
		return Diagnosis{Kind: ErrorTooManyClose, Line: s.firstErrorLine}
	default:
		return Diagnosis{Kind: ErrorNone}
	}
}
