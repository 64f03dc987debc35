package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeBraces(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Delta
	}{
		{"empty", "", Delta{}},
		{"open", "if (x) {", Delta{Open: 1}},
		{"close", "}", Delta{Close: 1}},
		{"both", "} else {", Delta{Open: 1, Close: 1}},
		{"inline block", "int f() { return 1; }", Delta{Open: 1, Close: 1}},
		{"line comment", "// {", Delta{}},
		{"line comment after code", "{ // }", Delta{Open: 1}},
		{"double quoted", `s = "{";`, Delta{}},
		{"single quoted", `c = '}';`, Delta{}},
		{"escaped quote stays in string", `s = "a\"{";`, Delta{}},
		{"escaped backslash closes string", `s = "a\\"; {`, Delta{Open: 1}},
		{"single quote inside double", `s = "it's {";`, Delta{}},
		{"double quote inside single", `c = '"'; {`, Delta{Open: 1}},
		{"block comment closed", "/* { */ {", Delta{Open: 1}},
		{"block comment unclosed", "{ /* } ", Delta{Open: 1}},
		{"two block comments", "/* { */ } /* { */", Delta{Close: 1}},
		{"comment markers inside string", `s = "//"; {`, Delta{Open: 1}},
		{"escape outside quotes", `\{ {`, Delta{Open: 1}},
		{"slash at end", "{ /", Delta{Open: 1}},
		{"unterminated string", `s = "{ {`, Delta{}},
		{"empty block comment", "/**/{", Delta{Open: 1}},
		{"non ascii", "é = \"ü\"; { }", Delta{Open: 1, Close: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AnalyzeBraces(tt.line), "line %q", tt.line)
		})
	}
}

func TestDeltaNet(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, Delta{Open: 1, Close: 2}.Net())
	assert.Equal(t, 0, Delta{}.Net())
}

func TestCountLeadingCloseBraces(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want int
	}{
		{"", 0},
		{"{", 0},
		{"}", 1},
		{"\t\t}", 1},
		{"}}}", 3},
		{"} }", 1},
		{"}) ;", 1},
		{"}}\"}\"", 2},
		{"x }", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CountLeadingCloseBraces(tt.line), "line %q", tt.line)
	}
}

func TestBlankAndTrim(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \t\n\r"))
	assert.True(t, IsBlank("\uFEFF "))
	assert.False(t, IsBlank(" x "))

	assert.Equal(t, "x  ", TrimLeft(" \t x  "))
	assert.Equal(t, "}", TrimLeft("\uFEFF}"))

	// NEL is not whitespace.
	assert.False(t, IsBlank("\u0085"))
	assert.Equal(t, "\u0085}", TrimLeft(" \u0085}"))
	assert.Equal(t, "x", TrimLeft("\u00a0\u2028\u3000x"))
}
