// Package grammar counts braces with a real tree-sitter parse. It is used to
// cross-check the line heuristic on files whose grammar is known: a mismatch
// usually means a multi-line string or comment hid or exposed braces.
package grammar

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/bracefmt/internal/lang"
)

// ErrUnsupported is returned for languages without a tree-sitter grammar.
var ErrUnsupported = errors.New("grammar: unsupported language")

// Counts holds the brace tokens found in a parse tree.
type Counts struct {
	Open      int
	Close     int
	HasError  bool
	ErrorLine int // 1-based line of the first ERROR or MISSING node; 0 if none
}

// openTokens are the anonymous token types that open a brace block. "${"
// opens a template substitution closed by a plain "}".
var openTokens = map[string]bool{
	"{":  true,
	"${": true,
}

// Count parses src as language name and counts its brace tokens. Tokens the
// parser invented during error recovery are not counted.
func Count(ctx context.Context, src []byte, name string) (Counts, error) {
	g, ok := lang.Grammar(name)
	if !ok {
		return Counts{}, fmt.Errorf("%w %q", ErrUnsupported, name)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Counts{}, fmt.Errorf("grammar: parse %s: %w", name, err)
	}
	defer tree.Close()

	var c Counts
	root := tree.RootNode()
	c.HasError = root.HasError()

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsMissing() || n.Type() == "ERROR" {
			if c.ErrorLine == 0 || int(n.StartPoint().Row)+1 < c.ErrorLine {
				c.ErrorLine = int(n.StartPoint().Row) + 1
			}
		}

		count := int(n.ChildCount())
		if count == 0 {
			if n.IsNamed() || n.IsMissing() {
				continue
			}
			switch t := n.Type(); {
			case openTokens[t]:
				c.Open++
			case t == "}":
				c.Close++
			}
			continue
		}
		for i := count - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return c, nil
}
