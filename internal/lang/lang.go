// Package lang maps source files to the curly-brace languages bracefmt
// understands and to their tree-sitter grammars.
package lang

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".hpp":  "cpp",
	".hh":   "cpp",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".java": "java",
	".go":   "go",
	".rs":   "rust",
	".php":  "php",
	".cs":   "csharp",
	".pwn":  "pawn",
	".inc":  "pawn",
	".p":    "pawn",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once. PAWN has no grammar.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"c":          c.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
			"java":       java.GetLanguage(),
			"go":         golang.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"php":        php.GetLanguage(),
			"csharp":     csharp.GetLanguage(),
		}
	})
}

// ForFile returns the canonical language name for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func ForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := extToLanguage[ext]
	return l, ok
}

// Supported returns every known language name, sorted.
func Supported() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range extToLanguage {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// IsSupported reports whether name is a known language.
func IsSupported(name string) bool {
	for _, l := range extToLanguage {
		if l == name {
			return true
		}
	}
	return false
}

// Grammar returns the tree-sitter Language for a canonical language name.
// Returns (nil, false) if the language has no grammar.
func Grammar(name string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[name]
	return g, ok
}
