// Package bracefmt re-indents curly-brace source code and reports whether its
// braces balance. It is a line-oriented heuristic, not a parser: braces inside
// quotes and comments are skipped one line at a time, and each line is
// indented with one tab per open block.
//
// # Analysis
//
// [Analyze] is a pure function from text to a [Result]: the re-indented text,
// a [Diagnosis] of the brace balance, and line and brace counts. It never
// fails; unbalanced input is reported as [ErrorTooManyOpen] or
// [ErrorTooManyClose] and blank input as [ErrorEmptyInput].
//
//	res := bracefmt.Analyze(src)
//	if !res.Error.OK() {
//		fmt.Println(res.Error.Message())
//	}
//	fmt.Print(res.Formatted)
//
// Lines beginning with "return" get a second alignment pass with an
// independent nesting counter, so their indentation can differ from the
// surrounding lines after a closing brace.
//
// # Batch checking
//
// An [Engine] applies Analyze to files on disk and stores the results in
// SQLite:
//
//	e, err := bracefmt.New(".bracefmt/results.db", bracefmt.WithGrammarCheck(true))
//	if err != nil { ... }
//	defer e.Close()
//
//	summary, err := e.CheckDirectory(ctx, "path/to/project")
//
// Unchanged files (same content hash) are reported from the database without
// re-analysis unless [WithForce] is set. [WithGrammarCheck] cross-checks the
// brace totals against a tree-sitter parse and flags divergent files.
// [WithRewrite] writes the re-indented text back for balanced files.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads stored results:
//
//   - [QueryBuilder.Files] lists results with filters, sorting and paging.
//   - [QueryBuilder.FileByPath] returns one stored result.
//   - [QueryBuilder.Summary] aggregates results per language.
//   - [QueryBuilder.Runs] lists recorded check runs.
package bracefmt
