package runtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/bracefmt"
	"github.com/jward/bracefmt/internal/grammar"
)

// ReportObject converts a FileReport to the Risor map bound to "result":
//
//	path, language, error ("none", "tooManyOpen", ...), message, count,
//	line, lines, open_braces, close_braces, grammar_checked, grammar_open,
//	grammar_close, divergent, rewritten, cached
func ReportObject(rep *bracefmt.FileReport) object.Object {
	m := diagnosisFields(rep.Error, rep.Stats)
	m["path"] = object.NewString(rep.Path)
	m["language"] = object.NewString(rep.Language)
	m["grammar_checked"] = object.NewBool(rep.GrammarChecked)
	m["grammar_open"] = object.NewInt(int64(rep.GrammarOpen))
	m["grammar_close"] = object.NewInt(int64(rep.GrammarClose))
	m["divergent"] = object.NewBool(rep.Divergent)
	m["rewritten"] = object.NewBool(rep.Rewritten)
	m["cached"] = object.NewBool(rep.Cached)
	return object.NewMap(m)
}

func diagnosisFields(d bracefmt.Diagnosis, st bracefmt.Stats) map[string]object.Object {
	return map[string]object.Object{
		"error":        object.NewString(d.Kind.Code()),
		"message":      object.NewString(d.Message()),
		"count":        object.NewInt(int64(d.Count)),
		"line":         object.NewInt(int64(d.Line)),
		"lines":        object.NewInt(int64(st.Lines)),
		"open_braces":  object.NewInt(int64(st.OpenBraces)),
		"close_braces": object.NewInt(int64(st.CloseBraces)),
	}
}

// makeAnalyzeFn creates the "analyze" host function.
//
// analyze(source) → map with formatted_code plus the diagnosis fields of
// ReportObject
func makeAnalyzeFn() *object.Builtin {
	return object.NewBuiltin("analyze", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("analyze", 1, len(args))
		}
		src, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("analyze: source must be a string, got %s", args[0].Type())
		}

		res := bracefmt.Analyze(src.Value())
		m := diagnosisFields(res.Error, res.Stats)
		m["formatted_code"] = object.NewString(res.Formatted)
		return object.NewMap(m)
	})
}

// makeGrammarCountFn creates the "grammar_count" host function.
//
// grammar_count(source, language) → {open, close, has_error, error_line},
// or nil when the language has no grammar
func makeGrammarCountFn() *object.Builtin {
	return object.NewBuiltin("grammar_count", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("grammar_count", 2, len(args))
		}
		src, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("grammar_count: source must be a string, got %s", args[0].Type())
		}
		langStr, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("grammar_count: language must be a string, got %s", args[1].Type())
		}

		c, err := grammar.Count(ctx, []byte(src.Value()), langStr.Value())
		if errors.Is(err, grammar.ErrUnsupported) {
			return object.Nil
		}
		if err != nil {
			return object.Errorf("grammar_count: %v", err)
		}
		return object.NewMap(map[string]object.Object{
			"open":       object.NewInt(int64(c.Open)),
			"close":      object.NewInt(int64(c.Close)),
			"has_error":  object.NewBool(c.HasError),
			"error_line": object.NewInt(int64(c.ErrorLine)),
		})
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "policy")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "policy")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "policy")
}
