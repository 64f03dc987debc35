// Package runtime evaluates Risor policy scripts against check reports. A
// policy is a script whose final expression decides whether a file passes.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/bracefmt"
	"github.com/jward/bracefmt/internal/logging"
)

// Runtime embeds a Risor VM and exposes check results and brace analysis
// host functions to policy scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger

	mu      sync.Mutex
	scripts map[string]string // loaded script source by path
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger routes the script "log" global to logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a Runtime loading scripts relative to scriptsDir.
// Accepts optional RuntimeOptions for configuration such as fs.FS-based script loading.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		scripts:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller. It reports the truthiness
// of the script's final value.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (bool, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return false, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (bool, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

// Verdict runs the policy at scriptPath with report bound to "result".
func (r *Runtime) Verdict(ctx context.Context, scriptPath string, report *bracefmt.FileReport) (bool, error) {
	return r.RunScript(ctx, scriptPath, map[string]any{"result": ReportObject(report)})
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (bool, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return false, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	if result == nil {
		return false, nil
	}
	if errObj, ok := result.(*object.Error); ok {
		return false, fmt.Errorf("runtime: script %s: %s", label, errObj.Inspect())
	}
	return result.IsTruthy(), nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code. Sources are
// cached per path for the life of the Runtime.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.scripts[path]; ok {
		return src, nil
	}

	var data []byte
	if r.fsys != nil {
		// For fs.FS, strip any leading path separator so the path is
		// relative within the FS (e.g., "/strict.risor" -> "strict.risor").
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		d, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		data = d
	} else {
		fullPath := path
		if !filepath.IsAbs(path) {
			fullPath = filepath.Join(r.scriptsDir, path)
		}
		d, err := os.ReadFile(fullPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
		}
		data = d
	}

	r.scripts[path] = string(data)
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"analyze":       makeAnalyzeFn(),
		"grammar_count": makeGrammarCountFn(),
		"log":           mustProxy(&logObject{logger: r.logger}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
