package bracefmt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jward/bracefmt/internal/grammar"
	"github.com/jward/bracefmt/internal/lang"
	"github.com/jward/bracefmt/internal/logging"
	"github.com/jward/bracefmt/internal/store"
)

// Engine runs Analyze over files on disk and records the results in a
// SQLite database.
type Engine struct {
	store     *store.Store
	languages map[string]bool // nil means all languages

	useParallel  bool
	workers      int
	grammarCheck bool
	rewrite      bool
	force        bool

	logger        *slog.Logger
	meterProvider metric.MeterProvider
	metrics       *engineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			e.languages[l] = true
		}
	}
}

// WithParallel controls parallel checking. When true (default), CheckFiles
// analyzes files on a worker pool and commits all results in one
// transaction. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers caps the parallel worker pool. Zero or less means one worker
// per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithGrammarCheck enables the tree-sitter cross-check for languages that
// have a grammar.
func WithGrammarCheck(enabled bool) Option {
	return func(e *Engine) {
		e.grammarCheck = enabled
	}
}

// WithRewrite makes the Engine overwrite balanced files with their
// re-indented text.
func WithRewrite(enabled bool) Option {
	return func(e *Engine) {
		e.rewrite = enabled
	}
}

// WithForce re-analyzes files even when their content hash is unchanged.
func WithForce(force bool) Option {
	return func(e *Engine) {
		e.force = force
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMeterProvider sets the provider for the engine's counters. The default
// is the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		e.meterProvider = mp
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{useParallel: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if err := e.validateLanguages(); err != nil {
		return nil, err
	}
	m, err := newEngineMetrics(e.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("bracefmt: metrics: %w", err)
	}
	e.metrics = m

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("bracefmt: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("bracefmt: migrate: %w", err)
	}
	e.store = s
	return e, nil
}

func (e *Engine) validateLanguages() error {
	var unknown []string
	for l := range e.languages {
		if !lang.IsSupported(l) {
			unknown = append(unknown, l)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("bracefmt: unsupported language(s) %s; supported: %s",
		strings.Join(unknown, ", "), strings.Join(lang.Supported(), ", "))
}

// checkedLanguages returns the languages this Engine processes, sorted.
func (e *Engine) checkedLanguages() []string {
	if e.languages == nil {
		return lang.Supported()
	}
	out := make([]string, 0, len(e.languages))
	for l := range e.languages {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Option names recorded with each stored file.
const (
	optionGrammar = "grammar"
	optionRewrite = "rewrite"
)

// options returns the fingerprint of the options that change what a check
// produces for a file.
func (e *Engine) options() string {
	var parts []string
	if e.grammarCheck {
		parts = append(parts, optionGrammar)
	}
	if e.rewrite {
		parts = append(parts, optionRewrite)
	}
	return strings.Join(parts, ",")
}

// coveredBy reports whether a row stored with the stored fingerprint already
// reflects every option enabled on e. A row from a grammar-checked run serves
// a plain run; the reverse needs a fresh check.
func (e *Engine) coveredBy(stored string) bool {
	have := strings.Split(stored, ",")
	for _, want := range strings.Split(e.options(), ",") {
		if want != "" && !slices.Contains(have, want) {
			return false
		}
	}
	return true
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store)
}

// FileReport is the outcome for one file of a check run.
type FileReport struct {
	Path     string    `json:"path" yaml:"path"`
	Language string    `json:"language" yaml:"language"`
	Stats    Stats     `json:"stats" yaml:"stats"`
	Error    Diagnosis `json:"error" yaml:"error"`

	GrammarChecked bool `json:"grammar_checked" yaml:"grammar_checked"`
	GrammarOpen    int  `json:"grammar_open,omitempty" yaml:"grammar_open,omitempty"`
	GrammarClose   int  `json:"grammar_close,omitempty" yaml:"grammar_close,omitempty"`
	Divergent      bool `json:"divergent" yaml:"divergent"`

	// Rewritten is set when the file on disk was replaced with its
	// re-indented text during this run.
	Rewritten bool `json:"rewritten" yaml:"rewritten"`
	// Cached is set when the file and the relevant options were unchanged
	// and the report comes from the database.
	Cached bool `json:"cached" yaml:"cached"`
}

// RunSummary aggregates a CheckFiles call.
type RunSummary struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Checked int    `json:"checked" yaml:"checked"`
	Skipped int    `json:"skipped" yaml:"skipped"`
	Failed  int    `json:"failed" yaml:"failed"`
	// Purged counts stored results dropped because their file is gone.
	// Only CheckDirectory sets it.
	Purged int           `json:"purged" yaml:"purged"`
	Files  []*FileReport `json:"files" yaml:"files"`
}

func (s *RunSummary) add(r *FileReport) {
	s.Files = append(s.Files, r)
	if r.Cached {
		s.Skipped++
	} else {
		s.Checked++
	}
	if !r.Error.OK() {
		s.Failed++
	}
}

// CheckFiles analyzes the given file paths and records one run. When
// WithParallel is enabled, analysis runs on a worker pool with a single
// serial commit. Otherwise files are checked and stored one at a time.
//
// For each file:
// 1. Detect language from extension
// 2. Skip unsupported or filtered-out languages
// 3. Report unchanged files (same content hash, options covered) from the database
// 4. Analyze, optionally cross-check with the grammar
// 5. Upsert the file record
// 6. With WithRewrite, replace a balanced file with its re-indented text
//
// Rewrites happen only after the record is stored. The record carries the
// hash of the rewritten text, so if the write fails the next run sees a
// changed file and checks it again.
//
// Errors on individual files are logged and skipped; processing continues.
// The returned summary is valid even when err is non-nil.
func (e *Engine) CheckFiles(ctx context.Context, paths []string) (*RunSummary, error) {
	run := &store.Run{Root: commonRoot(paths)}
	if _, err := e.store.InsertRun(run); err != nil {
		return nil, fmt.Errorf("bracefmt: %w", err)
	}
	summary := &RunSummary{RunID: run.ID}
	e.logger.Debug("check started", "run_id", run.ID, "files", len(paths), "parallel", e.useParallel)

	var err error
	if e.useParallel {
		err = e.checkFilesParallel(ctx, run.ID, paths, summary)
	} else {
		err = e.checkFilesSerial(ctx, run.ID, paths, summary)
	}

	run.FileCount = summary.Checked
	run.SkippedCount = summary.Skipped
	run.FailedCount = summary.Failed
	if ferr := e.store.FinishRun(run); ferr != nil && err == nil {
		err = fmt.Errorf("bracefmt: %w", ferr)
	}

	e.logger.Info("check finished",
		"run_id", run.ID,
		"checked", summary.Checked,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, err
}

func (e *Engine) checkFilesSerial(ctx context.Context, runID string, paths []string, summary *RunSummary) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, cached, err := e.prepareFile(path)
		if err != nil {
			errs = append(errs, e.fileError(path, err))
			continue
		}
		if cached != nil {
			e.metrics.recordSkipped(ctx, cached)
			summary.add(cached)
			continue
		}
		if item == nil {
			continue
		}

		c, err := e.checkFile(ctx, runID, item)
		if err != nil {
			errs = append(errs, e.fileError(path, err))
			continue
		}
		if _, err := e.store.UpsertFile(c.record); err != nil {
			errs = append(errs, e.fileError(path, err))
			continue
		}
		if err := e.applyRewrite(c); err != nil {
			errs = append(errs, e.fileError(path, err))
		}
		e.metrics.recordChecked(ctx, c.report)
		summary.add(c.report)
	}
	if len(errs) > 0 {
		return fmt.Errorf("checking had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) fileError(path string, err error) error {
	e.logger.Warn("check file failed", "path", path, "error", err)
	return fmt.Errorf("check %s: %w", path, err)
}

// checkItem is a file that needs analysis.
type checkItem struct {
	path    string
	lang    string
	content []byte
	hash    string
	mode    fs.FileMode
}

// prepareFile reads path and decides whether it needs analysis. It returns
// (nil, nil, nil) for files the engine ignores and a cached report for
// unchanged files.
func (e *Engine) prepareFile(path string) (*checkItem, *FileReport, error) {
	l, ok := lang.ForFile(path)
	if !ok {
		return nil, nil, nil
	}
	if e.languages != nil && !e.languages[l] {
		return nil, nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)

	if !e.force {
		existing, err := e.store.FileByPath(path)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup file: %w", err)
		}
		if existing != nil && existing.Hash == hash {
			if e.coveredBy(existing.Options) {
				report, err := reportFromFile(existing)
				if err != nil {
					return nil, nil, err
				}
				e.logger.Debug("file unchanged", "path", path)
				return nil, report, nil
			}
			e.logger.Debug("file options changed", "path", path, "stored", existing.Options, "current", e.options())
		}
	}

	return &checkItem{path: path, lang: l, content: content, hash: hash, mode: info.Mode().Perm()}, nil, nil
}

// checkedFile is an analyzed file waiting to be stored.
type checkedFile struct {
	item   *checkItem
	record *store.File
	report *FileReport
	// rewrite is the re-indented content to write once record is stored,
	// or nil.
	rewrite []byte
}

// checkFile analyzes one prepared file. It touches neither the database nor
// the file on disk.
func (e *Engine) checkFile(ctx context.Context, runID string, item *checkItem) (*checkedFile, error) {
	res := Analyze(string(item.content))
	report := &FileReport{
		Path:     item.path,
		Language: item.lang,
		Stats:    res.Stats,
		Error:    res.Error,
	}

	if e.grammarCheck {
		counts, err := grammar.Count(ctx, item.content, item.lang)
		switch {
		case errors.Is(err, grammar.ErrUnsupported):
		case err != nil:
			return nil, fmt.Errorf("grammar check: %w", err)
		default:
			report.GrammarChecked = true
			report.GrammarOpen = counts.Open
			report.GrammarClose = counts.Close
			report.Divergent = counts.Open != res.Stats.OpenBraces || counts.Close != res.Stats.CloseBraces
		}
	}

	c := &checkedFile{item: item, report: report}
	hash := item.hash
	if e.rewrite && res.Error.OK() && res.Formatted != string(item.content) {
		c.rewrite = []byte(res.Formatted)
		hash = store.ContentHash(c.rewrite)
	}

	e.logger.Debug("file checked",
		"path", item.path,
		"language", item.lang,
		"lines", res.Stats.Lines,
		"error", res.Error.Kind.Code(),
		"rewrite", c.rewrite != nil,
	)

	c.record = &store.File{
		Path:           item.path,
		Language:       item.lang,
		Hash:           hash,
		LineCount:      res.Stats.Lines,
		OpenBraces:     res.Stats.OpenBraces,
		CloseBraces:    res.Stats.CloseBraces,
		ErrorKind:      res.Error.Kind.Code(),
		ErrorCount:     res.Error.Count,
		ErrorLine:      res.Error.Line,
		GrammarChecked: report.GrammarChecked,
		GrammarOpen:    report.GrammarOpen,
		GrammarClose:   report.GrammarClose,
		Divergent:      report.Divergent,
		Options:        e.options(),
		RunID:          runID,
		LastChecked:    time.Now(),
	}
	return c, nil
}

// applyRewrite writes the re-indented content of a stored file to disk.
func (e *Engine) applyRewrite(c *checkedFile) error {
	if c.rewrite == nil {
		return nil
	}
	if err := os.WriteFile(c.item.path, c.rewrite, c.item.mode); err != nil {
		return fmt.Errorf("rewrite file: %w", err)
	}
	c.report.Rewritten = true
	e.logger.Debug("file rewritten", "path", c.item.path)
	return nil
}

// reportFromFile rebuilds a FileReport from a stored record.
func reportFromFile(f *store.File) (*FileReport, error) {
	kind, err := ParseErrorKind(f.ErrorKind)
	if err != nil {
		return nil, fmt.Errorf("stored result for %s: %w", f.Path, err)
	}
	return &FileReport{
		Path:     f.Path,
		Language: f.Language,
		Stats: Stats{
			Lines:       f.LineCount,
			OpenBraces:  f.OpenBraces,
			CloseBraces: f.CloseBraces,
		},
		Error:          Diagnosis{Kind: kind, Count: f.ErrorCount, Line: f.ErrorLine},
		GrammarChecked: f.GrammarChecked,
		GrammarOpen:    f.GrammarOpen,
		GrammarClose:   f.GrammarClose,
		Divergent:      f.Divergent,
		Cached:         true,
	}, nil
}

// skipDirs are excluded from the filesystem walk.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// CheckDirectory checks all files with supported extensions under root.
// If root is inside a git repository, uses git ls-files to respect
// .gitignore. Falls back to a filesystem walk (skipping hidden dirs,
// node_modules and vendor) if git is unavailable.
//
// Stored results for files under root that were not listed (deleted or now
// ignored) are removed, limited to the languages this Engine checks.
func (e *Engine) CheckDirectory(ctx context.Context, root string) (*RunSummary, error) {
	paths, err := gitListFiles(ctx, root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking directory", "root", root, "error", err)
		paths, err = walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	summary, err := e.CheckFiles(ctx, paths)
	if summary == nil {
		return nil, err
	}

	purged, perr := e.purgeMissing(root, paths)
	summary.Purged = purged
	if perr != nil && err == nil {
		err = fmt.Errorf("bracefmt: %w", perr)
	}
	return summary, err
}

// purgeMissing deletes stored files under root that are not in listed.
func (e *Engine) purgeMissing(root string, listed []string) (int, error) {
	stored, err := e.store.FilesByLanguages(e.checkedLanguages()...)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(listed))
	for _, p := range listed {
		keep[p] = true
	}
	prefix := filepath.Clean(root) + string(filepath.Separator)

	purged := 0
	for _, f := range stored {
		if keep[f.Path] || !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		if err := e.store.DeleteFile(f.Path); err != nil {
			return purged, err
		}
		e.logger.Debug("purged missing file", "path", f.Path)
		purged++
	}
	if purged > 0 {
		e.logger.Info("purged missing files", "root", root, "count", purged)
	}
	return purged, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root, filtered to supported languages.
func gitListFiles(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := lang.ForFile(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem.
func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := lang.ForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// commonRoot returns the deepest directory containing every path, or "" for
// an empty list.
func commonRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	root := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		dir := filepath.Dir(p)
		for root != dir && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}
	return root
}
