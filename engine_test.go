package bracefmt

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jward/bracefmt/internal/store"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeFile creates dir/name with content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew_CreatesStore(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Store())
	require.NotNil(t, e.Query())

	// Verify the DB is usable (migration ran).
	_, err := e.Store().UpsertFile(&store.File{Path: "/tmp/a.c", Language: "c", LastChecked: time.Now()})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestWithLanguages(t *testing.T) {
	e := newTestEngine(t, WithLanguages("go", "pawn"))
	assert.True(t, e.languages["go"])
	assert.True(t, e.languages["pawn"])
	assert.False(t, e.languages["rust"])
}

func TestNew_UnknownLanguage(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "test.db"), WithLanguages("go", "cc", "cobol"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported language(s) cc, cobol")
	assert.ErrorContains(t, err, "supported: ")
	assert.ErrorContains(t, err, "pawn")
}

func TestCheckFiles_SkipsUnsupportedExtensions(t *testing.T) {
	e := newTestEngine(t)
	path := writeFile(t, t.TempDir(), "readme.txt", "{")

	summary, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Empty(t, summary.Files)

	f, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCheckFiles_SkipsFilteredLanguages(t *testing.T) {
	e := newTestEngine(t, WithLanguages("pawn"))
	path := writeFile(t, t.TempDir(), "main.go", "package main\n")

	summary, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Zero(t, summary.Skipped)
}

func TestCheckFiles_RecordsResultsAndRun(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		t.Run(map[bool]string{true: "parallel", false: "serial"}[parallel], func(t *testing.T) {
			e := newTestEngine(t, WithParallel(parallel), WithWorkers(2))
			dir := t.TempDir()
			good := writeFile(t, dir, "good.c", "int main() {\nreturn 0;\n}\n")
			bad := writeFile(t, dir, "bad.js", "}\nfunction f() {\n}\n")
			open := writeFile(t, dir, "open.pwn", "main()\n{\n{\n")

			summary, err := e.CheckFiles(t.Context(), []string{good, bad, open})
			require.NoError(t, err)
			assert.Equal(t, 3, summary.Checked)
			assert.Equal(t, 0, summary.Skipped)
			assert.Equal(t, 2, summary.Failed)
			require.Len(t, summary.Files, 3)

			assert.Equal(t, good, summary.Files[0].Path)
			assert.True(t, summary.Files[0].Error.OK())
			assert.Equal(t, Diagnosis{Kind: ErrorTooManyClose, Line: 1}, summary.Files[1].Error)
			assert.Equal(t, Diagnosis{Kind: ErrorTooManyOpen, Count: 2}, summary.Files[2].Error)
			assert.Equal(t, "pawn", summary.Files[2].Language)

			stored, err := e.Store().FileByPath(bad)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, "tooManyClose", stored.ErrorKind)
			assert.Equal(t, 1, stored.ErrorLine)
			assert.Equal(t, summary.RunID, stored.RunID)

			run, err := e.Store().RunByID(summary.RunID)
			require.NoError(t, err)
			require.NotNil(t, run)
			require.NotNil(t, run.FinishedAt)
			assert.Equal(t, dir, run.Root)
			assert.Equal(t, 3, run.FileCount)
			assert.Equal(t, 2, run.FailedCount)
		})
	}
}

func TestCheckFiles_UnchangedFilesAreCached(t *testing.T) {
	e := newTestEngine(t)
	path := writeFile(t, t.TempDir(), "a.c", "{\n")

	_, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)

	summary, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Files, 1)
	assert.True(t, summary.Files[0].Cached)
	assert.Equal(t, Diagnosis{Kind: ErrorTooManyOpen, Count: 1}, summary.Files[0].Error)
	assert.Equal(t, Stats{Lines: 2, OpenBraces: 1}, summary.Files[0].Stats)

	// Changing the content triggers a fresh analysis.
	require.NoError(t, os.WriteFile(path, []byte("{\n}\n"), 0o644))
	summary, err = e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Failed)
}

func TestCheckFiles_Force(t *testing.T) {
	e := newTestEngine(t, WithForce(true))
	path := writeFile(t, t.TempDir(), "a.c", "{\n}\n")

	_, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	summary, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.False(t, summary.Files[0].Cached)
}

func TestCheckFiles_Rewrite(t *testing.T) {
	e := newTestEngine(t, WithRewrite(true))
	dir := t.TempDir()
	messy := writeFile(t, dir, "messy.c", "int f() {\n      return 1;\n}\n")
	broken := writeFile(t, dir, "broken.c", "int f() {\n      return 1;\n")

	summary, err := e.CheckFiles(t.Context(), []string{messy, broken})
	require.NoError(t, err)
	require.Len(t, summary.Files, 2)
	assert.True(t, summary.Files[0].Rewritten)
	assert.False(t, summary.Files[1].Rewritten)

	got, err := os.ReadFile(messy)
	require.NoError(t, err)
	assert.Equal(t, "int f() {\n\treturn 1;\n}\n", string(got))

	got, err = os.ReadFile(broken)
	require.NoError(t, err)
	assert.Equal(t, "int f() {\n      return 1;\n", string(got))

	// The stored hash is the rewritten content's, so the next run is cached.
	stored, err := e.Store().FileByPath(messy)
	require.NoError(t, err)
	assert.Equal(t, store.ContentHash([]byte("int f() {\n\treturn 1;\n}\n")), stored.Hash)

	summary, err = e.CheckFiles(t.Context(), []string{messy})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
}

func TestCheckFiles_RewriteFailureIsCheckedAgain(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	for _, parallel := range []bool{true, false} {
		t.Run(map[bool]string{true: "parallel", false: "serial"}[parallel], func(t *testing.T) {
			e := newTestEngine(t, WithRewrite(true), WithParallel(parallel))
			path := writeFile(t, t.TempDir(), "a.c", "int f() {\nreturn 1;\n}\n")
			require.NoError(t, os.Chmod(path, 0o444))

			summary, err := e.CheckFiles(t.Context(), []string{path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "rewrite file")
			require.Len(t, summary.Files, 1)
			assert.False(t, summary.Files[0].Rewritten)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "int f() {\nreturn 1;\n}\n", string(got))

			// The stored hash is that of the rewrite that never landed.
			require.NoError(t, os.Chmod(path, 0o644))
			summary, err = e.CheckFiles(t.Context(), []string{path})
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Checked)
			assert.True(t, summary.Files[0].Rewritten)
		})
	}
}

func TestCheckFiles_OptionsChangeBypassesCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	dir := t.TempDir()
	cFile := writeFile(t, dir, "a.c", "int f() {\nreturn 1;\n}\n")
	jsFile := writeFile(t, dir, "b.js", "function g() {\n}\n")
	paths := []string{cFile, jsFile}

	plain, err := New(dbPath)
	require.NoError(t, err)
	_, err = plain.CheckFiles(t.Context(), paths)
	require.NoError(t, err)
	require.NoError(t, plain.Close())

	full, err := New(dbPath, WithRewrite(true), WithGrammarCheck(true))
	require.NoError(t, err)
	defer full.Close()

	summary, err := full.CheckFiles(t.Context(), paths)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 0, summary.Skipped)
	require.Len(t, summary.Files, 2)

	assert.True(t, summary.Files[0].Rewritten)
	got, err := os.ReadFile(cFile)
	require.NoError(t, err)
	assert.Equal(t, "int f() {\n\treturn 1;\n}\n", string(got))

	js := summary.Files[1]
	assert.False(t, js.Cached)
	assert.True(t, js.GrammarChecked)
	assert.Equal(t, 1, js.GrammarOpen)

	stored, err := full.Store().FileByPath(jsFile)
	require.NoError(t, err)
	assert.Equal(t, "grammar,rewrite", stored.Options)

	summary, err = full.CheckFiles(t.Context(), paths)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)

	// A grammar-checked row serves a plain run.
	again, err := New(dbPath)
	require.NoError(t, err)
	defer again.Close()
	summary, err = again.CheckFiles(t.Context(), paths)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.True(t, summary.Files[1].GrammarChecked)
}

func TestCheckFiles_GrammarCheck(t *testing.T) {
	e := newTestEngine(t, WithGrammarCheck(true))
	dir := t.TempDir()
	// The brace inside the block comment is only visible to the grammar.
	goFile := writeFile(t, dir, "main.go", "package main\n\n/*\n{\n*/\nfunc main() {\n}\n")
	pawnFile := writeFile(t, dir, "a.pwn", "main()\n{\n}\n")

	summary, err := e.CheckFiles(t.Context(), []string{goFile, pawnFile})
	require.NoError(t, err)
	require.Len(t, summary.Files, 2)

	g := summary.Files[0]
	assert.True(t, g.GrammarChecked)
	assert.Equal(t, 1, g.GrammarOpen)
	assert.Equal(t, 1, g.GrammarClose)
	assert.Equal(t, 2, g.Stats.OpenBraces)
	assert.True(t, g.Divergent)

	p := summary.Files[1]
	assert.False(t, p.GrammarChecked)
	assert.False(t, p.Divergent)

	stored, err := e.Store().FileByPath(goFile)
	require.NoError(t, err)
	assert.True(t, stored.Divergent)
	assert.True(t, stored.GrammarChecked)
}

func TestCheckFiles_MissingFileIsReported(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		e := newTestEngine(t, WithParallel(parallel))
		dir := t.TempDir()
		good := writeFile(t, dir, "a.c", "{\n}\n")
		missing := filepath.Join(dir, "missing.c")

		summary, err := e.CheckFiles(t.Context(), []string{missing, good})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 error(s)")
		require.NotNil(t, summary)
		assert.Equal(t, 1, summary.Checked)
	}
}

func TestCheckFiles_CanceledContext(t *testing.T) {
	e := newTestEngine(t)
	path := writeFile(t, t.TempDir(), "a.c", "{\n}\n")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := e.CheckFiles(ctx, []string{path})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheckFiles_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newTestEngine(t, WithLogger(logger))
	path := writeFile(t, t.TempDir(), "a.c", "{\n}\n")

	_, err := e.CheckFiles(t.Context(), []string{path})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"file checked"`)
	assert.Contains(t, buf.String(), `"msg":"check finished"`)
}

func TestCheckFiles_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := newTestEngine(t, WithMeterProvider(mp))
	dir := t.TempDir()
	a := writeFile(t, dir, "a.c", "{\n}\n")
	b := writeFile(t, dir, "b.c", "{\n")

	_, err := e.CheckFiles(t.Context(), []string{a, b})
	require.NoError(t, err)
	_, err = e.CheckFiles(t.Context(), []string{a})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	assert.Equal(t, int64(2), counterTotal(t, rm, "bracefmt.files.checked"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "bracefmt.files.skipped"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "bracefmt.files.failed"))
	assert.Equal(t, int64(5), counterTotal(t, rm, "bracefmt.lines.checked"))
}

// counterTotal sums every data point of the named Int64 counter.
func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return 0
}

func TestWalkListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.c", "{\n}\n")
	writeFile(t, dir, "src/b.pwn", "{\n")
	writeFile(t, dir, "node_modules/dep.js", "{\n")
	writeFile(t, dir, "vendor/dep.go", "{\n")
	writeFile(t, dir, ".hidden/x.c", "{\n")
	writeFile(t, dir, "notes.txt", "{\n")

	paths, err := walkListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "src", "a.c"),
		filepath.Join(dir, "src", "b.pwn"),
	}, paths)
}

func TestCheckDirectory(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	writeFile(t, dir, "src/a.c", "{\n}\n")
	writeFile(t, dir, "src/b.pwn", "{\n")

	summary, err := e.CheckDirectory(t.Context(), dir)
	require.NoError(t, err)
	require.Len(t, summary.Files, 2)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Purged)
}

func TestCheckDirectory_PurgesMissingFiles(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	keep := writeFile(t, dir, "src/a.c", "{\n}\n")
	gone := writeFile(t, dir, "src/b.pwn", "{\n")
	other := writeFile(t, t.TempDir(), "c.c", "{\n")

	_, err := e.CheckFiles(t.Context(), []string{keep, gone, other})
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	summary, err := e.CheckDirectory(t.Context(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Purged)

	f, err := e.Store().FileByPath(gone)
	require.NoError(t, err)
	assert.Nil(t, f)

	// Files outside root are left alone.
	f, err = e.Store().FileByPath(other)
	require.NoError(t, err)
	assert.NotNil(t, f)
	f, err = e.Store().FileByPath(keep)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestCheckDirectory_PurgeRespectsLanguageFilter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	dir := t.TempDir()
	cFile := writeFile(t, dir, "a.c", "{\n}\n")
	pawnFile := writeFile(t, dir, "b.pwn", "{\n}\n")

	all, err := New(dbPath)
	require.NoError(t, err)
	_, err = all.CheckFiles(t.Context(), []string{cFile, pawnFile})
	require.NoError(t, err)
	require.NoError(t, all.Close())
	require.NoError(t, os.Remove(pawnFile))

	conly, err := New(dbPath, WithLanguages("c"))
	require.NoError(t, err)
	defer conly.Close()
	summary, err := conly.CheckDirectory(t.Context(), dir)
	require.NoError(t, err)
	assert.Zero(t, summary.Purged)

	f, err := conly.Store().FileByPath(pawnFile)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestCommonRoot(t *testing.T) {
	tests := []struct {
		paths []string
		want  string
	}{
		{nil, ""},
		{[]string{"/a/b/c.c"}, "/a/b"},
		{[]string{"/a/b/c.c", "/a/b/d/e.c"}, "/a/b"},
		{[]string{"/a/b/c.c", "/a/x/e.c"}, "/a"},
		{[]string{"/a/c.c", "/z/e.c"}, "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commonRoot(tt.paths), "%v", tt.paths)
	}
}
