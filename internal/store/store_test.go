package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile is a helper that upserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path, lang, kind string) *File {
	t.Helper()
	f := &File{
		Path:        path,
		Language:    lang,
		Hash:        "abc123",
		LineCount:   10,
		OpenBraces:  3,
		CloseBraces: 3,
		ErrorKind:   kind,
		LastChecked: time.Now().Truncate(time.Second),
	}
	id, err := s.UpsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "runs", "metadata"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_RecordsSchemaVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata(schemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestMigrate_UpgradesDatabaseWithoutOptions(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "old.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	// A database written before the options column existed.
	_, err = s.DB().Exec(schemaDDL)
	require.NoError(t, err)
	_, err = s.DB().Exec("INSERT INTO files (path, language, hash) VALUES ('/old.c', 'c', 'h1')")
	require.NoError(t, err)

	require.NoError(t, s.Migrate())

	got, err := s.FileByPath("/old.c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h1", got.Hash)
	assert.Empty(t, got.Options)
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SetMetadata(schemaVersionKey, "99"))
	assert.ErrorContains(t, s.Migrate(), "newer than")
}

func TestNewStore_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

// =============================================================================
// Files
// =============================================================================

func TestUpsertFile_InsertAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/src/main.c", "c", "")
	got, err := s.FileByPath("/src/main.c")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "c", got.Language)
	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, 10, got.LineCount)
	assert.Equal(t, "none", got.ErrorKind)
	assert.False(t, got.Failed())
	assert.Empty(t, got.RunID)
	assert.True(t, f.LastChecked.Equal(got.LastChecked))
}

func TestUpsertFile_ReplacesByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first := insertTestFile(t, s, "/src/a.js", "javascript", "none")
	second := &File{
		Path:        "/src/a.js",
		Language:    "javascript",
		Hash:        "def456",
		ErrorKind:   "tooManyClose",
		ErrorLine:   4,
		Divergent:   true,
		Options:     "grammar,rewrite",
		LastChecked: time.Now(),
	}
	_, err := s.UpsertFile(second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.FileByPath("/src/a.js")
	require.NoError(t, err)
	assert.Equal(t, "def456", got.Hash)
	assert.Equal(t, 4, got.ErrorLine)
	assert.True(t, got.Divergent)
	assert.Equal(t, "grammar,rewrite", got.Options)
	assert.True(t, got.Failed())

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM files").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestFileByPath_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.FileByPath("/nope.c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	insertTestFile(t, s, "/src/x.go", "go", "")
	require.NoError(t, s.DeleteFile("/src/x.go"))
	require.NoError(t, s.DeleteFile("/src/x.go"))

	got, err := s.FileByPath("/src/x.go")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFilesByLanguages(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	insertTestFile(t, s, "/a.c", "c", "")
	insertTestFile(t, s, "/b.pwn", "pawn", "")
	insertTestFile(t, s, "/c.go", "go", "")

	files, err := s.FilesByLanguages("pawn", "go")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/b.pwn", files[0].Path)

	files, err = s.FilesByLanguages()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCommitFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	runID, err := s.InsertRun(&Run{Root: "/src"})
	require.NoError(t, err)

	files := []*File{
		{Path: "/src/a.c", Language: "c", RunID: runID, LastChecked: time.Now()},
		{Path: "/src/b.c", Language: "c", RunID: runID, ErrorKind: "tooManyOpen", ErrorCount: 2, LastChecked: time.Now()},
	}
	require.NoError(t, s.CommitFiles(files))
	for _, f := range files {
		assert.Positive(t, f.ID)
	}

	got, err := s.FilesByRun(runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].ErrorCount)
	assert.Equal(t, runID, got[0].RunID)
}

func TestCommitFiles_RollsBackOnError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	files := []*File{
		{Path: "/src/a.c", Language: "c", LastChecked: time.Now()},
		{Path: "/src/b.c", Language: "c", RunID: "no-such-run", LastChecked: time.Now()},
	}
	require.Error(t, s.CommitFiles(files))

	got, err := s.FileByPath("/src/a.c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// Runs & metadata
// =============================================================================

func TestRuns_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r := &Run{Root: "/repo", StartedAt: time.Now().Add(-time.Minute)}
	id, err := s.InsertRun(r)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	got, err := s.RunByID(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "/repo", got.Root)

	r.FileCount, r.SkippedCount, r.FailedCount = 5, 2, 1
	require.NoError(t, s.FinishRun(r))
	require.NotNil(t, r.FinishedAt)

	got, err = s.RunByID(id)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 5, got.FileCount)
	assert.Equal(t, 2, got.SkippedCount)
	assert.Equal(t, 1, got.FailedCount)

	second := &Run{Root: "/repo"}
	_, err = s.InsertRun(second)
	require.NoError(t, err)

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
}

func TestFinishRun_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.Error(t, s.FinishRun(&Run{ID: "missing"}))
}

func TestRunByID_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r, err := s.RunByID("missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("policy_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("policy_hash", "one"))
	require.NoError(t, s.SetMetadata("policy_hash", "two"))
	v, err = s.GetMetadata("policy_hash")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
}

func TestPlaceholderList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", placeholderList(0))
	assert.Equal(t, "?", placeholderList(1))
	assert.Equal(t, "?,?,?", placeholderList(3))
}
