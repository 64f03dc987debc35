package bracefmt

import (
	"fmt"
	"strings"

	"github.com/jward/bracefmt/internal/store"
)

// QueryBuilder provides read access to stored check results.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder returns a QueryBuilder reading from s.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// --- Common Types ---

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByPath     SortField = "path"
	SortByLines    SortField = "lines"
	SortByLanguage SortField = "language"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// FileFilter specifies which files to include. Zero values match everything.
type FileFilter struct {
	PathPrefix    string
	Language      string
	ErrorsOnly    bool
	ErrorKind     string // wire code, e.g. "tooManyOpen"
	DivergentOnly bool
}

// LanguageSummary aggregates stored results for one language.
type LanguageSummary struct {
	Language  string `json:"language" yaml:"language"`
	Files     int    `json:"files" yaml:"files"`
	Lines     int    `json:"lines" yaml:"lines"`
	Errors    int    `json:"errors" yaml:"errors"`
	Divergent int    `json:"divergent" yaml:"divergent"`
}

// Summary aggregates all stored results.
type Summary struct {
	Files     int               `json:"files" yaml:"files"`
	Lines     int               `json:"lines" yaml:"lines"`
	Errors    int               `json:"errors" yaml:"errors"`
	Divergent int               `json:"divergent" yaml:"divergent"`
	Languages []LanguageSummary `json:"languages" yaml:"languages"`
}

// --- Internal Helpers ---

// normalizePathPrefix ensures a path prefix ends with "/" for correct LIKE matching.
// "src/net" -> "src/net/" to prevent matching "src/network/".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

// escapeLike escapes the LIKE wildcards in s for use with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// fileSortColumn returns the SQL ORDER BY expression for file queries.
// Falls back to "path" for unknown fields.
func fileSortColumn(field SortField) string {
	switch field {
	case SortByLines:
		return "line_count"
	case SortByLanguage:
		return "language"
	default:
		return "path"
	}
}

// sortDirection returns "ASC" or "DESC".
func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

// --- Endpoints ---

// Files returns stored results matching filter, one page at a time. Ties in
// the sort column are broken by path.
func (q *QueryBuilder) Files(filter FileFilter, sort Sort, page Pagination) (*PagedResult[File], error) {
	page = page.normalize()

	var where []string
	var args []any

	if filter.PathPrefix != "" {
		where = append(where, "path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(normalizePathPrefix(filter.PathPrefix))+"%")
	}
	if filter.Language != "" {
		where = append(where, "language = ?")
		args = append(args, filter.Language)
	}
	if filter.ErrorsOnly {
		where = append(where, "error_kind != 'none'")
	}
	if filter.ErrorKind != "" {
		where = append(where, "error_kind = ?")
		args = append(args, filter.ErrorKind)
	}
	if filter.DivergentOnly {
		where = append(where, "divergent")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var totalCount int
	if err := q.store.DB().QueryRow("SELECT COUNT(*) FROM files "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("files: count: %w", err)
	}

	orderCol := fileSortColumn(sort.Field)
	orderDir := sortDirection(sort.Order)
	dataSQL := fmt.Sprintf(
		`SELECT %s FROM files %s ORDER BY %s %s, path ASC LIMIT ? OFFSET ?`,
		store.FileColumns, whereClause, orderCol, orderDir,
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("files: query: %w", err)
	}
	defer rows.Close()

	items := []File{}
	for rows.Next() {
		f, err := store.ScanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("files: scan: %w", err)
		}
		items = append(items, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("files: rows: %w", err)
	}

	return &PagedResult[File]{Items: items, TotalCount: totalCount}, nil
}

// FileByPath returns the stored result for path, or nil if it was never
// checked.
func (q *QueryBuilder) FileByPath(path string) (*File, error) {
	return q.store.FileByPath(path)
}

// Summary aggregates stored results per language, ordered by language name.
func (q *QueryBuilder) Summary() (*Summary, error) {
	rows, err := q.store.DB().Query(`
		SELECT language,
		       COUNT(*),
		       COALESCE(SUM(line_count), 0),
		       COALESCE(SUM(CASE WHEN error_kind != 'none' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN divergent THEN 1 ELSE 0 END), 0)
		FROM files
		GROUP BY language
		ORDER BY language`)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	sum := &Summary{Languages: []LanguageSummary{}}
	for rows.Next() {
		var ls LanguageSummary
		if err := rows.Scan(&ls.Language, &ls.Files, &ls.Lines, &ls.Errors, &ls.Divergent); err != nil {
			return nil, fmt.Errorf("summary: scan: %w", err)
		}
		sum.Files += ls.Files
		sum.Lines += ls.Lines
		sum.Errors += ls.Errors
		sum.Divergent += ls.Divergent
		sum.Languages = append(sum.Languages, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: rows: %w", err)
	}
	return sum, nil
}

// Runs returns up to limit recorded runs, most recent first. The limit is
// bounded like Pagination.Limit.
func (q *QueryBuilder) Runs(limit int) ([]*Run, error) {
	limit = Pagination{Limit: limit}.normalize().Limit
	runs, err := q.store.Runs(limit)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	if runs == nil {
		runs = []*Run{}
	}
	return runs, nil
}

// RunDetail is one run with the files it last wrote.
type RunDetail struct {
	Run   *Run    `json:"run" yaml:"run"`
	Files []*File `json:"files" yaml:"files"`
}

// Run returns the run with the given ID, or nil if there is none. Files
// holds the stored results whose latest check was this run; files a later
// run re-checked, and unchanged files reported from the cache, are not
// included.
func (q *QueryBuilder) Run(id string) (*RunDetail, error) {
	run, err := q.store.RunByID(id)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if run == nil {
		return nil, nil
	}
	files, err := q.store.FilesByRun(id)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if files == nil {
		files = []*File{}
	}
	return &RunDetail{Run: run, Files: files}, nil
}
