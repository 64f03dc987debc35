package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/bracefmt"
	"github.com/jward/bracefmt/internal/store"
)

var (
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string

	flagLanguage  string
	flagPrefix    string
	flagErrors    bool
	flagErrorKind string
	flagDivergent bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored check results",
	Long:  "Read files, totals and run history from the results database written by 'bracefmt check'.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")

	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(summaryCmd)
	queryCmd.AddCommand(runsCmd)
	queryCmd.AddCommand(runCmd)
}

// --- Helpers ---

// openStore opens the Store at the configured path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd), cfg.Store.Path)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'bracefmt check' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() bracefmt.Pagination {
	return bracefmt.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() bracefmt.Sort {
	var field bracefmt.SortField
	switch flagSort {
	case "lines":
		field = bracefmt.SortByLines
	case "language":
		field = bracefmt.SortByLanguage
	default:
		field = bracefmt.SortByPath
	}

	order := bracefmt.Asc
	if flagOrder == "desc" {
		order = bracefmt.Desc
	}
	return bracefmt.Sort{Field: field, Order: order}
}

func fileToCLI(f store.File) CLIFile {
	return CLIFile{
		Path:        f.Path,
		Language:    f.Language,
		Lines:       f.LineCount,
		OpenBraces:  f.OpenBraces,
		CloseBraces: f.CloseBraces,
		Error:       f.ErrorKind,
		Failed:      f.Failed(),
		Count:       f.ErrorCount,
		Line:        f.ErrorLine,
		Divergent:   f.Divergent,
		LastChecked: f.LastChecked,
	}
}

func runToCLI(r *store.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		Root:       r.Root,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Checked:    r.FileCount,
		Skipped:    r.SkippedCount,
		Failed:     r.FailedCount,
	}
}

// --- Commands ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List checked files",
	RunE:  runFiles,
}

func init() {
	filesCmd.Flags().StringVar(&flagLanguage, "language", "", "filter by language")
	filesCmd.Flags().StringVar(&flagPrefix, "prefix", "", "filter by path prefix")
	filesCmd.Flags().BoolVar(&flagErrors, "errors", false, "only files with brace errors")
	filesCmd.Flags().StringVar(&flagErrorKind, "error-kind", "", "only files with this error: empty_input|tooManyOpen|tooManyClose")
	filesCmd.Flags().BoolVar(&flagDivergent, "divergent", false, "only files whose grammar counts differ")
	filesCmd.Flags().StringVar(&flagSort, "sort", "path", "sort field: path|lines|language")
	filesCmd.Flags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")
}

func runFiles(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "files", err)
	}
	defer s.Close()

	filter := bracefmt.FileFilter{
		PathPrefix:    flagPrefix,
		Language:      flagLanguage,
		ErrorsOnly:    flagErrors,
		ErrorKind:     flagErrorKind,
		DivergentOnly: flagDivergent,
	}
	result, err := bracefmt.NewQueryBuilder(s).Files(filter, buildSort(), buildPagination())
	if err != nil {
		return outputError(cmd, "files", err)
	}

	cliFiles := make([]CLIFile, len(result.Items))
	for i, f := range result.Items {
		cliFiles[i] = fileToCLI(f)
	}
	return outputResult(cmd, CLIResult{
		Command:    "files",
		Results:    cliFiles,
		TotalCount: &result.TotalCount,
	})
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show totals per language",
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "summary", err)
	}
	defer s.Close()

	sum, err := bracefmt.NewQueryBuilder(s).Summary()
	if err != nil {
		return outputError(cmd, "summary", err)
	}
	return outputResult(cmd, CLIResult{Command: "summary", Results: sum})
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent check runs",
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "runs", err)
	}
	defer s.Close()

	runs, err := bracefmt.NewQueryBuilder(s).Runs(flagLimit)
	if err != nil {
		return outputError(cmd, "runs", err)
	}
	cliRuns := make([]CLIRun, len(runs))
	for i, r := range runs {
		cliRuns[i] = runToCLI(r)
	}
	total := len(cliRuns)
	return outputResult(cmd, CLIResult{
		Command:    "runs",
		Results:    cliRuns,
		TotalCount: &total,
	})
}

var runCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Show one check run and the files it last wrote",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return outputError(cmd, "run", err)
	}
	defer s.Close()

	detail, err := bracefmt.NewQueryBuilder(s).Run(args[0])
	if err != nil {
		return outputError(cmd, "run", err)
	}
	if detail == nil {
		return outputError(cmd, "run", fmt.Errorf("run not found: %s", args[0]))
	}

	result := CLIRunDetail{Run: runToCLI(detail.Run), Files: make([]CLIFile, len(detail.Files))}
	for i, f := range detail.Files {
		result.Files[i] = fileToCLI(*f)
	}
	total := len(result.Files)
	return outputResult(cmd, CLIResult{
		Command:    "run",
		Results:    result,
		TotalCount: &total,
	})
}
