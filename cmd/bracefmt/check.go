package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jward/bracefmt"
	"github.com/jward/bracefmt/internal/runtime"
	"github.com/jward/bracefmt/policies"
)

var (
	flagForce        bool
	flagLanguages    []string
	flagGrammarCheck bool
	flagRewrite      bool
	flagPolicy       string
	flagWorkers      int
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check every supported file under a directory",
	Long: `Analyzes each supported source file under path (default "."), records the results in the
database and judges every file with a Risor policy. Exits non-zero when any file is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagForce, "force", false, "re-check files whose content is unchanged")
	checkCmd.Flags().StringSliceVar(&flagLanguages, "languages", nil, "comma-separated language filter (e.g. c,go)")
	checkCmd.Flags().BoolVar(&flagGrammarCheck, "grammar-check", false, "cross-check brace counts with tree-sitter grammars")
	checkCmd.Flags().BoolVar(&flagRewrite, "rewrite", false, "rewrite balanced files with their re-indented text")
	checkCmd.Flags().StringVar(&flagPolicy, "policy", "default", "policy: default|strict|<file.risor>")
	checkCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default: number of CPUs)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot, cfg.Store.Path)
	if err := ensureDBDir(dbPath); err != nil {
		return err
	}

	rt, policyPath, err := loadPolicy(cfg.Check.Policy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	opts := []bracefmt.Option{
		bracefmt.WithParallel(cfg.Check.Parallel),
		bracefmt.WithWorkers(cfg.Check.Workers),
		bracefmt.WithGrammarCheck(cfg.Check.GrammarCheck),
		bracefmt.WithRewrite(cfg.Check.Rewrite),
		bracefmt.WithForce(flagForce),
		bracefmt.WithLogger(logger),
		bracefmt.WithMeterProvider(mp),
	}
	if len(cfg.Check.Languages) > 0 {
		opts = append(opts, bracefmt.WithLanguages(cfg.Check.Languages...))
	}

	engine, err := bracefmt.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	summary, err := engine.CheckDirectory(ctx, targetDir)
	if summary == nil {
		return outputError(cmd, "check", fmt.Errorf("checking: %w", err))
	}
	if err != nil {
		// Per-file failures are already in the reports.
		logger.Warn("check incomplete", "error", err)
	}

	result, err := judge(ctx, rt, policyPath, summary)
	if err != nil {
		return outputError(cmd, "check", err)
	}
	result.Policy = cfg.Check.Policy

	logCounters(ctx, reader)
	fmt.Fprintf(cmd.ErrOrStderr(), "Checked %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.ErrOrStderr(), "Database: %s\n", dbPath)

	if err := outputResult(cmd, CLIResult{Command: "check", Results: result}); err != nil {
		return err
	}
	if result.Rejected > 0 {
		errorHandled = true
		err := fmt.Errorf("%d file(s) rejected by policy %q", result.Rejected, result.Policy)
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	return nil
}

// loadPolicy returns a runtime and script path for a built-in policy name or
// a .risor file on disk.
func loadPolicy(policy string) (*runtime.Runtime, string, error) {
	if slices.Contains(policies.Names, policy) {
		rt := runtime.NewRuntime("", runtime.WithRuntimeFS(policies.FS), runtime.WithLogger(logger))
		return rt, policies.Path(policy), nil
	}
	abs, err := filepath.Abs(policy)
	if err != nil {
		return nil, "", fmt.Errorf("resolving policy %q: %w", policy, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, "", fmt.Errorf("policy not found: %s", policy)
	}
	rt := runtime.NewRuntime(filepath.Dir(abs), runtime.WithLogger(logger))
	return rt, filepath.Base(abs), nil
}

// judge applies the policy to every report of the run.
func judge(ctx context.Context, rt *runtime.Runtime, policyPath string, summary *bracefmt.RunSummary) (CLICheck, error) {
	result := CLICheck{
		RunID:   summary.RunID,
		Checked: summary.Checked,
		Skipped: summary.Skipped,
		Failed:  summary.Failed,
		Purged:  summary.Purged,
		Files:   make([]CLIReport, 0, len(summary.Files)),
	}
	for _, rep := range summary.Files {
		pass, err := rt.Verdict(ctx, policyPath, rep)
		if err != nil {
			return result, fmt.Errorf("policy on %s: %w", rep.Path, err)
		}
		if !pass {
			result.Rejected++
		}
		result.Files = append(result.Files, reportToCLI(rep, pass))
	}
	return result, nil
}

func reportToCLI(rep *bracefmt.FileReport, pass bool) CLIReport {
	return CLIReport{
		Path:        rep.Path,
		Language:    rep.Language,
		Lines:       rep.Stats.Lines,
		OpenBraces:  rep.Stats.OpenBraces,
		CloseBraces: rep.Stats.CloseBraces,
		Error:       rep.Error.Kind.Code(),
		Count:       rep.Error.Count,
		Line:        rep.Error.Line,
		Message:     rep.Error.Message(),
		Divergent:   rep.Divergent,
		Rewritten:   rep.Rewritten,
		Cached:      rep.Cached,
		Pass:        pass,
	}
}

// logCounters logs the engine counter totals at debug level.
func logCounters(ctx context.Context, reader sdkmetric.Reader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		logger.Debug("collecting metrics failed", "error", err)
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			logger.Debug("counter", "name", m.Name, "value", total)
		}
	}
}
