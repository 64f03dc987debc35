package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/bracefmt/internal/config"
	"github.com/jward/bracefmt/internal/logging"
)

var (
	flagConfig    string
	flagDB        string
	flagFormat    string
	flagLogLevel  string
	flagLogFormat string
)

// Loaded by PersistentPreRunE before any command runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "bracefmt",
	Short:         "Heuristic brace re-indentation and balance checking",
	Long:          "bracefmt re-indents C-family source by brace nesting and reports unbalanced braces, for single files, whole repositories or over HTTP.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return loadConfig(cmd)
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./bracefmt.yaml or ./.bracefmt/bracefmt.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .bracefmt/results.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text|yaml")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json")

	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}

// flagKeys maps config keys to the flag that overrides them. Flags a
// command does not define are ignored.
var flagKeys = map[string]string{
	"log.level":           "log-level",
	"log.format":          "log-format",
	"store.path":          "db",
	"check.languages":     "languages",
	"check.workers":       "workers",
	"check.grammar_check": "grammar-check",
	"check.rewrite":       "rewrite",
	"check.policy":        "policy",
	"server.host":         "host",
	"server.port":         "port",
}

// loadConfig reads configuration for cmd and builds the logger. Flags take
// precedence over the environment, which takes precedence over the file.
func loadConfig(cmd *cobra.Command) error {
	v, err := config.NewViper(flagConfig)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	c, err := config.New(v)
	if err != nil {
		return err
	}
	l, err := logging.New(c.Log, os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// resolveTargetDir returns the absolute path of the directory to check.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the configured database path, relative paths being
// taken from repoRoot, or the default under repoRoot.
func resolveDBPath(repoRoot, configured string) string {
	if configured != "" {
		if filepath.IsAbs(configured) {
			return configured
		}
		return filepath.Join(repoRoot, configured)
	}
	return filepath.Join(repoRoot, ".bracefmt", "results.db")
}

// ensureDBDir creates the directory holding dbPath.
func ensureDBDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
