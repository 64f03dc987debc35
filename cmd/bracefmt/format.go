package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/bracefmt"
)

var (
	flagWrite  bool
	flagOutput string
)

var formatCmd = &cobra.Command{
	Use:   "format [file]",
	Short: "Re-indent one file or stdin",
	Long: `Re-indents the input with one tab per brace nesting level and reports its brace balance.
Reads standard input when no file is given. Files with unbalanced braces are never written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().BoolVarP(&flagWrite, "write", "w", false, "write the result back to the input file")
	formatCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the result to this path")
}

func runFormat(cmd *cobra.Command, args []string) error {
	if flagWrite && len(args) == 0 {
		return fmt.Errorf("--write requires a file argument")
	}

	var (
		src  []byte
		err  error
		perm os.FileMode = 0o644
	)
	if len(args) == 1 {
		info, statErr := os.Stat(args[0])
		if statErr != nil {
			return fmt.Errorf("reading %s: %w", args[0], statErr)
		}
		perm = info.Mode().Perm()
		src, err = os.ReadFile(args[0])
	} else {
		src, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	result := bracefmt.Analyze(string(src))
	logger.Debug("formatted input",
		"lines", result.Stats.Lines,
		"open_braces", result.Stats.OpenBraces,
		"close_braces", result.Stats.CloseBraces,
		"error", result.Error.Kind.Code(),
	)

	if result.Error.OK() {
		if flagWrite {
			if err := writeFormatted(args[0], result.Formatted, perm); err != nil {
				return err
			}
		}
		if flagOutput != "" {
			if err := writeFormatted(flagOutput, result.Formatted, perm); err != nil {
				return err
			}
		}
	}

	// In text mode a written result is not echoed.
	if flagFormat != "text" || (!flagWrite && flagOutput == "") {
		if err := writeOutput(cmd.OutOrStdout(), flagFormat, result); err != nil {
			return err
		}
	}

	if !result.Error.OK() {
		fmt.Fprintln(cmd.ErrOrStderr(), result.Error.Message())
	}
	if err := result.Error.Err(); err != nil {
		errorHandled = true
		return err
	}
	return nil
}

func writeFormatted(path, text string, perm os.FileMode) error {
	if err := os.WriteFile(path, []byte(text), perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
