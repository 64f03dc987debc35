package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jward/bracefmt"
)

// validFormats lists the accepted --format values.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the format flag is a recognized value.
func validateFormat(format string) error {
	if slices.Contains(validFormats, format) {
		return nil
	}
	return fmt.Errorf("invalid format %q: must be one of: %s", format, strings.Join(validFormats, ", "))
}

// outputResult writes v to the command's stdout in the selected format.
func outputResult(cmd *cobra.Command, v any) error {
	return writeOutput(cmd.OutOrStdout(), flagFormat, v)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In json and yaml mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	_ = writeOutput(cmd.OutOrStdout(), flagFormat, CLIResult{Command: command, Error: err.Error()})
	return err
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "text":
		return writeText(w, v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// writeText renders v as human-readable text. Types without a text form
// fall back to indented JSON.
func writeText(w io.Writer, v any) error {
	switch r := v.(type) {
	case bracefmt.Result:
		return formatAnalysisText(w, r)
	case CLIResult:
		if r.Error != "" {
			_, err := fmt.Fprintf(w, "Error: %s\n", r.Error)
			return err
		}
		return writeText(w, r.Results)
	case CLICheck:
		formatCheckText(w, r)
	case []CLIFile:
		formatFilesText(w, r)
	case *bracefmt.Summary:
		formatSummaryText(w, r)
	case []CLIRun:
		formatRunsText(w, r)
	case CLIRunDetail:
		formatRunsText(w, []CLIRun{r.Run})
		fmt.Fprintln(w)
		formatFilesText(w, r.Files)
	default:
		return writeOutput(w, "json", v)
	}
	return nil
}

// formatAnalysisText prints the formatted code, newline-terminated.
func formatAnalysisText(w io.Writer, r bracefmt.Result) error {
	out := r.Formatted
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	_, err := io.WriteString(w, out)
	return err
}

// formatCheckText formats a check run as aligned columns and a totals line.
func formatCheckText(w io.Writer, c CLICheck) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tLINES\tRESULT\tPOLICY")
	for _, f := range c.Files {
		verdict := "pass"
		if !f.Pass {
			verdict = "fail"
		}
		result := f.Message
		if f.Divergent {
			result += " (grammar differs)"
		}
		if f.Rewritten {
			result += " (rewritten)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.Path, f.Language, f.Lines, result, verdict)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nRun %s: %d checked, %d unchanged, %d with brace errors, %d rejected by policy %q\n",
		c.RunID, c.Checked, c.Skipped, c.Failed, c.Rejected, c.Policy)
	if c.Purged > 0 {
		fmt.Fprintf(w, "Removed %d stored result(s) for missing files\n", c.Purged)
	}
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tLINES\tOPEN\tCLOSE\tERROR")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			f.Path, f.Language, f.Lines, f.OpenBraces, f.CloseBraces, f.Error)
	}
	tw.Flush()
}

// formatSummaryText formats a stored-results Summary as readable text.
func formatSummaryText(w io.Writer, s *bracefmt.Summary) {
	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, "=======")
	fmt.Fprintf(w, "Files: %d\n", s.Files)
	fmt.Fprintf(w, "Lines: %d\n", s.Lines)
	fmt.Fprintf(w, "Errors: %d\n", s.Errors)
	fmt.Fprintf(w, "Divergent: %d\n", s.Divergent)

	if len(s.Languages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Languages:")
		for _, l := range s.Languages {
			fmt.Fprintf(w, "  %s: %d files, %d lines, %d errors\n",
				l.Language, l.Files, l.Lines, l.Errors)
		}
	}
}

// formatRunsText formats CLIRun results as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tCHECKED\tSKIPPED\tFAILED\tROOT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Checked, r.Skipped, r.Failed, r.Root)
	}
	tw.Flush()
}
