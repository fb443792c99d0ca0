package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairlens/fairlens/internal/mapping"
)

// ValidationIssue is one mapping problem in CLI output form.
type ValidationIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Position string `json:"position,omitempty"`
}

// ValidationResult holds validation results for a mappings directory.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Sources []string          `json:"sources,omitempty"`
	Errors  []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <mappings-dir>",
		Short: "Validate mapping files without running an analysis",
		Long: `Validate CUE mapping files against the mapping schema.

Collects every problem in the directory rather than stopping at the
first, so a whole review's worth of findings comes back in one pass.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, errs := mapping.Load(dir, mapping.CollectAll)

	// An unreadable directory is a command error, not a finding.
	if result == nil && len(errs) > 0 {
		var mapErr *mapping.Error
		if errors.As(errs[0], &mapErr) && mapErr.Code == mapping.ErrCodeNotFound {
			formatter.Error(mapErr.Code, mapErr.Message, nil)
			return NewExitError(ExitCommandError, mapErr.Message)
		}
	}

	var issues []ValidationIssue
	for _, err := range errs {
		var mapErr *mapping.Error
		if errors.As(err, &mapErr) {
			issue := ValidationIssue{Code: mapErr.Code, Message: mapErr.Message}
			if mapErr.Pos.IsValid() {
				issue.Position = mapErr.Pos.String()
			}
			issues = append(issues, issue)
			continue
		}
		issues = append(issues, ValidationIssue{Code: "M000", Message: err.Error()})
	}

	var sources []string
	if result != nil {
		formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)
		for name := range result.Mappings {
			sources = append(sources, name)
		}
		sort.Strings(sources)
	}

	res := ValidationResult{
		Valid:   len(issues) == 0,
		Sources: sources,
		Errors:  issues,
	}

	if formatter.Format == "json" {
		if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		printValidationText(formatter, dir, res)
	}

	if !res.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(issues)))
	}
	return nil
}

func printValidationText(f *OutputFormatter, dir string, res ValidationResult) {
	if res.Valid {
		fmt.Fprintf(f.Writer, "✓ %s: %d source mapping(s) valid (%s)\n",
			dir, len(res.Sources), strings.Join(res.Sources, ", "))
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s: %d error(s)\n", dir, len(res.Errors))
	for _, issue := range res.Errors {
		if issue.Position != "" {
			fmt.Fprintf(f.Writer, "  [%s] %s (%s)\n", issue.Code, issue.Message, issue.Position)
		} else {
			fmt.Fprintf(f.Writer, "  [%s] %s\n", issue.Code, issue.Message)
		}
	}
}
