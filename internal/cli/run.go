package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fairlens/fairlens/internal/pipeline"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job-file>",
		Short: "Run an analysis job and print the canonical report",
		Long: `Run a job end to end: load each source, harmonize, merge, evaluate
fairness metrics and print the canonical report to stdout.

The report bytes are deterministic: the same job over the same inputs
produces byte-identical output. Diagnostics (unmapped values, dropped
records, duplicate ids) go to stderr and never into the report.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRun(opts *RootOptions, jobPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	res, _, err := executeJob(formatter, jobPath, cmd)
	if err != nil {
		return err
	}

	encoded, err := res.Report.Encode()
	if err != nil {
		formatter.Error("E004", err.Error(), nil)
		return WrapExitError(ExitFailure, "encoding report", err)
	}

	// The canonical bytes go to stdout verbatim in both formats; the
	// JSON wrapper would break byte-identity.
	if formatter.Format == "text" {
		fmt.Fprintln(formatter.Writer, res.Report.Summary())
	}
	fmt.Fprintf(formatter.Writer, "%s\n", encoded)
	return nil
}

// executeJob runs the pipeline for a job file with diagnostics on
// stderr. Shared by run and export.
func executeJob(formatter *OutputFormatter, jobPath string, cmd *cobra.Command) (*pipeline.Result, *pipeline.Job, error) {
	job, err := pipeline.LoadJob(jobPath)
	if err != nil {
		formatter.Error("E001", err.Error(), nil)
		return nil, nil, WrapExitError(ExitCommandError, "loading job", err)
	}

	res, err := pipeline.Run(cmd.Context(), job)
	if err != nil {
		formatter.Error("E003", err.Error(), nil)
		return nil, nil, WrapExitError(ExitFailure, "running job", err)
	}

	level := slog.LevelWarn
	if formatter.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(),
		&slog.HandlerOptions{Level: level}))
	res.Diagnostics.Emit(logger)

	return res, job, nil
}
