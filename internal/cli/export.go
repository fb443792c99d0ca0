package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairlens/fairlens/internal/store"
)

// ExportResult is the CLI output of an export.
type ExportResult struct {
	RunID   string `json:"run_id"`
	Records int    `json:"records"`
	DB      string `json:"db"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "export <job-file>",
		Short: "Run an analysis job and export the result to SQLite",
		Long: `Run a job and write the merged records, group statistics, metrics
and the canonical report to a SQLite database. The stored report bytes
can later be compared byte-for-byte against a re-run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], dbPath, cmd)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "fairlens.db", "SQLite database path")

	return cmd
}

func runExport(opts *RootOptions, jobPath, dbPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	res, job, err := executeJob(formatter, jobPath, cmd)
	if err != nil {
		return err
	}

	// The job file's export path is the default; the flag overrides it.
	if !cmd.Flags().Changed("db") && job.Export != "" {
		dbPath = job.Export
	}

	s, err := store.Open(dbPath)
	if err != nil {
		formatter.Error("E005", err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer s.Close()

	run := store.Run{
		Name:        job.Name,
		CreatedAt:   time.Now(),
		Dataset:     res.Dataset,
		Report:      res.Report,
		Diagnostics: res.Diagnostics,
	}
	if err := s.ExportRun(cmd.Context(), run); err != nil {
		formatter.Error("E006", err.Error(), nil)
		return WrapExitError(ExitFailure, "exporting run", err)
	}

	result := ExportResult{
		RunID:   res.Diagnostics.RunID,
		Records: res.Dataset.Len(),
		DB:      dbPath,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "exported run %s (%d records) to %s\n",
		result.RunID, result.Records, result.DB)
	return nil
}
