package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairlens/fairlens/internal/loader"
	"github.com/fairlens/fairlens/internal/mapping"
	"github.com/fairlens/fairlens/internal/pipeline"
	"github.com/fairlens/fairlens/internal/profile"
)

// ProfileResult holds the per-source profiles for a job.
type ProfileResult struct {
	Job      string             `json:"job"`
	Profiles []*profile.Profile `json:"profiles"`
	Skipped  []SkippedSource    `json:"skipped,omitempty"`
}

// SkippedSource records a source that could not be profiled.
type SkippedSource struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <job-file>",
		Short: "Profile the raw sources of a job before harmonization",
		Long: `Profile each source file of a job: row counts, per-column missing
and distinct values, duplicate rows. Runs on the raw data, before any
mapping is applied, to surface quality problems early.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runProfile(opts *RootOptions, jobPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	job, err := pipeline.LoadJob(jobPath)
	if err != nil {
		formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading job", err)
	}

	mappings, errs := mapping.Load(job.Mappings, mapping.FailFast)
	if len(errs) > 0 {
		formatter.Error("E002", errs[0].Error(), nil)
		return WrapExitError(ExitFailure, "loading mappings", errs[0])
	}

	result := ProfileResult{Job: job.Name}
	for _, src := range job.Sources {
		m, ok := mappings.Get(src.Name)
		if !ok {
			result.Skipped = append(result.Skipped, SkippedSource{
				Source: src.Name,
				Reason: "no mapping defined",
			})
			continue
		}
		p, err := profileSource(src, m.Format)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedSource{
				Source: src.Name,
				Reason: err.Error(),
			})
			continue
		}
		result.Profiles = append(result.Profiles, p)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	printProfileText(formatter, result)
	return nil
}

func profileSource(src pipeline.SourceRef, format loader.Format) (*profile.Profile, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := loader.New(src.Name, f, format)
	if err != nil {
		return nil, err
	}
	return profile.Read(r)
}

func printProfileText(f *OutputFormatter, res ProfileResult) {
	for _, p := range res.Profiles {
		fmt.Fprintf(f.Writer, "%s: %d row(s), %d duplicate(s)\n", p.Source, p.Rows, p.DuplicateRows)
		for _, c := range p.Columns {
			fmt.Fprintf(f.Writer, "  %-24s missing=%-6d distinct=%d\n", c.Name, c.Missing, c.Distinct)
		}
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(f.Writer, "%s: skipped (%s)\n", s.Source, s.Reason)
	}
}
