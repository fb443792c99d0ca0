package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fairlens/fairlens/internal/schema"
)

// Job describes one analysis run: which sources to load, where their
// harmonization mappings live, and how to evaluate the merged result.
// Jobs are YAML files; relative paths are resolved against the job
// file's location.
type Job struct {
	// Name identifies the run in diagnostics.
	Name string `yaml:"name"`

	// Mappings is the directory of CUE mapping files.
	Mappings string `yaml:"mappings"`

	// Sources lists the input files. Each name must have a mapping.
	Sources []SourceRef `yaml:"sources"`

	Metrics MetricsSpec `yaml:"metrics"`

	// Export is the default SQLite path for exported runs; empty when
	// the job is never exported.
	Export string `yaml:"export"`
}

// SourceRef points a source name at its data file.
type SourceRef struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// MetricsSpec configures the fairness evaluation.
type MetricsSpec struct {
	Dimension  string `yaml:"dimension"`
	Privileged string `yaml:"privileged"`

	// MinSample excludes smaller groups from the metric comparison;
	// 0 means the evaluator default.
	MinSample int `yaml:"min_sample"`

	ChiSquare  bool `yaml:"chi_square"`
	Reweighing bool `yaml:"reweighing"`
}

// LoadJob reads and validates a job file. Relative mapping and source
// paths are resolved against the job file's directory.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	job.Mappings = resolve(base, job.Mappings)
	job.Export = resolve(base, job.Export)
	for i := range job.Sources {
		job.Sources[i].Path = resolve(base, job.Sources[i].Path)
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return &job, nil
}

// Validate checks the job for structural problems before any data is
// touched.
func (j *Job) Validate() error {
	if j.Mappings == "" {
		return fmt.Errorf("mappings directory is required")
	}
	if len(j.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool)
	for i, s := range j.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d has no name", i+1)
		}
		if s.Path == "" {
			return fmt.Errorf("source %q has no path", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q appears twice", s.Name)
		}
		seen[s.Name] = true
	}
	if _, err := schema.ParseDimension(j.Metrics.Dimension); err != nil {
		return err
	}
	if j.Metrics.Privileged == "" {
		return fmt.Errorf("metrics.privileged is required")
	}
	if j.Metrics.MinSample < 0 {
		return fmt.Errorf("metrics.min_sample must not be negative")
	}
	return nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
