package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed schema.cue
var schemaCUE string

// Mode controls how errors are handled during mapping loading.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// Result contains the mappings loaded from a directory.
type Result struct {
	Mappings  map[string]*Mapping // keyed by source name
	FileCount int
}

// Get returns the mapping for a source name.
func (r *Result) Get(source string) (*Mapping, bool) {
	m, ok := r.Mappings[source]
	return m, ok
}

// Load reads all CUE mapping files from a directory, validates them
// against the embedded schema, and compiles each source entry.
//
// An unreadable configuration (missing directory, no files, schema
// violation in FailFast mode) is the one failure class that escalates
// to the caller as fatal; per-source data problems never reach here.
func Load(dir string, mode Mode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("mappings directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing mappings directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{&Error{Code: ErrCodeLoad, Message: fmt.Sprintf("scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&Error{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		// The schema is embedded; failing to compile it is a build
		// defect, not a user error.
		return nil, []error{&Error{Code: ErrCodeLoad, Message: fmt.Sprintf("internal schema: %v", err)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&Error{Code: ErrCodeLoad, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&Error{Code: ErrCodeLoad, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&Error{Code: ErrCodeLoad, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	unified := value.Unify(schemaVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, []error{&Error{Code: ErrCodeSchema, Message: fmt.Sprintf("mapping does not conform to schema: %v", err)}}
	}

	result := &Result{
		Mappings:  make(map[string]*Mapping),
		FileCount: len(files),
	}
	var errs []error

	sourcesVal := unified.LookupPath(cue.ParsePath("source"))
	if sourcesVal.Exists() {
		iter, iterErr := sourcesVal.Fields()
		if iterErr != nil {
			errs = append(errs, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("iterating sources: %v", iterErr)})
			return result, errs
		}
		for iter.Next() {
			name := iter.Label()
			m, compileErr := CompileMapping(name, iter.Value())
			if compileErr != nil {
				errs = append(errs, compileErr)
				if mode == FailFast {
					return result, errs
				}
				continue
			}
			result.Mappings[name] = m
		}
	}

	if len(result.Mappings) == 0 && len(errs) == 0 {
		errs = append(errs, &Error{Code: ErrCodeEmpty, Message: "no sources defined in mapping files"})
	}

	return result, errs
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
