// Package profile computes descriptive source profiles: row counts,
// missing values per column, duplicate rows. Profiles feed the same
// diagnostics channel the harmonizer uses, so analysts can judge a
// source's quality before trusting its metrics.
package profile

import (
	"io"
	"sort"
	"strings"

	"github.com/fairlens/fairlens/internal/loader"
	"github.com/fairlens/fairlens/internal/schema"
)

// Profile describes one raw source.
type Profile struct {
	Source        string          `json:"source"`
	Rows          int             `json:"rows"`
	Columns       []ColumnProfile `json:"columns"`
	DuplicateRows int             `json:"duplicate_rows"`
}

// ColumnProfile counts data-quality findings for one column.
type ColumnProfile struct {
	Name string `json:"name"`

	// Missing counts rows where the column is absent (short row) or
	// holds a conventional null spelling.
	Missing int `json:"missing"`

	// Distinct counts distinct folded non-missing values. High
	// cardinality on a column configured with a normalization table
	// usually means the table is incomplete.
	Distinct int `json:"distinct"`
}

// Read drains a loader.Reader and profiles every row. The reader is
// consumed; construct a fresh one for harmonization afterwards.
func Read(r *loader.Reader) (*Profile, error) {
	p := &Profile{Source: r.Source()}
	header := r.Header()

	missing := make(map[string]int, len(header))
	distinct := make(map[string]map[string]bool, len(header))
	rowsSeen := make(map[string]int)

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p.Rows++

		for _, col := range header {
			v, ok := rec.Get(col)
			if !ok || schema.IsNull(v) {
				missing[col]++
				continue
			}
			if distinct[col] == nil {
				distinct[col] = make(map[string]bool)
			}
			distinct[col][schema.Fold(v)] = true
		}

		rowsSeen[fingerprint(header, rec)]++
	}

	for _, n := range rowsSeen {
		if n > 1 {
			p.DuplicateRows += n - 1
		}
	}

	for _, col := range header {
		p.Columns = append(p.Columns, ColumnProfile{
			Name:     col,
			Missing:  missing[col],
			Distinct: len(distinct[col]),
		})
	}
	sort.Slice(p.Columns, func(i, j int) bool { return p.Columns[i].Name < p.Columns[j].Name })

	return p, nil
}

// fingerprint builds a duplicate-detection key from the row's values
// in header order. Absent and empty are kept distinct so a padded
// short row does not collide with an explicit blank.
func fingerprint(header []string, rec loader.RawRecord) string {
	var b strings.Builder
	for _, col := range header {
		v, ok := rec.Get(col)
		if ok {
			b.WriteByte('v')
			b.WriteString(v)
		} else {
			b.WriteByte('x')
		}
		b.WriteByte(0)
	}
	return b.String()
}
