// Package chunkquery builds and runs queries that aggregate a table into one
// JSON document and emit it as ordered text rows of bounded length, the way
// SQL Server splits FOR JSON output.
package chunkquery

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidSpec is wrapped by every Spec validation failure.
var ErrInvalidSpec = errors.New("chunkquery: invalid spec")

// Spec describes one chunked aggregation.
type Spec struct {
	Table   string
	Columns []string
	// OrderBy is the column that fixes element order inside the array.
	OrderBy string
	// Root wraps the array as {"<Root>": [...]} when set.
	Root string
	// FragmentLength is the maximum characters per row; 0 emits one row.
	FragmentLength int
}

// Validate checks every identifier against a conservative whitelist, since
// they are spliced into SQL text.
func (s Spec) Validate() error {
	if !identPattern.MatchString(s.Table) {
		return fmt.Errorf("%w: table %q", ErrInvalidSpec, s.Table)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSpec)
	}
	for _, c := range s.Columns {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidSpec, c)
		}
	}
	if s.OrderBy != "" && !identPattern.MatchString(s.OrderBy) {
		return fmt.Errorf("%w: order by %q", ErrInvalidSpec, s.OrderBy)
	}
	if s.Root != "" && !identPattern.MatchString(s.Root) {
		return fmt.Errorf("%w: root %q", ErrInvalidSpec, s.Root)
	}
	if s.FragmentLength < 0 {
		return fmt.Errorf("%w: fragment length %d", ErrInvalidSpec, s.FragmentLength)
	}
	return nil
}

// Chunked reports whether the query splits its output.
func (s Spec) Chunked() bool {
	return s.FragmentLength > 0
}

// Key identifies the query in caches and logs.
func (s Spec) Key() string {
	return fmt.Sprintf("%s(%s)/order=%s/root=%s/len=%d",
		s.Table, strings.Join(s.Columns, ","), s.OrderBy, s.Root, s.FragmentLength)
}
