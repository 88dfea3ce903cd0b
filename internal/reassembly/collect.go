package reassembly

import (
	"context"
	"fmt"
	"strings"
)

// RowCursor is a forward-only source of text rows, shaped like database/sql.Rows.
// The caller owns the cursor and closes it.
type RowCursor interface {
	Next() bool
	Text() string
	Err() error
}

// TerminalPolicy decides whether the last row of a cursor is a sentinel that
// must not be part of the document. A nil policy keeps every row.
type TerminalPolicy func(last string) bool

// KeepTerminal keeps the last row.
func KeepTerminal(string) bool { return false }

// DropTerminal always discards the last row.
func DropTerminal(string) bool { return true }

// DropTerminalIf discards the last row when pred matches it.
func DropTerminalIf(pred func(string) bool) TerminalPolicy {
	return func(last string) bool { return pred(last) }
}

// PolicyName returns the canonical spelling of a policy name; empty means
// "keep".
func PolicyName(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", "keep":
		return "keep", nil
	case "drop", "drop_blank":
		return n, nil
	default:
		return "", fmt.Errorf("unknown terminal policy %q", name)
	}
}

// ParsePolicy maps a configuration name to a policy: "keep" (or empty),
// "drop", or "drop_blank" which drops a last row holding only whitespace.
func ParsePolicy(name string) (TerminalPolicy, error) {
	canonical, err := PolicyName(name)
	if err != nil {
		return nil, err
	}
	switch canonical {
	case "drop":
		return DropTerminal, nil
	case "drop_blank":
		return DropTerminalIf(func(last string) bool { return strings.TrimSpace(last) == "" }), nil
	default:
		return KeepTerminal, nil
	}
}

// Collect drains cursor into a fresh Reassembler and finishes it. One row of
// lookahead lets policy inspect the final row before it is pushed. Cursor
// errors are returned unmodified; ctx is checked between rows.
func Collect(ctx context.Context, cursor RowCursor, policy TerminalPolicy) (Result, error) {
	r := New()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var pending string
	held := false
	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if held {
			if err := r.Push(pending); err != nil {
				return Result{}, err
			}
		}
		pending, held = cursor.Text(), true
	}
	if err := cursor.Err(); err != nil {
		return Result{}, err
	}

	if held && (policy == nil || !policy(pending)) {
		if err := r.Push(pending); err != nil {
			return Result{}, err
		}
	}
	return r.Finish(), nil
}

// SliceCursor serves rows from memory.
type SliceCursor struct {
	rows []string
	pos  int
	err  error
}

// NewSliceCursor creates a cursor over rows.
func NewSliceCursor(rows ...string) *SliceCursor {
	return &SliceCursor{rows: rows}
}

// FailWith makes the cursor report err once its rows are exhausted.
func (c *SliceCursor) FailWith(err error) *SliceCursor {
	c.err = err
	return c
}

// Next advances to the next row.
func (c *SliceCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Text returns the current row.
func (c *SliceCursor) Text() string {
	if c.pos == 0 || c.pos > len(c.rows) {
		return ""
	}
	return c.rows[c.pos-1]
}

// Err returns the configured failure after the last row.
func (c *SliceCursor) Err() error {
	if c.pos < len(c.rows) {
		return nil
	}
	return c.err
}

// Close is a no-op.
func (c *SliceCursor) Close() error {
	return nil
}
