// Package reassembly rebuilds a JSON document that a data store has split
// across several text rows and reports whether the joined text is valid JSON.
package reassembly

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
)

// DefaultFragmentLength is the row size at which SQL Server splits FOR JSON output.
const DefaultFragmentLength = 2033

// MaxFragmentLength bounds a requested row size.
const MaxFragmentLength = 1 << 20

// ErrInvalidState is returned by Push once the reassembler has been finished.
var ErrInvalidState = errors.New("reassembly: push after finish")

// Fragment is one row of a chunked document.
type Fragment struct {
	Text  string
	Index int // arrival order, zero based
}

// Result is the outcome of a finished reassembly.
type Result struct {
	Text          string `json:"text"`
	FragmentCount int    `json:"fragment_count"`
	IsValidJSON   bool   `json:"is_valid_json"`
}

// Chunked reports whether the document arrived in more than one fragment.
func (r Result) Chunked() bool {
	return r.FragmentCount > 1
}

// Document parses the assembled text.
func (r Result) Document() (Document, error) {
	return TryParseJSON(r.Text)
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithExpectedFragments preallocates room for n fragments.
func WithExpectedFragments(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.fragments = make([]Fragment, 0, n)
		}
	}
}

// Reassembler collects fragments in arrival order until Finish is called.
// It is not safe for concurrent use; use one instance per document.
type Reassembler struct {
	fragments []Fragment
	size      int
	finished  bool
	result    Result
}

// New creates an empty reassembler in the collecting state.
func New(opts ...Option) *Reassembler {
	r := &Reassembler{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Push appends a fragment. Any text is accepted, including empty and
// partial JSON. After Finish every call fails until Reset.
func (r *Reassembler) Push(text string) error {
	if r.finished {
		return apperrors.Wrap(ErrInvalidState, apperrors.ErrReassemblyInvalidState)
	}
	r.fragments = append(r.fragments, Fragment{Text: text, Index: len(r.fragments)})
	r.size += len(text)
	return nil
}

// Finish joins the fragments in push order and validates the result.
// Later calls return the same Result until Reset.
func (r *Reassembler) Finish() Result {
	if r.finished {
		return r.result
	}
	r.finished = true

	if len(r.fragments) == 0 {
		r.result = Result{}
		return r.result
	}

	var b strings.Builder
	b.Grow(r.size)
	for _, f := range r.fragments {
		b.WriteString(f.Text)
	}
	text := b.String()

	r.result = Result{
		Text:          text,
		FragmentCount: len(r.fragments),
		IsValidJSON:   gjson.Valid(text),
	}
	return r.result
}

// Reset drops all fragments and returns to the collecting state.
func (r *Reassembler) Reset() {
	r.fragments = r.fragments[:0]
	r.size = 0
	r.finished = false
	r.result = Result{}
}

// Len returns the number of fragments pushed so far.
func (r *Reassembler) Len() int {
	return len(r.fragments)
}

// Finished reports whether Finish has been called since the last Reset.
func (r *Reassembler) Finished() bool {
	return r.finished
}

// Fragments returns a copy of the fragments in arrival order.
func (r *Reassembler) Fragments() []Fragment {
	out := make([]Fragment, len(r.fragments))
	copy(out, r.fragments)
	return out
}
