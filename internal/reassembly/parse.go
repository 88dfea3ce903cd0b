package reassembly

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMalformedJSON is returned by TryParseJSON for text that is not a single
// well-formed JSON value.
var ErrMalformedJSON = errors.New("reassembly: malformed json")

// Document is a parsed, read-only view over valid JSON text.
type Document struct {
	raw  string
	root gjson.Result
}

// TryParseJSON parses text. A failure is a normal outcome for a partial
// fragment and is reported as ErrMalformedJSON.
func TryParseJSON(text string) (Document, error) {
	if !gjson.Valid(text) {
		return Document{}, ErrMalformedJSON
	}
	return Document{raw: text, root: gjson.Parse(text)}, nil
}

// Raw returns the source text.
func (d Document) Raw() string {
	return d.raw
}

// Get looks up a gjson path.
func (d Document) Get(path string) gjson.Result {
	if path == "" {
		return d.root
	}
	return d.root.Get(path)
}

// Count returns the length of the array at path, or -1 if path is not an array.
func (d Document) Count(path string) int {
	v := d.Get(path)
	if !v.IsArray() {
		return -1
	}
	n := 0
	v.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}
