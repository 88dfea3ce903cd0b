package reassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryParseJSON(t *testing.T) {
	doc, err := TryParseJSON(`{"widgets":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Count("widgets"))
	assert.Equal(t, "b", doc.Get("widgets.1.name").String())
	assert.Equal(t, -1, doc.Count("widgets.0.name"))
	assert.True(t, doc.Get("").IsObject())

	for _, bad := range []string{"", `{"widgets":[`, `]}`, `{"a":1}{"b":2}`} {
		_, err := TryParseJSON(bad)
		assert.ErrorIs(t, err, ErrMalformedJSON, bad)
	}
}
