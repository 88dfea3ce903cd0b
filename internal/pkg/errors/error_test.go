package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrExportQueryFailed, "table widgets")
	assert.Equal(t, ErrExportQueryFailed, err.Code)
	assert.Equal(t, "Chunked query failed", err.Message)
	assert.Equal(t, "[6100] Chunked query failed: table widgets", err.Error())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestWrap(t *testing.T) {
	sentinel := stderrors.New("boom")

	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrInternalServer))
	})

	t.Run("plain error keeps chain", func(t *testing.T) {
		err := Wrap(sentinel, ErrExportSourceUnavailable)
		require.NotNil(t, err)
		assert.True(t, stderrors.Is(err, sentinel))
		assert.True(t, Is(err, ErrExportSourceUnavailable))
		assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatus(ExtractCode(err)))
	})

	t.Run("app error is not mutated", func(t *testing.T) {
		base := New(ErrWidgetSeedFailed)
		wrapped := Wrap(base, ErrInternalServer, "tx aborted")
		assert.Equal(t, ErrWidgetSeedFailed, wrapped.Code)
		assert.Equal(t, "tx aborted", wrapped.Details)
		assert.Empty(t, base.Details)
	})
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrReassemblyInvalidState), ErrReassemblyInvalidState},
		{"plain error", stderrors.New("x"), ErrInternalServer},
		{"wrapped app error", Wrapf(New(ErrNotFound), ErrInternalServer, "id=%d", 3), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.err))
		})
	}
}

func TestGetDetails(t *testing.T) {
	assert.Equal(t, "", GetDetails(nil))
	assert.Equal(t, "inner", GetDetails(Wrap(stderrors.New("inner"), ErrInternalServer)))
	assert.Equal(t, "field: n", GetDetails(New(ErrInvalidParams, "field: n")))
}

func TestCodeClassification(t *testing.T) {
	assert.True(t, IsClientError(ErrExportInvalidSpec))
	assert.True(t, IsClientError(ErrConflict))
	assert.True(t, IsClientError(ErrExportDecodeFailed))
	assert.True(t, IsServerError(ErrExportQueryFailed))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(424242))
	assert.Equal(t, "Reassembler already finished: twice", FormatError(ErrReassemblyInvalidState, "twice"))
}
