package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func run(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	w := run(func(c *gin.Context) { Success(c, gin.H{"count": 3}) })
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.Success, resp.Code)
	assert.Equal(t, map[string]interface{}{"count": float64(3)}, resp.Data)

	w = run(func(c *gin.Context) { Created(c, nil) })
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"code":0,"data":{}}`, w.Body.String())
}

func TestDocumentAndText(t *testing.T) {
	w := run(func(c *gin.Context) { Document(c, `{"widgets":[]}`) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"widgets":[]}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = run(func(c *gin.Context) { Text(c, http.StatusUnprocessableEntity, `{"widg`) })
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, `{"widg`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"app error", apperrors.New(apperrors.ErrWidgetInvalidCount, "count must be positive"), http.StatusBadRequest, apperrors.ErrWidgetInvalidCount},
		{"wrapped", apperrors.Wrap(errors.New("dial tcp"), apperrors.ErrExportSourceUnavailable), http.StatusServiceUnavailable, apperrors.ErrExportSourceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := run(func(c *gin.Context) { HandleError(c, tt.err) })
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}

	w := run(func(c *gin.Context) { HandleError(c, nil) })
	assert.Empty(t, w.Body.String())
}

func TestErrorWithCode(t *testing.T) {
	w := run(func(c *gin.Context) { ErrorWithCode(c, apperrors.ErrNotFound, "/api/v1/nope") })
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.ErrNotFound, resp.Code)
	assert.Equal(t, "Resource not found: /api/v1/nope", resp.Message)
	assert.Equal(t, map[string]interface{}{}, resp.Data)
}
