package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chunkjson/internal/pkg/chunkquery"
	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/response"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
	"github.com/lk2023060901/chunkjson/internal/widget/data"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory(logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := data.NewWidgetRepo(db)
	require.NoError(t, repo.Migrate(context.Background()))
	src, err := chunkquery.SourceFor(db)
	require.NoError(t, err)

	cfg := biz.DefaultExportConfig()
	cfg.CacheTTL = 0
	svc := NewWidgetService(
		biz.NewWidgetUseCase(repo, nil, nil, logger.Nop()),
		biz.NewExportUseCase(src, nil, nil, cfg, logger.Nop()),
		logger.Nop(),
	)

	r := gin.New()
	svc.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestSeedAndExport(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/v1/widgets/seed", `{"count":300}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"code":0,"data":{"added":300,"total":300}}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/widgets/export?chunked=true&length=500", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "true", w.Header().Get(HeaderValidJSON))
	assert.Equal(t, "miss", w.Header().Get(HeaderCache))
	assert.NotEmpty(t, w.Header().Get(HeaderExportID))

	var doc struct {
		Widgets []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"widgets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Widgets, 300)
	fragments := w.Header().Get(HeaderFragmentCount)
	assert.NotEqual(t, "1", fragments)

	w = do(r, http.MethodGet, "/api/v1/widgets/export?chunked=true&length=500&terminal=drop", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "false", w.Header().Get(HeaderValidJSON))
	assert.True(t, strings.HasPrefix(w.Body.String(), `{"widgets":[`))

	w = do(r, http.MethodGet, "/api/v1/widgets/export?format=report", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Code int `json:"code"`
		Data struct {
			Dialect string `json:"dialect"`
			Result  struct {
				FragmentCount int  `json:"fragment_count"`
				IsValidJSON   bool `json:"is_valid_json"`
			} `json:"result"`
			Widgets struct {
				Widgets []json.RawMessage `json:"widgets"`
			} `json:"widgets"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sqlite", resp.Data.Dialect)
	assert.Equal(t, 1, resp.Data.Result.FragmentCount)
	assert.True(t, resp.Data.Result.IsValidJSON)
	assert.Len(t, resp.Data.Widgets.Widgets, 300)

	w = do(r, http.MethodDelete, "/api/v1/widgets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"data":{"deleted":300}}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/widgets/count", "")
	assert.JSONEq(t, `{"code":0,"data":{"count":0}}`, w.Body.String())
}

func TestBadRequests(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
	}{
		{"seed zero", http.MethodPost, "/api/v1/widgets/seed", `{"count":0}`, apperrors.ErrInvalidParams},
		{"seed too many", http.MethodPost, "/api/v1/widgets/seed", `{"count":100001}`, apperrors.ErrInvalidParams},
		{"seed malformed", http.MethodPost, "/api/v1/widgets/seed", `{"count":`, apperrors.ErrInvalidParams},
		{"bad chunked", http.MethodGet, "/api/v1/widgets/export?chunked=maybe", "", apperrors.ErrInvalidParams},
		{"bad length", http.MethodGet, "/api/v1/widgets/export?length=x", "", apperrors.ErrInvalidParams},
		{"zero length", http.MethodGet, "/api/v1/widgets/export?chunked=true&length=0", "", apperrors.ErrInvalidParams},
		{"negative length", http.MethodGet, "/api/v1/widgets/export?chunked=true&length=-5", "", apperrors.ErrInvalidParams},
		{"oversized length", http.MethodGet, "/api/v1/widgets/export?chunked=true&length=1048577", "", apperrors.ErrInvalidParams},
		{"bad policy", http.MethodGet, "/api/v1/widgets/export?terminal=sometimes", "", apperrors.ErrExportInvalidSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}
