package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "default config", config: DefaultConfig()},
		{name: "nil config", config: nil},
		{name: "stderr console", config: &Config{Level: "info", Format: "console", Output: "stderr"}},
		{
			name: "file output",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "file",
				File:   FileConfig{Filename: filepath.Join(dir, "a.log"), MaxSize: 10, MaxAge: 7, MaxBackups: 3},
			},
		},
		{name: "bad level", config: &Config{Level: "loud", Format: "json", Output: "console"}, wantErr: true},
		{name: "bad format", config: &Config{Level: "info", Format: "xml", Output: "console"}, wantErr: true},
		{name: "bad output", config: &Config{Level: "info", Format: "json", Output: "syslog"}, wantErr: true},
		{name: "file without name", config: &Config{Level: "info", Format: "json", Output: "both"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.Config())
		})
	}
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithExportID(ctx, "exp-1")

	l.WithContext(ctx).Info("exported")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "exp-1", fields["export_id"])

	assert.Same(t, l, l.WithContext(context.Background()))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	defer SetGlobal(prev)

	core, logs := observer.New(zapcore.InfoLevel)
	SetGlobal(Wrap(zap.New(core)))
	Info("global")
	L().Debug("dropped")
	assert.Equal(t, 1, logs.Len())
}

func TestOptions(t *testing.T) {
	l, err := CLI("warn")
	require.NoError(t, err)
	assert.Equal(t, "stderr", l.Config().Output)
	assert.Equal(t, "console", l.Config().Format)

	assert.False(t, l.Config().EnableStacktrace)
}

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core))

	r := gin.New()
	r.Use(GinLoggerWithConfig(l, MiddlewareOptions{SkipPaths: []string{"/health"}}), GinRecovery(l))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) {
		assert.Equal(t, "abc", GetRequestID(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, 0, logs.Len())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, logs.FilterMessage("HTTP Request").Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}
