package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/chunkjson/internal/conf"
	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/metrics"
	"github.com/lk2023060901/chunkjson/internal/pkg/response"
	"github.com/lk2023060901/chunkjson/internal/widget/service"
)

const serviceName = "chunkjson"

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	widgetService *service.WidgetService,
	registry *prometheus.Registry,
	checks map[string]HealthCheck,
) *HTTPServer {
	gin.SetMode(config.Server.Mode)

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLoggerWithConfig(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health", config.Metrics.Path},
	}))

	if len(config.Server.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: config.Server.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", logger.RequestIDHeader},
			ExposeHeaders: []string{
				logger.RequestIDHeader,
				service.HeaderExportID,
				service.HeaderFragmentCount,
				service.HeaderValidJSON,
				service.HeaderCache,
			},
			MaxAge: 12 * time.Hour,
		}))
	}

	if config.Metrics.Enabled && registry != nil {
		hm := metrics.NewHTTPMetrics(registry, config.Metrics.Namespace, serviceName)
		router.Use(metrics.Middleware(serviceName, hm))
		router.GET(config.Metrics.Path, gin.WrapH(metrics.Handler(registry)))
	}

	// Health check
	router.GET("/health", healthHandler(checks))

	// API routes
	api := router.Group("/api/v1")
	widgetService.RegisterRoutes(api)

	router.NoRoute(func(c *gin.Context) {
		response.ErrorWithCode(c, apperrors.ErrNotFound, c.Request.URL.Path)
	})

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Server.Addr(),
			Handler:      router,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger: log,
	}
}

// Handler returns the router, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"time":         time.Now().Format(time.RFC3339),
			"dependencies": deps,
		})
	}
}
