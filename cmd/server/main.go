package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/chunkjson/internal/conf"
	"github.com/lk2023060901/chunkjson/internal/data"
	"github.com/lk2023060901/chunkjson/internal/pkg/chunkquery"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/metrics"
	"github.com/lk2023060901/chunkjson/internal/server"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
	widgetdata "github.com/lk2023060901/chunkjson/internal/widget/data"
	"github.com/lk2023060901/chunkjson/internal/widget/service"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "config file path")
	envFile    = flag.String("env-file", ".env", "dotenv file loaded before the config")
)

func main() {
	flag.Parse()

	if err := conf.LoadDotEnv(*envFile); err != nil {
		panic(err.Error())
	}

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	logger.SetGlobal(log)
	defer logger.Sync()

	logger.Info("config loaded successfully", zap.String("path", *configFile))

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		logger.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	source, err := chunkquery.SourceFor(d.DB)
	if err != nil {
		log.Fatal("no chunked query dialect for driver", zap.String("driver", d.DB.Driver()), zap.Error(err))
	}

	registry := metrics.DefaultRegistry()
	var exportMetrics *metrics.ExportMetrics
	if config.Metrics.Enabled {
		exportMetrics = metrics.NewExportMetrics(registry, config.Metrics.Namespace)
	}

	// Repositories and optional redis-backed collaborators
	widgetRepo := widgetdata.NewWidgetRepo(d.DB)
	var (
		cache  biz.DocumentCache
		locker biz.Locker
	)
	checks := map[string]server.HealthCheck{"database": d.DB.HealthCheck}
	if d.Redis != nil {
		cache = widgetdata.NewRedisCache(d.Redis)
		locker = d.Redis
		checks["redis"] = d.Redis.Ping
	}

	// Use cases
	widgetUseCase := biz.NewWidgetUseCase(widgetRepo, cache, locker, log)
	exportUseCase := biz.NewExportUseCase(source, cache, exportMetrics, biz.ExportConfig{
		FragmentLength: config.Export.FragmentLength,
		TerminalPolicy: config.Export.TerminalPolicy,
		CacheTTL:       config.Export.CacheTTL,
	}, log)

	widgetService := service.NewWidgetService(widgetUseCase, exportUseCase, log)
	httpServer := server.NewHTTPServer(config, log, widgetService, registry, checks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	log.Info("server started successfully",
		zap.String("addr", config.Server.Addr()),
		zap.String("dialect", source.Dialect().Name()),
	)

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("server exited")
}
