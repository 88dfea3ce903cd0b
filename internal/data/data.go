package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/chunkjson/internal/conf"
	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/redis"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

// Data holds the shared storage clients. Redis is nil when disabled.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	// Initialize database
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if config.Database.AutoMigrate {
		if err := models.MigrateWithLog(context.Background(), db, log); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// Initialize Redis (optional)
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.New(&config.Redis, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	} else {
		log.Info("redis disabled, export cache off")
	}

	d := &Data{
		DB:     db,
		Redis:  redisClient,
		Logger: log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}
	}

	return d, cleanup, nil
}
