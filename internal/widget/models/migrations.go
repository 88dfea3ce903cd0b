package models

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
)

// AutoMigrate 自动迁移 widget 相关表
func AutoMigrate(ctx context.Context, db *database.DB) error {
	for _, model := range []interface{}{&Widget{}, &ProbeRun{}} {
		if err := db.DB.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// MigrateWidgetTable 以 Widget 结构创建指定名称的表（探针使用独立的临时表）
func MigrateWidgetTable(ctx context.Context, db *database.DB, table string) error {
	if err := db.DB.WithContext(ctx).Table(table).AutoMigrate(&Widget{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", table, err)
	}
	return nil
}

// DropWidgetTable 删除指定的 widget 表，probe_runs 历史保留（危险操作）
func DropWidgetTable(ctx context.Context, db *database.DB, table string) error {
	if err := db.DB.WithContext(ctx).Migrator().DropTable(table); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	return nil
}

// MigrateWithLog 带日志的迁移
func MigrateWithLog(ctx context.Context, db *database.DB, log *logger.Logger) error {
	log.Info("starting widget migrations", zap.String("driver", db.Driver()))

	if err := AutoMigrate(ctx, db); err != nil {
		log.Error("widget migrations failed", zap.Error(err))
		return err
	}

	log.Info("widget migrations completed")
	return nil
}
