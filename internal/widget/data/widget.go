package data

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

const seedBatchSize = 500

// WidgetRepo implements biz.WidgetRepo interface
type WidgetRepo struct {
	db    *database.DB
	table string
}

// NewWidgetRepo creates a new WidgetRepo on the widgets table
func NewWidgetRepo(db *database.DB) biz.WidgetRepo {
	return &WidgetRepo{db: db, table: models.Table}
}

func (r *WidgetRepo) Table() string {
	return r.table
}

// Scoped returns a repo over another table with the widgets schema.
func (r *WidgetRepo) Scoped(table string) biz.WidgetRepo {
	return &WidgetRepo{db: r.db, table: table}
}

func (r *WidgetRepo) Migrate(ctx context.Context) error {
	if r.table == models.Table {
		return models.AutoMigrate(ctx, r.db)
	}
	return models.MigrateWidgetTable(ctx, r.db, r.table)
}

func (r *WidgetRepo) Drop(ctx context.Context) error {
	return models.DropWidgetTable(ctx, r.db, r.table)
}

// Seed inserts n widgets named with random UUIDs.
func (r *WidgetRepo) Seed(ctx context.Context, n int) error {
	widgets := make([]models.Widget, n)
	for i := range widgets {
		widgets[i].Name = uuid.NewString()
	}
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return database.BatchInsert(ctx, tx.Table(r.table), &widgets, seedBatchSize)
	})
}

func (r *WidgetRepo) Count(ctx context.Context) (int64, error) {
	return database.Count(ctx, r.db.GetDBFromContext(ctx).Table(r.table), &models.Widget{}, nil)
}

func (r *WidgetRepo) Truncate(ctx context.Context) (int64, error) {
	return database.DeleteAll(ctx, r.db.GetDBFromContext(ctx).Table(r.table), &models.Widget{})
}
