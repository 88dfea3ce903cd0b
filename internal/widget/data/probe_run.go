package data

import (
	"context"

	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

// ProbeRunRepo implements biz.ProbeRunRepo interface
type ProbeRunRepo struct {
	db *database.DB
}

// NewProbeRunRepo creates a new ProbeRunRepo
func NewProbeRunRepo(db *database.DB) biz.ProbeRunRepo {
	return &ProbeRunRepo{db: db}
}

func (r *ProbeRunRepo) Save(ctx context.Context, run *models.ProbeRun) error {
	return r.db.GetDBFromContext(ctx).Create(run).Error
}

func (r *ProbeRunRepo) Recent(ctx context.Context, limit int) ([]models.ProbeRun, error) {
	var runs []models.ProbeRun
	err := r.db.GetDBFromContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
