package biz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/redis"
)

// MaxSeed bounds a single seed request.
const MaxSeed = 100000

const (
	seedLockKey = "lock:widgets"
	seedLockTTL = 2 * time.Minute
)

// WidgetRepo defines the storage operations on the widgets table
type WidgetRepo interface {
	// Table is the table the repo reads and writes.
	Table() string
	// Scoped returns a repo over another table with the same schema.
	Scoped(table string) WidgetRepo
	Migrate(ctx context.Context) error
	Drop(ctx context.Context) error
	// Seed inserts n widgets with random names in one transaction.
	Seed(ctx context.Context, n int) error
	Count(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) (int64, error)
}

// DocumentCache stores reassembled documents between exports
type DocumentCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// Locker serializes writers across service instances
type Locker interface {
	WithLock(ctx context.Context, key string, expiration time.Duration, fn func() error) error
}

// WidgetUseCase seeds and clears the widgets table. Any change drops
// cached exports.
type WidgetUseCase struct {
	repo   WidgetRepo
	cache  DocumentCache
	locker Locker
	log    *logger.Logger
}

// NewWidgetUseCase creates a WidgetUseCase; cache and locker may be nil.
func NewWidgetUseCase(repo WidgetRepo, cache DocumentCache, locker Locker, log *logger.Logger) *WidgetUseCase {
	if log == nil {
		log = logger.L()
	}
	return &WidgetUseCase{repo: repo, cache: cache, locker: locker, log: log.Named("widget")}
}

// Seed adds n widgets and returns the new row count.
func (uc *WidgetUseCase) Seed(ctx context.Context, n int) (int64, error) {
	if n <= 0 || n > MaxSeed {
		return 0, apperrors.New(apperrors.ErrWidgetInvalidCount, "count must be between 1 and 100000")
	}

	err := uc.locked(ctx, func() error {
		if err := uc.repo.Seed(ctx, n); err != nil {
			return apperrors.Wrap(err, apperrors.ErrWidgetSeedFailed)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	uc.invalidate(ctx)

	total, err := uc.repo.Count(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrWidgetStorageFailed)
	}

	uc.log.WithContext(ctx).Info("widgets seeded", zap.Int("added", n), zap.Int64("total", total))
	return total, nil
}

// Count returns the number of widgets.
func (uc *WidgetUseCase) Count(ctx context.Context) (int64, error) {
	n, err := uc.repo.Count(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrWidgetStorageFailed)
	}
	return n, nil
}

// Truncate removes every widget and returns how many were deleted.
func (uc *WidgetUseCase) Truncate(ctx context.Context) (int64, error) {
	var deleted int64
	err := uc.locked(ctx, func() error {
		n, err := uc.repo.Truncate(ctx)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrWidgetStorageFailed)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	uc.invalidate(ctx)

	uc.log.WithContext(ctx).Info("widgets truncated", zap.Int64("deleted", deleted))
	return deleted, nil
}

func (uc *WidgetUseCase) locked(ctx context.Context, fn func() error) error {
	if uc.locker == nil {
		return fn()
	}
	err := uc.locker.WithLock(ctx, seedLockKey, seedLockTTL, fn)
	if errors.Is(err, redis.ErrLockBusy) {
		return apperrors.Wrapf(err, apperrors.ErrConflict, "%s is held by another writer", seedLockKey)
	}
	return err
}

func (uc *WidgetUseCase) invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx); err != nil {
		uc.log.WithContext(ctx).Warn("export cache invalidation failed", zap.Error(err))
	}
}
