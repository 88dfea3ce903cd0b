package biz

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/chunkjson/internal/pkg/chunkquery"
	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/metrics"
	"github.com/lk2023060901/chunkjson/internal/reassembly"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

// FragmentSource opens chunked queries. *chunkquery.Source implements it.
type FragmentSource interface {
	Open(ctx context.Context, spec chunkquery.Spec) (chunkquery.Cursor, error)
	Dialect() chunkquery.Dialect
}

// ExportConfig holds the export defaults.
type ExportConfig struct {
	FragmentLength int
	// TerminalPolicy is the default policy name, see reassembly.ParsePolicy.
	TerminalPolicy string
	// CacheTTL of zero disables caching.
	CacheTTL time.Duration
}

// DefaultExportConfig returns the defaults used when no config is loaded.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		FragmentLength: reassembly.DefaultFragmentLength,
		TerminalPolicy: "keep",
		CacheTTL:       5 * time.Minute,
	}
}

// ExportOptions selects how one export runs.
type ExportOptions struct {
	Chunked bool
	// FragmentLength overrides the configured length when positive.
	FragmentLength int
	// Terminal overrides the configured policy name when set.
	Terminal  string
	Decode    bool
	SkipCache bool
}

// ExportResult is one reassembled widgets document.
type ExportResult struct {
	ID      string                 `json:"id"`
	Dialect string                 `json:"dialect"`
	Spec    string                 `json:"spec"`
	Result  reassembly.Result      `json:"result"`
	Widgets *models.WidgetResponse `json:"widgets,omitempty"`
	Cached  bool                   `json:"cached"`
	Elapsed time.Duration          `json:"elapsed"`
}

// ExportUseCase exports the widgets table as one JSON document rebuilt from
// fragment rows.
type ExportUseCase struct {
	source  FragmentSource
	cache   DocumentCache
	metrics *metrics.ExportMetrics
	cfg     ExportConfig
	log     *logger.Logger
}

// NewExportUseCase creates an ExportUseCase; cache and m may be nil.
func NewExportUseCase(source FragmentSource, cache DocumentCache, m *metrics.ExportMetrics, cfg ExportConfig, log *logger.Logger) *ExportUseCase {
	if log == nil {
		log = logger.L()
	}
	def := DefaultExportConfig()
	if cfg.FragmentLength <= 0 {
		cfg.FragmentLength = def.FragmentLength
	}
	if cfg.TerminalPolicy == "" {
		cfg.TerminalPolicy = def.TerminalPolicy
	}
	return &ExportUseCase{source: source, cache: cache, metrics: m, cfg: cfg, log: log.Named("export")}
}

// WidgetSpec is the query behind a widgets export. A length of 0 asks for a
// single row.
func WidgetSpec(length int) chunkquery.Spec {
	return TableSpec(models.Table, length)
}

// TableSpec queries a table with the widgets schema. The document root stays
// "widgets" whatever the table is called.
func TableSpec(table string, length int) chunkquery.Spec {
	return chunkquery.Spec{
		Table:          table,
		Columns:        models.WidgetColumns,
		OrderBy:        "id",
		Root:           models.Table,
		FragmentLength: length,
	}
}

// Export runs the query, collects its rows and reports whether the
// reassembled text is valid JSON. An invalid document is a result, not an
// error.
func (uc *ExportUseCase) Export(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	start := time.Now()
	id := uuid.NewString()
	ctx = logger.WithExportID(ctx, id)
	log := uc.log.WithContext(ctx)

	if opts.FragmentLength < 0 || opts.FragmentLength > reassembly.MaxFragmentLength {
		return nil, apperrors.New(apperrors.ErrExportInvalidSpec,
			fmt.Sprintf("fragment length must be between 1 and %d", reassembly.MaxFragmentLength))
	}

	dialect := uc.source.Dialect().Name()
	length := 0
	if opts.Chunked {
		length = uc.cfg.FragmentLength
		if opts.FragmentLength > 0 {
			length = opts.FragmentLength
		}
	}
	spec := WidgetSpec(length)

	policyName := uc.cfg.TerminalPolicy
	if opts.Terminal != "" {
		policyName = opts.Terminal
	}
	policyName, err := reassembly.PolicyName(policyName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrExportInvalidSpec)
	}
	policy, err := reassembly.ParsePolicy(policyName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrExportInvalidSpec)
	}

	out := &ExportResult{ID: id, Dialect: dialect, Spec: spec.Key()}
	key := cacheKey(dialect, spec, policyName)
	useCache := uc.cache != nil && uc.cfg.CacheTTL > 0 && !opts.SkipCache

	if useCache {
		if res, ok := uc.cached(ctx, key); ok {
			out.Result = res
			out.Cached = true
			if err := uc.decode(out, opts); err != nil {
				return nil, err
			}
			out.Elapsed = time.Since(start)
			uc.observeDuration(dialect, "cached", start)
			log.Debug("export served from cache", zap.String("key", key))
			return out, nil
		}
	}

	res, err := uc.collect(ctx, spec, policy)
	if err != nil {
		uc.observeDuration(dialect, "error", start)
		log.Error("export failed", zap.String("spec", spec.Key()), zap.Error(err))
		return nil, err
	}
	out.Result = res
	if uc.metrics != nil {
		uc.metrics.ObserveDocument(dialect, res.FragmentCount, len(res.Text), res.IsValidJSON)
	}

	if err := uc.decode(out, opts); err != nil {
		uc.observeDuration(dialect, "error", start)
		return nil, err
	}

	if useCache && res.IsValidJSON {
		uc.store(ctx, key, res)
	}

	out.Elapsed = time.Since(start)
	uc.observeDuration(dialect, "ok", start)
	log.Info("export finished",
		zap.String("dialect", dialect),
		zap.Int("fragments", res.FragmentCount),
		zap.Int("bytes", len(res.Text)),
		zap.Bool("valid", res.IsValidJSON),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}

func (uc *ExportUseCase) collect(ctx context.Context, spec chunkquery.Spec, policy reassembly.TerminalPolicy) (reassembly.Result, error) {
	cursor, err := uc.source.Open(ctx, spec)
	if err != nil {
		return reassembly.Result{}, queryError(ctx, err)
	}
	defer cursor.Close()

	res, err := reassembly.Collect(ctx, cursor, policy)
	if err != nil {
		return reassembly.Result{}, queryError(ctx, err)
	}
	return res, nil
}

// queryError classifies a failure to read fragment rows. A cancelled
// context is returned as is.
func queryError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, chunkquery.ErrInvalidSpec):
		return apperrors.Wrap(err, apperrors.ErrExportInvalidSpec)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return apperrors.Wrap(err, apperrors.ErrExportSourceUnavailable)
	default:
		return apperrors.Wrap(err, apperrors.ErrExportQueryFailed)
	}
}

func (uc *ExportUseCase) decode(out *ExportResult, opts ExportOptions) error {
	if !opts.Decode || !out.Result.IsValidJSON {
		return nil
	}
	var widgets models.WidgetResponse
	if err := sonic.UnmarshalString(out.Result.Text, &widgets); err != nil {
		return apperrors.Wrap(err, apperrors.ErrExportDecodeFailed)
	}
	out.Widgets = &widgets
	return nil
}

func (uc *ExportUseCase) cached(ctx context.Context, key string) (reassembly.Result, bool) {
	payload, ok, err := uc.cache.Get(ctx, key)
	switch {
	case err != nil:
		uc.cacheResult("error")
		uc.log.WithContext(ctx).Warn("export cache read failed", zap.Error(err))
		return reassembly.Result{}, false
	case !ok:
		uc.cacheResult("miss")
		return reassembly.Result{}, false
	}

	var res reassembly.Result
	if err := sonic.UnmarshalString(payload, &res); err != nil {
		uc.cacheResult("error")
		uc.log.WithContext(ctx).Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return reassembly.Result{}, false
	}
	uc.cacheResult("hit")
	return res, true
}

func (uc *ExportUseCase) store(ctx context.Context, key string, res reassembly.Result) {
	payload, err := sonic.MarshalString(res)
	if err == nil {
		err = uc.cache.Set(ctx, key, payload, uc.cfg.CacheTTL)
	}
	if err != nil {
		uc.log.WithContext(ctx).Warn("export cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (uc *ExportUseCase) cacheResult(result string) {
	if uc.metrics != nil {
		uc.metrics.CacheResult(result)
	}
}

func (uc *ExportUseCase) observeDuration(dialect, status string, start time.Time) {
	if uc.metrics != nil {
		uc.metrics.ObserveDuration(dialect, status, start)
	}
}

func cacheKey(dialect string, spec chunkquery.Spec, policy string) string {
	return "export:" + dialect + ":" + spec.Key() + ":" + policy
}
