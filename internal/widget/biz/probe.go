package biz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/reassembly"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

// ProbeConfig sizes the probe scenarios.
type ProbeConfig struct {
	// ChunkedWidgets should produce a document well over FragmentLength.
	ChunkedWidgets  int
	SingularWidgets int
	FragmentLength  int
}

// DefaultProbeConfig yields 33 full fragments and a short last one on
// SQLite, where the document carries no whitespace.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		ChunkedWidgets:  1200,
		SingularWidgets: 5000,
		FragmentLength:  reassembly.DefaultFragmentLength,
	}
}

// Check is one named assertion of a scenario.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ScenarioReport is the outcome of one scenario.
type ScenarioReport struct {
	Name      string        `json:"name"`
	Widgets   int           `json:"widgets"`
	Fragments int           `json:"fragments"`
	Bytes     int           `json:"bytes"`
	Checks    []Check       `json:"checks"`
	Passed    bool          `json:"passed"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (s *ScenarioReport) check(name string, ok bool, format string, args ...interface{}) {
	c := Check{Name: name, Passed: ok}
	if !ok && format != "" {
		c.Detail = fmt.Sprintf(format, args...)
	}
	s.Checks = append(s.Checks, c)
}

func (s *ScenarioReport) finish() {
	s.Passed = s.Error == "" && len(s.Checks) > 0
	for _, c := range s.Checks {
		s.Passed = s.Passed && c.Passed
	}
}

// ProbeReport is the outcome of a probe run.
type ProbeReport struct {
	ID        string           `json:"id"`
	Dialect   string           `json:"dialect"`
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    bool             `json:"passed"`
}

// ProbeRunRepo persists probe reports
type ProbeRunRepo interface {
	Save(ctx context.Context, run *models.ProbeRun) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]models.ProbeRun, error)
}

// Probe seeds a scratch copy of the widgets table, reads it back through a
// chunked query and checks the reassembly behavior end to end. Each run
// works on its own table and drops it after every scenario; the service's
// widgets are never touched.
type Probe struct {
	repo   WidgetRepo
	source FragmentSource
	cfg    ProbeConfig
	runs   ProbeRunRepo
	log    *logger.Logger
}

// NewProbe creates a Probe.
func NewProbe(repo WidgetRepo, source FragmentSource, cfg ProbeConfig, log *logger.Logger) *Probe {
	if log == nil {
		log = logger.L()
	}
	def := DefaultProbeConfig()
	if cfg.ChunkedWidgets <= 0 {
		cfg.ChunkedWidgets = def.ChunkedWidgets
	}
	if cfg.SingularWidgets <= 0 {
		cfg.SingularWidgets = def.SingularWidgets
	}
	if cfg.FragmentLength <= 0 {
		cfg.FragmentLength = def.FragmentLength
	}
	return &Probe{repo: repo, source: source, cfg: cfg, log: log.Named("probe")}
}

// WithHistory stores every report of Run in runs.
func (p *Probe) WithHistory(runs ProbeRunRepo) *Probe {
	p.runs = runs
	return p
}

// ScratchTable names the table a run seeds.
func ScratchTable(runID string) string {
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return "probe_widgets_" + id
}

// Run executes the chunked and the singular scenario. Failed checks are
// reported, not returned; the error is reserved for a cancelled context.
func (p *Probe) Run(ctx context.Context) (*ProbeReport, error) {
	report := &ProbeReport{ID: uuid.NewString(), Dialect: p.source.Dialect().Name()}
	ctx = logger.WithExportID(ctx, report.ID)
	repo := p.repo.Scoped(ScratchTable(report.ID))

	scenarios := []struct {
		name string
		n    int
		run  func(context.Context, *ScenarioReport, []string)
	}{
		{"chunked", p.cfg.ChunkedWidgets, p.checkChunked},
		{"singular", p.cfg.SingularWidgets, p.checkSingular},
	}

	report.Passed = true
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s := p.scenario(ctx, repo, sc.name, sc.n, sc.run)
		report.Scenarios = append(report.Scenarios, s)
		report.Passed = report.Passed && s.Passed
	}

	p.log.WithContext(ctx).Info("probe finished",
		zap.String("dialect", report.Dialect),
		zap.String("table", repo.Table()),
		zap.Bool("passed", report.Passed),
	)
	if err := p.record(ctx, report); err != nil {
		p.log.WithContext(ctx).Warn("failed to store probe report", zap.Error(err))
	}
	return report, nil
}

func (p *Probe) record(ctx context.Context, report *ProbeReport) error {
	if p.runs == nil {
		return nil
	}
	body, err := sonic.Marshal(report)
	if err != nil {
		return err
	}
	return p.runs.Save(ctx, &models.ProbeRun{
		ID:      report.ID,
		Dialect: report.Dialect,
		Passed:  report.Passed,
		Report:  body,
	})
}

func (p *Probe) scenario(ctx context.Context, repo WidgetRepo, name string, n int, run func(context.Context, *ScenarioReport, []string)) ScenarioReport {
	start := time.Now()
	s := ScenarioReport{Name: name, Widgets: n}
	log := p.log.WithContext(ctx).With(zap.String("scenario", name))

	defer func() {
		if err := repo.Drop(context.WithoutCancel(ctx)); err != nil {
			log.Warn("teardown failed", zap.Error(err))
		}
	}()

	fragments, err := p.load(ctx, repo, name, n)
	if err != nil {
		s.Error = err.Error()
		s.finish()
		s.Elapsed = time.Since(start)
		log.Error("scenario aborted", zap.Error(err))
		return s
	}

	s.Fragments = len(fragments)
	for _, f := range fragments {
		s.Bytes += len(f)
	}
	run(ctx, &s, fragments)
	s.finish()
	s.Elapsed = time.Since(start)

	log.Info("scenario finished",
		zap.Int("fragments", s.Fragments),
		zap.Bool("passed", s.Passed),
		zap.Duration("elapsed", s.Elapsed),
	)
	return s
}

// load recreates the scratch table with n widgets and returns the query rows.
func (p *Probe) load(ctx context.Context, repo WidgetRepo, name string, n int) ([]string, error) {
	if err := repo.Drop(ctx); err != nil {
		return nil, fmt.Errorf("drop: %w", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := repo.Seed(ctx, n); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	length := 0
	if name == "chunked" {
		length = p.cfg.FragmentLength
	}
	cursor, err := p.source.Open(ctx, TableSpec(repo.Table(), length))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer cursor.Close()

	var fragments []string
	for cursor.Next() {
		fragments = append(fragments, cursor.Text())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return fragments, nil
}

func (p *Probe) checkChunked(_ context.Context, s *ScenarioReport, fragments []string) {
	count := len(fragments)
	s.check("multiple_fragments", count > 1, "got %d fragments", count)
	if count < 2 {
		return
	}

	l := p.cfg.FragmentLength
	full := true
	for i, f := range fragments[:count-1] {
		if n := utf8.RuneCountInString(f); n != l {
			s.check("full_fragments", false, "fragment %d has %d characters, want %d", i, n, l)
			full = false
			break
		}
	}
	if full {
		s.check("full_fragments", true, "")
	}
	last := utf8.RuneCountInString(fragments[count-1])
	s.check("last_fragment_bounded", last >= 1 && last <= l, "last fragment has %d characters", last)

	first := reassemble(fragments[:1])
	s.check("first_fragment_invalid", !first.IsValidJSON, "first fragment alone parsed as JSON")

	partial := reassemble(fragments[:count-1])
	s.check("without_last_invalid", !partial.IsValidJSON, "%d of %d fragments parsed as JSON", count-1, count)

	all := reassemble(fragments)
	s.check("all_valid", all.IsValidJSON, "concatenation of %d fragments is not JSON", count)
	if all.IsValidJSON {
		doc, err := all.Document()
		got := -1
		if err == nil {
			got = doc.Count(models.Table)
		}
		s.check("widget_count", got == s.Widgets, "document holds %d widgets, want %d", got, s.Widgets)
	}

	reversed := slices.Clone(fragments)
	slices.Reverse(reversed)
	s.check("reversed_invalid", !reassemble(reversed).IsValidJSON, "reversed fragments parsed as JSON")
}

func (p *Probe) checkSingular(_ context.Context, s *ScenarioReport, fragments []string) {
	s.check("single_fragment", len(fragments) == 1, "got %d fragments", len(fragments))
	if len(fragments) == 0 {
		return
	}

	res := reassemble(fragments)
	s.check("valid", res.IsValidJSON, "document is not JSON")
	if !res.IsValidJSON {
		return
	}

	var widgets models.WidgetResponse
	err := sonic.UnmarshalString(res.Text, &widgets)
	s.check("decodes", err == nil, "%v", err)
	s.check("widget_count", len(widgets.Widgets) == s.Widgets, "decoded %d widgets, want %d", len(widgets.Widgets), s.Widgets)
}

func reassemble(fragments []string) reassembly.Result {
	r := reassembly.New(reassembly.WithExpectedFragments(len(fragments)))
	for _, f := range fragments {
		// Push only fails after Finish.
		_ = r.Push(f)
	}
	return r.Finish()
}
