package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/geometry"
	"github.com/couchcryptid/climate-data-etl/internal/grid"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// GridSource opens one year's grid field.
type GridSource interface {
	OpenYear(year int) (*grid.Field, error)
}

// Aggregator reduces a field to per-country annual means plus the countries
// with no direct grid coverage.
type Aggregator interface {
	AnnualMeans(field *grid.Field, regions *geometry.RegionSet) ([]domain.AggregateRecord, []string, error)
}

// FallbackResolver estimates values for uncovered countries from the nearest
// grid cell.
type FallbackResolver interface {
	Resolve(field *grid.Field, regions *geometry.RegionSet, missing []string) ([]domain.AggregateRecord, []domain.FallbackAuditEntry, error)
}

// PartitionWriter persists one year's records.
type PartitionWriter interface {
	WriteYear(year int, records []domain.AggregateRecord) error
}

// AuditSink records fallback resolution outcomes. Reset is called once at the
// start of a run so the audit file covers exactly one run.
type AuditSink interface {
	Append(entries []domain.FallbackAuditEntry) error
	Reset() error
}

// Publisher emits finished records to a downstream stream. Optional.
type Publisher interface {
	Publish(ctx context.Context, records []domain.AggregateRecord) error
}

// Pipeline orchestrates the per-year aggregation run: mask, fall back, merge,
// persist, audit. Years are processed independently; one bad year is logged
// and skipped so the rest of the range still lands.
type Pipeline struct {
	source     GridSource
	regions    *geometry.RegionSet
	aggregator Aggregator
	resolver   FallbackResolver
	writer     PartitionWriter
	audit      AuditSink
	publisher  Publisher
	years      []int
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	ready      atomic.Bool

	yearsDone   atomic.Int64
	yearsFailed atomic.Int64
}

// Progress reports how far the run has gotten.
type Progress struct {
	YearsDone   int `json:"years_done"`
	YearsFailed int `json:"years_failed"`
	YearsTotal  int `json:"years_total"`
}

// New creates a Pipeline. publisher may be nil when streaming is disabled.
func New(
	source GridSource,
	regions *geometry.RegionSet,
	aggregator Aggregator,
	resolver FallbackResolver,
	writer PartitionWriter,
	audit AuditSink,
	publisher Publisher,
	years []int,
	logger *slog.Logger,
	metrics *observability.Metrics,
	clock clockwork.Clock,
) *Pipeline {
	return &Pipeline{
		source:     source,
		regions:    regions,
		aggregator: aggregator,
		resolver:   resolver,
		writer:     writer,
		audit:      audit,
		publisher:  publisher,
		years:      years,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
	}
}

// Status returns the current run progress.
func (p *Pipeline) Status() Progress {
	return Progress{
		YearsDone:   int(p.yearsDone.Load()),
		YearsFailed: int(p.yearsFailed.Load()),
		YearsTotal:  len(p.years),
	}
}

// CheckReadiness returns nil once at least one year has been fully persisted.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no year partition persisted yet")
	}
	return nil
}

// Run processes every configured year and returns an error only when no year
// succeeded.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.clock.Now()
	p.logger.Info("aggregation run started",
		"years", len(p.years), "countries", p.regions.Len())
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if err := p.audit.Reset(); err != nil {
		return fmt.Errorf("resetting audit log: %w", err)
	}

	var failed []int
	for _, year := range p.years {
		if ctx.Err() != nil {
			p.logger.Info("aggregation run stopping", "reason", ctx.Err())
			return ctx.Err()
		}
		if err := p.processYear(ctx, year); err != nil {
			p.logger.Error("year failed", "year", year, "error", err)
			p.yearsFailed.Add(1)
			failed = append(failed, year)
			continue
		}
		p.metrics.YearsProcessed.Inc()
		p.yearsDone.Add(1)
		p.ready.Store(true)
	}

	p.logger.Info("aggregation run finished",
		"duration", p.clock.Since(start).String(),
		"years_ok", len(p.years)-len(failed),
		"years_failed", len(failed))
	if len(failed) == len(p.years) {
		return fmt.Errorf("all %d years failed", len(p.years))
	}
	return nil
}

func (p *Pipeline) processYear(ctx context.Context, year int) error {
	field, err := p.source.OpenYear(year)
	if err != nil {
		return fmt.Errorf("opening grid: %w", err)
	}

	maskStart := p.clock.Now()
	direct, missing, err := p.aggregator.AnnualMeans(field, p.regions)
	if err != nil {
		return fmt.Errorf("masking: %w", err)
	}
	p.metrics.MaskingDuration.Observe(p.clock.Since(maskStart).Seconds())
	p.metrics.CountriesDirect.Add(float64(len(direct)))

	fallback, audits, err := p.resolver.Resolve(field, p.regions, missing)
	if err != nil {
		return fmt.Errorf("fallback resolution: %w", err)
	}
	p.countFallbackOutcomes(fallback, audits)

	merged := domain.Merge(direct, fallback)
	byYear := groupByYear(merged)

	writeStart := p.clock.Now()
	for _, y := range sortedYears(byYear) {
		if err := p.writer.WriteYear(y, byYear[y]); err != nil {
			return fmt.Errorf("writing partition %d: %w", y, err)
		}
		p.metrics.PartitionsWritten.Inc()
	}
	p.metrics.PartitionWriteDuration.Observe(p.clock.Since(writeStart).Seconds())

	if err := p.audit.Append(audits); err != nil {
		return fmt.Errorf("appending audit: %w", err)
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, merged); err != nil {
			// Partitions are already durable; a streaming failure is not
			// worth failing the year over.
			p.logger.Warn("publishing records failed", "year", year, "error", err)
		}
	}

	p.logger.Info("year aggregated",
		"year", year,
		"direct", len(direct),
		"fallback", len(fallback),
		"unresolved", distinct(missing)-countResolved(fallback))
	return nil
}

func distinct(names []string) int {
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	return len(seen)
}

func (p *Pipeline) countFallbackOutcomes(records []domain.AggregateRecord, audits []domain.FallbackAuditEntry) {
	p.metrics.FallbackUsed.Add(float64(len(records)))
	seen := map[string]bool{}
	for _, a := range audits {
		if a.Status == domain.StatusFallbackUsed || seen[a.Country] {
			continue
		}
		seen[a.Country] = true
		reason := "over_cap"
		switch a.Status {
		case domain.StatusNoGeometry:
			reason = "no_geometry"
		case domain.StatusNoData:
			reason = "no_data"
		}
		p.metrics.FallbackExhausted.WithLabelValues(reason).Inc()
	}
}

func countResolved(fallback []domain.AggregateRecord) int {
	seen := map[string]bool{}
	for _, r := range fallback {
		seen[r.Country] = true
	}
	return len(seen)
}

func groupByYear(records []domain.AggregateRecord) map[int][]domain.AggregateRecord {
	byYear := map[int][]domain.AggregateRecord{}
	for _, r := range records {
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	return byYear
}

func sortedYears(byYear map[int][]domain.AggregateRecord) []int {
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
