package audit

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/de-tools/storage-audit/pkg/services/prefix"
	"github.com/de-tools/storage-audit/pkg/services/pricing"
	"github.com/de-tools/storage-audit/pkg/services/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type TenantLister interface {
	ListByStatusIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error]
	ListByStatusNotIn(ctx context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error]
}

type Scanner interface {
	SumPrefixSize(ctx context.Context, bucket string, prefix *string) (domain.ScanResult, error)
}

type UsageSink interface {
	InsertUsageRow(ctx context.Context, row domain.UsageRow) error
}

type Settings struct {
	RunID      string
	Bucket     string
	BasePrefix string
	// StatusesFilter is written verbatim to every row; Statuses is its parsed form.
	StatusesFilter     string
	Statuses           []string
	IncludeNotInPass   bool
	ComputeBucketTotal bool
	PersistInSummary   bool
}

type Auditor struct {
	tenants  TenantLister
	scanner  Scanner
	sink     UsageSink
	settings Settings
	now      func() time.Time
}

func NewAuditor(tenants TenantLister, scanner Scanner, sink UsageSink, settings Settings) *Auditor {
	return &Auditor{
		tenants:  tenants,
		scanner:  scanner,
		sink:     sink,
		settings: settings,
		now:      time.Now,
	}
}

// Run executes the IN pass, then the optional NOT-IN and whole-bucket passes, one after another.
// The first failure aborts the run; rows written before it stay in place and no report is returned.
func (a *Auditor) Run(ctx context.Context) (*domain.RunReport, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("run_id", a.settings.RunID).
		Str("bucket", a.settings.Bucket).
		Logger()
	ctx = logger.WithContext(ctx)

	report := &domain.RunReport{
		RunID:          a.settings.RunID,
		Bucket:         a.settings.Bucket,
		BasePrefix:     a.settings.BasePrefix,
		StatusesFilter: a.settings.StatusesFilter,
		StartedAt:      a.now(),
	}

	logger.Info().Str("statuses", a.settings.StatusesFilter).Msg("audit started")

	in, err := a.tenantPass(ctx, domain.PassIn, a.tenants.ListByStatusIn(ctx, a.settings.Statuses), a.settings.PersistInSummary)
	if err != nil {
		return nil, err
	}
	report.Passes = append(report.Passes, in)

	if a.settings.IncludeNotInPass {
		notIn, err := a.tenantPass(ctx, domain.PassNotIn, a.tenants.ListByStatusNotIn(ctx, a.settings.Statuses), true)
		if err != nil {
			return nil, err
		}
		report.Passes = append(report.Passes, notIn)
	}

	if a.settings.ComputeBucketTotal {
		total, err := a.bucketPass(ctx)
		if err != nil {
			return nil, err
		}
		report.Passes = append(report.Passes, total)
	}

	report.TotalGB = decimal.Zero
	report.TotalCostUSD = decimal.Zero
	for _, p := range report.Passes {
		report.TotalGB = report.TotalGB.Add(p.GBTotal)
		report.TotalCostUSD = report.TotalCostUSD.Add(p.CostEstimatedUSD)
	}
	report.FinishedAt = a.now()

	return report, nil
}

// tally is the running fold state of a pass.
type tally struct {
	tenants  int
	objects  int64
	bytes    int64
	apiCalls int64
}

func (t tally) add(r domain.ScanResult) tally {
	return tally{
		tenants:  t.tenants + 1,
		objects:  t.objects + r.ObjectsCount,
		bytes:    t.bytes + r.BytesTotal,
		apiCalls: t.apiCalls + r.APICalls,
	}
}

func (t tally) summary(pass domain.Pass) domain.PassSummary {
	return domain.PassSummary{
		Pass:             pass,
		Tenants:          t.tenants,
		ObjectsCount:     t.objects,
		BytesTotal:       t.bytes,
		APICalls:         t.apiCalls,
		GBTotal:          pricing.BytesToDecimalGB(t.bytes),
		CostEstimatedUSD: pricing.EstimateCost(t.apiCalls),
	}
}

func (a *Auditor) tenantPass(ctx context.Context, pass domain.Pass, tenants iter.Seq2[domain.TenantRecord, error], persist bool) (domain.PassSummary, error) {
	logger := zerolog.Ctx(ctx).With().Str("pass", string(pass)).Logger()
	ctx = logger.WithContext(ctx)

	var acc tally
	for rec, err := range tenants {
		if err != nil {
			logger.Error().Err(err).Msg("tenant listing failed")
			return domain.PassSummary{}, fmt.Errorf("%s pass: %w", pass, err)
		}

		res, err := a.scanTenant(ctx, pass, rec)
		if err != nil {
			return domain.PassSummary{}, fmt.Errorf("%s pass: %w", pass, err)
		}
		acc = acc.add(res)
	}

	summary := acc.summary(pass)
	if persist {
		if err := a.writeSummary(ctx, summary); err != nil {
			return domain.PassSummary{}, err
		}
		summary.Persisted = true
	}

	logger.Info().
		Int("tenants", summary.Tenants).
		Int64("bytes_total", summary.BytesTotal).
		Str("gb_total", summary.GBTotal.String()).
		Str("cost_usd", summary.CostEstimatedUSD.String()).
		Bool("persisted", summary.Persisted).
		Msg("pass completed")

	return summary, nil
}

func (a *Auditor) scanTenant(ctx context.Context, pass domain.Pass, rec domain.TenantRecord) (domain.ScanResult, error) {
	logger := zerolog.Ctx(ctx)
	tenantPrefix := prefix.EncodeTenantPrefix(a.settings.BasePrefix, rec.ID)

	res, err := a.scanner.SumPrefixSize(ctx, a.settings.Bucket, &tenantPrefix)
	if err != nil {
		logger.Error().Err(err).
			Int64("tenant_id", rec.ID).
			Str("prefix", tenantPrefix).
			Msg("tenant scan failed")
		return domain.ScanResult{}, fmt.Errorf("tenant %d: %w", rec.ID, err)
	}

	id, status := rec.ID, rec.Status
	row := a.newRow(domain.ScopeClient, res.ObjectsCount, res.BytesTotal, res.APICalls)
	row.TenantID = &id
	row.Status = &status
	row.PrefixEncoded = &tenantPrefix
	row.ExtraNote = pass.ClientNote()

	if err := a.sink.InsertUsageRow(ctx, row); err != nil {
		logger.Error().Err(err).
			Int64("tenant_id", rec.ID).
			Str("prefix", tenantPrefix).
			Msg("failed to persist tenant usage")
		return domain.ScanResult{}, fmt.Errorf("tenant %d: %w", rec.ID, err)
	}

	logger.Debug().
		Int64("tenant_id", rec.ID).
		Str("prefix", tenantPrefix).
		Int64("objects", res.ObjectsCount).
		Int64("bytes", res.BytesTotal).
		Int64("api_calls", res.APICalls).
		Msg("tenant scanned")

	return res, nil
}

func (a *Auditor) bucketPass(ctx context.Context) (domain.PassSummary, error) {
	logger := zerolog.Ctx(ctx).With().Str("pass", string(domain.PassBucketTotal)).Logger()
	ctx = logger.WithContext(ctx)

	res, err := a.scanner.SumPrefixSize(ctx, a.settings.Bucket, nil)
	if err != nil {
		logger.Error().Err(err).Str("prefix", storage.BucketRoot).Msg("bucket scan failed")
		return domain.PassSummary{}, fmt.Errorf("%s pass: %w", domain.PassBucketTotal, err)
	}

	summary := tally{}.add(res).summary(domain.PassBucketTotal)
	summary.Tenants = 0
	if err := a.writeSummary(ctx, summary); err != nil {
		return domain.PassSummary{}, err
	}
	summary.Persisted = true

	logger.Info().
		Int64("bytes_total", summary.BytesTotal).
		Str("gb_total", summary.GBTotal.String()).
		Str("cost_usd", summary.CostEstimatedUSD.String()).
		Msg("pass completed")

	return summary, nil
}

func (a *Auditor) writeSummary(ctx context.Context, s domain.PassSummary) error {
	note := s.Pass.SummaryNote()
	row := a.newRow(domain.ScopeSummary, s.ObjectsCount, s.BytesTotal, s.APICalls)
	row.ExtraNote = &note

	if err := a.sink.InsertUsageRow(ctx, row); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("note", note).Msg("failed to persist summary")
		return fmt.Errorf("%s pass: %w", s.Pass, err)
	}
	return nil
}

func (a *Auditor) newRow(scope domain.Scope, objects, bytes, apiCalls int64) domain.UsageRow {
	return domain.UsageRow{
		RunID:            a.settings.RunID,
		ComputedAt:       a.now().UTC(),
		Scope:            scope,
		Bucket:           a.settings.Bucket,
		BasePrefix:       a.settings.BasePrefix,
		ObjectsCount:     objects,
		BytesTotal:       bytes,
		GBTotal:          pricing.BytesToDecimalGB(bytes),
		APICalls:         apiCalls,
		CostEstimatedUSD: pricing.EstimateCost(apiCalls),
		StatusesFilter:   a.settings.StatusesFilter,
	}
}
