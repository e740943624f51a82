package audit

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/de-tools/storage-audit/pkg/services/prefix"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenants struct {
	records []domain.TenantRecord
	err     error
}

func (f *fakeTenants) ListByStatusIn(_ context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error] {
	return f.list(statuses, false)
}

func (f *fakeTenants) ListByStatusNotIn(_ context.Context, statuses []string) iter.Seq2[domain.TenantRecord, error] {
	return f.list(statuses, true)
}

func (f *fakeTenants) list(statuses []string, negate bool) iter.Seq2[domain.TenantRecord, error] {
	return func(yield func(domain.TenantRecord, error) bool) {
		if f.err != nil {
			yield(domain.TenantRecord{}, f.err)
			return
		}
		for _, rec := range f.records {
			if slices.Contains(statuses, rec.Status) == negate {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

type fakeScanner struct {
	results map[string]domain.ScanResult
	failOn  string
	calls   []*string
}

func (f *fakeScanner) SumPrefixSize(_ context.Context, bucket string, p *string) (domain.ScanResult, error) {
	f.calls = append(f.calls, p)
	key := ""
	if p != nil {
		key = *p
	}
	if f.failOn != "" && key == f.failOn {
		return domain.ScanResult{}, &domain.StorageProviderError{
			Op: "ListObjectsV2", Bucket: bucket, Prefix: key, Code: "AccessDenied",
			Err: errors.New("access denied"),
		}
	}
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return domain.ScanResult{APICalls: 1}, nil
}

type fakeSink struct {
	rows []domain.UsageRow
	err  error
}

func (f *fakeSink) InsertUsageRow(_ context.Context, row domain.UsageRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

const (
	testRunID  = "8d0c3a8e-4a57-4f38-9b7d-2d7a0c0f2a11"
	testBucket = "b1"
	testBase   = "uploads/"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAuditor(tenants TenantLister, scanner Scanner, sink UsageSink, mutate func(*Settings)) *Auditor {
	settings := Settings{
		RunID:          testRunID,
		Bucket:         testBucket,
		BasePrefix:     testBase,
		StatusesFilter: "Y,B",
		Statuses:       []string{"Y", "B"},
	}
	if mutate != nil {
		mutate(&settings)
	}
	a := NewAuditor(tenants, scanner, sink, settings)
	a.now = func() time.Time { return fixedNow }
	return a
}

func tenantPrefix(id int64) string {
	return prefix.EncodeTenantPrefix(testBase, id)
}

func scopedRows(rows []domain.UsageRow, scope domain.Scope) []domain.UsageRow {
	var out []domain.UsageRow
	for _, r := range rows {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

func TestAuditor_SingleTenantScenario(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{{ID: 123456, Status: "Y"}}}
	scanner := &fakeScanner{results: map[string]domain.ScanResult{
		"uploads/MTIzNDU2/": {BytesTotal: 2000, ObjectsCount: 2, APICalls: 1},
	}}
	sink := &fakeSink{}

	report, err := newTestAuditor(tenants, scanner, sink, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, domain.ScopeClient, row.Scope)
	assert.Equal(t, testRunID, row.RunID)
	assert.Equal(t, fixedNow, row.ComputedAt)
	assert.Equal(t, "b1", row.Bucket)
	assert.Equal(t, "uploads/", row.BasePrefix)
	assert.Equal(t, int64(123456), *row.TenantID)
	assert.Equal(t, "Y", *row.Status)
	assert.Equal(t, "uploads/MTIzNDU2/", *row.PrefixEncoded)
	assert.Equal(t, int64(2000), row.BytesTotal)
	assert.Equal(t, int64(2), row.ObjectsCount)
	assert.Equal(t, int64(1), row.APICalls)
	assert.True(t, row.GBTotal.IsZero())
	assert.True(t, decimal.RequireFromString("0.000005").Equal(row.CostEstimatedUSD))
	assert.Equal(t, "Y,B", row.StatusesFilter)
	assert.Nil(t, row.ExtraNote)

	require.Len(t, report.Passes, 1)
	assert.Equal(t, domain.PassIn, report.Passes[0].Pass)
	assert.Equal(t, 1, report.Passes[0].Tenants)
	assert.False(t, report.Passes[0].Persisted)
	assert.True(t, decimal.RequireFromString("0.000005").Equal(report.TotalCostUSD))
}

func TestAuditor_InAndNotInPasses(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{
		{ID: 100001, Status: "Y"},
		{ID: 100002, Status: "B"},
		{ID: 100003, Status: "X"},
	}}
	scanner := &fakeScanner{results: map[string]domain.ScanResult{
		tenantPrefix(100001): {BytesTotal: 1_000_000_000, ObjectsCount: 10, APICalls: 1},
		tenantPrefix(100002): {BytesTotal: 500_000_000, ObjectsCount: 5, APICalls: 1},
		tenantPrefix(100003): {BytesTotal: 250_000_000, ObjectsCount: 1500, APICalls: 2},
	}}
	sink := &fakeSink{}

	report, err := newTestAuditor(tenants, scanner, sink, func(s *Settings) {
		s.IncludeNotInPass = true
	}).Run(context.Background())
	require.NoError(t, err)

	clients := scopedRows(sink.rows, domain.ScopeClient)
	require.Len(t, clients, 3)
	assert.Equal(t, int64(100001), *clients[0].TenantID)
	assert.Nil(t, clients[0].ExtraNote)
	assert.Equal(t, int64(100002), *clients[1].TenantID)
	assert.Nil(t, clients[1].ExtraNote)
	assert.Equal(t, int64(100003), *clients[2].TenantID)
	assert.Equal(t, "CLIENT:NOT_IN", *clients[2].ExtraNote)

	summaries := scopedRows(sink.rows, domain.ScopeSummary)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "SUMMARY:NOT_IN", *s.ExtraNote)
	assert.Nil(t, s.TenantID)
	assert.Nil(t, s.Status)
	assert.Nil(t, s.PrefixEncoded)
	assert.Equal(t, int64(250_000_000), s.BytesTotal)
	assert.Equal(t, int64(1500), s.ObjectsCount)
	assert.Equal(t, int64(2), s.APICalls)
	assert.True(t, decimal.RequireFromString("0.25").Equal(s.GBTotal))
	assert.True(t, decimal.RequireFromString("0.00001").Equal(s.CostEstimatedUSD))

	for _, r := range sink.rows {
		assert.Equal(t, testRunID, r.RunID)
	}

	require.Len(t, report.Passes, 2)
	in, notIn := report.Passes[0], report.Passes[1]
	assert.Equal(t, 2, in.Tenants)
	assert.Equal(t, int64(1_500_000_000), in.BytesTotal)
	assert.True(t, decimal.RequireFromString("1.5").Equal(in.GBTotal))
	assert.False(t, in.Persisted)
	assert.Equal(t, 1, notIn.Tenants)
	assert.True(t, notIn.Persisted)

	assert.True(t, decimal.RequireFromString("1.75").Equal(report.TotalGB))
	assert.True(t, decimal.RequireFromString("0.00002").Equal(report.TotalCostUSD))
	assert.Equal(t, fixedNow, report.FinishedAt)
}

func TestAuditor_PassesCoverEveryTenantOnce(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{
		{ID: 100001, Status: "Y"},
		{ID: 100002, Status: "X"},
		{ID: 100003, Status: "B"},
		{ID: 100004, Status: "Z"},
	}}
	sink := &fakeSink{}

	_, err := newTestAuditor(tenants, &fakeScanner{}, sink, func(s *Settings) {
		s.IncludeNotInPass = true
	}).Run(context.Background())
	require.NoError(t, err)

	var ids []int64
	for _, r := range scopedRows(sink.rows, domain.ScopeClient) {
		ids = append(ids, *r.TenantID)
	}
	assert.ElementsMatch(t, []int64{100001, 100002, 100003, 100004}, ids)
}

func TestAuditor_PersistInSummary(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{{ID: 100001, Status: "Y"}}}

	for _, persist := range []bool{false, true} {
		sink := &fakeSink{}
		report, err := newTestAuditor(tenants, &fakeScanner{}, sink, func(s *Settings) {
			s.PersistInSummary = persist
		}).Run(context.Background())
		require.NoError(t, err)

		summaries := scopedRows(sink.rows, domain.ScopeSummary)
		if persist {
			require.Len(t, summaries, 1)
			assert.Equal(t, "SUMMARY:IN", *summaries[0].ExtraNote)
		} else {
			assert.Empty(t, summaries)
		}
		assert.Equal(t, persist, report.Passes[0].Persisted)
	}
}

func TestAuditor_BucketTotal(t *testing.T) {
	scanner := &fakeScanner{results: map[string]domain.ScanResult{
		"": {BytesTotal: 3_000_000_000, ObjectsCount: 4200, APICalls: 5},
	}}
	sink := &fakeSink{}

	report, err := newTestAuditor(&fakeTenants{}, scanner, sink, func(s *Settings) {
		s.ComputeBucketTotal = true
	}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, scanner.calls, 1)
	assert.Nil(t, scanner.calls[0], "whole-bucket scan sends no prefix")

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, domain.ScopeSummary, row.Scope)
	assert.Equal(t, "SUMMARY:BUCKET_TOTAL", *row.ExtraNote)
	assert.Nil(t, row.TenantID)
	assert.True(t, decimal.RequireFromString("3").Equal(row.GBTotal))
	assert.True(t, decimal.RequireFromString("0.000025").Equal(row.CostEstimatedUSD))

	require.Len(t, report.Passes, 2)
	assert.Equal(t, domain.PassBucketTotal, report.Passes[1].Pass)
	assert.Equal(t, 0, report.Passes[1].Tenants)
	assert.True(t, decimal.RequireFromString("3").Equal(report.TotalGB))
}

func TestAuditor_ScanFailureAbortsRun(t *testing.T) {
	var records []domain.TenantRecord
	for i := int64(1); i <= 5; i++ {
		records = append(records, domain.TenantRecord{ID: 100000 + i, Status: "Y"})
	}
	scanner := &fakeScanner{failOn: tenantPrefix(100003)}
	sink := &fakeSink{}

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	report, err := newTestAuditor(&fakeTenants{records: records}, scanner, sink, func(s *Settings) {
		s.IncludeNotInPass = true
		s.ComputeBucketTotal = true
	}).Run(ctx)

	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrStorageProvider)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, int64(100001), *sink.rows[0].TenantID)
	assert.Equal(t, int64(100002), *sink.rows[1].TenantID)
	assert.Len(t, scanner.calls, 3)

	assert.Contains(t, logs.String(), `"tenant_id":100003`)
	assert.Contains(t, logs.String(), tenantPrefix(100003))
	assert.Contains(t, logs.String(), testRunID)
}

func TestAuditor_SinkFailureAbortsRun(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{{ID: 100001, Status: "Y"}, {ID: 100002, Status: "Y"}}}
	scanner := &fakeScanner{}
	sink := &fakeSink{err: &domain.DataAccessError{Op: "insert usage row", Err: errors.New("connection reset")}}

	_, err := newTestAuditor(tenants, scanner, sink, nil).Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrDataAccess)
	assert.Len(t, scanner.calls, 1)
}

func TestAuditor_ListingFailure(t *testing.T) {
	tenants := &fakeTenants{err: &domain.DataAccessError{Op: "query tenants", Err: errors.New("permission denied")}}
	scanner := &fakeScanner{}

	_, err := newTestAuditor(tenants, scanner, &fakeSink{}, nil).Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrDataAccess)
	assert.Empty(t, scanner.calls)
}

func TestAuditor_SummaryFailureAbortsBeforeBucketPass(t *testing.T) {
	tenants := &fakeTenants{records: []domain.TenantRecord{{ID: 100003, Status: "X"}}}
	scanner := &fakeScanner{}
	sink := &failingSummarySink{}

	_, err := newTestAuditor(tenants, scanner, sink, func(s *Settings) {
		s.IncludeNotInPass = true
		s.ComputeBucketTotal = true
	}).Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrDataAccess)
	assert.Len(t, scanner.calls, 1, "bucket pass never starts")
	assert.Len(t, sink.rows, 1)
}

type failingSummarySink struct {
	fakeSink
}

func (f *failingSummarySink) InsertUsageRow(ctx context.Context, row domain.UsageRow) error {
	if row.Scope == domain.ScopeSummary {
		return &domain.DataAccessError{Op: "insert usage row", Err: errors.New("check constraint")}
	}
	return f.fakeSink.InsertUsageRow(ctx, row)
}
