package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tenant identifiers outside this range are never audited.
const (
	MinTenantID int64 = 100000
	MaxTenantID int64 = 999999
)

type TenantRecord struct {
	ID     int64
	Status string
}

// ScanResult is the outcome of one paginated listing under a prefix
type ScanResult struct {
	BytesTotal   int64
	ObjectsCount int64
	APICalls     int64
}

type Scope string

const (
	ScopeClient  Scope = "CLIENT"
	ScopeSummary Scope = "SUMMARY"
)

type Pass string

const (
	PassIn          Pass = "IN"
	PassNotIn       Pass = "NOT_IN"
	PassBucketTotal Pass = "BUCKET_TOTAL"
)

// SummaryNote is the extra_note tag of the pass' SUMMARY row, e.g. "SUMMARY:NOT_IN".
func (p Pass) SummaryNote() string {
	return string(ScopeSummary) + ":" + string(p)
}

// ClientNote tags CLIENT rows written outside the IN pass. IN-pass rows carry no note.
func (p Pass) ClientNote() *string {
	if p == PassIn {
		return nil
	}
	note := string(ScopeClient) + ":" + string(p)
	return &note
}

// UsageRow is one append-only row of the reporting table
type UsageRow struct {
	RunID            string
	ComputedAt       time.Time
	Scope            Scope
	Bucket           string
	BasePrefix       string
	TenantID         *int64
	Status           *string
	PrefixEncoded    *string
	ObjectsCount     int64
	BytesTotal       int64
	GBTotal          decimal.Decimal
	APICalls         int64
	CostEstimatedUSD decimal.Decimal
	StatusesFilter   string
	ExtraNote        *string
}

// PassSummary is the folded result of one aggregation pass
type PassSummary struct {
	Pass             Pass
	Tenants          int
	ObjectsCount     int64
	BytesTotal       int64
	APICalls         int64
	GBTotal          decimal.Decimal
	CostEstimatedUSD decimal.Decimal
	Persisted        bool
}

type RunReport struct {
	RunID          string
	Bucket         string
	BasePrefix     string
	StatusesFilter string
	StartedAt      time.Time
	FinishedAt     time.Time
	Passes         []PassSummary
	TotalGB        decimal.Decimal
	TotalCostUSD   decimal.Decimal
}
