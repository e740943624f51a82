package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is the printable form of a finished run
type Report struct {
	Title       string
	RunID       string
	Period      TimePeriod
	Sections    []ReportSection
	TotalGB     decimal.Decimal
	TotalAmount decimal.Decimal
	Currency    string
}

// TimePeriod is the wall-clock span of the run
type TimePeriod struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// ReportSection covers one aggregation pass
type ReportSection struct {
	Title   string
	Summary map[string]interface{}
	Details []ReportDetail
}

type ReportDetail struct {
	Name        string
	Value       interface{}
	Unit        string
	Description string
}
