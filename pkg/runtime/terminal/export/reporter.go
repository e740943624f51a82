package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/de-tools/storage-audit/pkg/services/pricing"
)

type TableConfig struct {
	NameWidth        int
	ValueWidth       int
	UnitWidth        int
	DescriptionWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		NameWidth:        16,
		ValueWidth:       24,
		UnitWidth:        8,
		DescriptionWidth: 48,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

// FromRunReport maps a finished run to one report section per pass, in execution order.
func FromRunReport(run *domain.RunReport) *domain.Report {
	report := &domain.Report{
		Title: fmt.Sprintf("Storage usage for s3://%s/%s", run.Bucket, run.BasePrefix),
		RunID: run.RunID,
		Period: domain.TimePeriod{
			Start:    run.StartedAt,
			End:      run.FinishedAt,
			Duration: run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
		},
		TotalGB:     run.TotalGB,
		TotalAmount: run.TotalCostUSD,
		Currency:    pricing.CurrencyUSD,
	}

	for _, p := range run.Passes {
		report.Sections = append(report.Sections, domain.ReportSection{
			Title: passTitle(p.Pass, run.StatusesFilter),
			Summary: map[string]interface{}{
				"Note":      p.Pass.SummaryNote(),
				"Persisted": p.Persisted,
			},
			Details: []domain.ReportDetail{
				{Name: "Tenants", Value: p.Tenants, Description: "Tenants scanned"},
				{Name: "Objects", Value: p.ObjectsCount, Description: "Objects listed"},
				{Name: "Bytes", Value: p.BytesTotal, Unit: "B", Description: "Sum of object sizes"},
				{Name: "Size", Value: p.GBTotal.StringFixed(pricing.GBPlaces), Unit: "GB", Description: "Decimal gigabytes (1e9 bytes)"},
				{Name: "API calls", Value: p.APICalls, Description: "ListObjectsV2 requests"},
				{Name: "Cost", Value: p.CostEstimatedUSD.StringFixed(pricing.CostPlaces), Unit: pricing.CurrencyUSD, Description: "Estimated request cost"},
			},
		})
	}
	return report
}

func passTitle(pass domain.Pass, statuses string) string {
	switch pass {
	case domain.PassIn:
		return fmt.Sprintf("Tenants with status in [%s]", statuses)
	case domain.PassNotIn:
		return fmt.Sprintf("Tenants with status not in [%s]", statuses)
	default:
		return "Whole bucket"
	}
}

func (c *Reporter) Handle(report *domain.Report) error {
	funcMap := template.FuncMap{
		"formatRow": func(name string, value interface{}, unit string, desc string) string {
			unitStr := unit
			if unit == "" {
				unitStr = strings.Repeat(" ", c.config.UnitWidth)
			}
			return fmt.Sprintf("| %-*s | %*v | %-*s | %-*s |",
				c.config.NameWidth, name,
				c.config.ValueWidth, value,
				c.config.UnitWidth, unitStr,
				c.config.DescriptionWidth, desc)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+",
				strings.Repeat("-", c.config.NameWidth+2),
				strings.Repeat("-", c.config.ValueWidth+2),
				strings.Repeat("-", c.config.UnitWidth+2),
				strings.Repeat("-", c.config.DescriptionWidth+2))
		},
	}

	tmpl := `
{{.Title}}

Run: {{.RunID}}
Started: {{.Period.Start.Format "2006-01-02 15:04:05"}} ({{.Period.Duration}})
Total Size: {{.TotalGB.StringFixed 4}} GB
Total Amount: {{.Currency}} {{.TotalAmount.StringFixed 6}}
{{range .Sections}}
=== {{.Title}} ===
{{range $key, $value := .Summary}}{{$key}}: {{$value}}
{{end}}
{{separator}}
{{formatRow "Name" "Value" "Unit" "Description"}}
{{separator}}
{{range .Details}}{{formatRow .Name .Value .Unit .Description}}
{{end}}{{separator}}
{{end}}`

	t, err := template.New("report").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, report)
}
