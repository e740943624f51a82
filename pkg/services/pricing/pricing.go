package pricing

import (
	"github.com/shopspring/decimal"
)

const (
	CurrencyUSD = "USD"

	// GBPlaces and CostPlaces are the rounding precisions of the reporting table.
	GBPlaces   int32 = 4
	CostPlaces int32 = 6
)

var (
	// RequestRatePer1000 is the list price of 1000 LIST requests.
	RequestRatePer1000 = decimal.RequireFromString("0.005")

	requestUnit = decimal.NewFromInt(1000)
	// Decimal gigabytes (1e9 bytes), not GiB.
	bytesPerGB = decimal.New(1, 9)
)

// EstimateCost returns round(apiCalls * 0.005 / 1000, 6).
func EstimateCost(apiCalls int64) decimal.Decimal {
	return decimal.NewFromInt(apiCalls).
		Mul(RequestRatePer1000).
		Div(requestUnit).
		RoundBank(CostPlaces)
}

// BytesToDecimalGB returns round(bytes / 1e9, 4).
func BytesToDecimalGB(bytes int64) decimal.Decimal {
	return decimal.NewFromInt(bytes).
		Div(bytesPerGB).
		RoundBank(GBPlaces)
}
