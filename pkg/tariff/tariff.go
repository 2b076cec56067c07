// Package tariff computes electricity bills with and without rooftop solar.
package tariff

import (
	"github.com/shopspring/decimal"
)

// BillBreakdown is the result of Compute. Monetary and energy fields are
// rounded to two decimals.
type BillBreakdown struct {
	Category            string  `json:"category"`
	AvgPower            float64 `json:"avg_power"`
	SolarGeneration     float64 `json:"solar_generation"`
	GridImport          float64 `json:"grid_import"`
	GridExport          float64 `json:"grid_export"`
	NetGridConsumption  float64 `json:"net_grid_consumption"`
	TotalConsumption    float64 `json:"total_consumption"`
	GridTariff          float64 `json:"grid_tariff"`
	SolarTariff         float64 `json:"solar_tariff"`
	SolarRate           string  `json:"solar_rate"`
	NormalBill          float64 `json:"normal_bill"`
	SolarBill           float64 `json:"solar_bill"`
	SolarGenerationCost float64 `json:"solar_generation_cost"`
	Savings             float64 `json:"savings"`
}

const places = 2

// Compute derives the bill for one period. An unknown category uses the
// table's default grid rate and feed-in rate.
//
//	net    = import - export
//	total  = generation + net
//	normal = total * grid
//	solar  = max(0, net * grid)
//	cost   = generation * feed-in
//	saving = normal - (solar + cost)
func Compute(t Table, category string, avgPowerKW, generation, gridImport, gridExport float64) BillBreakdown {
	gridRate := t.GridRate(category)
	rateKey, feedIn := t.FeedIn(category, avgPowerKW)

	grid := decimal.NewFromFloat(gridRate)
	gen := decimal.NewFromFloat(generation)

	net := decimal.NewFromFloat(gridImport).Sub(decimal.NewFromFloat(gridExport))
	total := gen.Add(net)
	normal := total.Mul(grid)
	solarBill := decimal.Max(decimal.Zero, net.Mul(grid))
	genCost := gen.Mul(decimal.NewFromFloat(feedIn))
	savings := normal.Sub(solarBill.Add(genCost))

	return BillBreakdown{
		Category:            category,
		AvgPower:            round(decimal.NewFromFloat(avgPowerKW)),
		SolarGeneration:     round(gen),
		GridImport:          round(decimal.NewFromFloat(gridImport)),
		GridExport:          round(decimal.NewFromFloat(gridExport)),
		NetGridConsumption:  round(net),
		TotalConsumption:    round(total),
		GridTariff:          gridRate,
		SolarTariff:         feedIn,
		SolarRate:           rateKey,
		NormalBill:          round(normal),
		SolarBill:           round(solarBill),
		SolarGenerationCost: round(genCost),
		Savings:             round(savings),
	}
}

func round(d decimal.Decimal) float64 {
	return d.Round(places).InexactFloat64()
}
