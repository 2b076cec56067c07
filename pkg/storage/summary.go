package storage

import (
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// Summary status values.
const (
	SummarySuccess = "success"
	SummaryNoData  = "no_data"
)

// Summary aggregates the forecasts stored for one day.
type Summary struct {
	Status        string  `json:"status"`
	Date          string  `json:"date"`
	TotalEnergy   float64 `json:"total_energy"`
	PeakPower     float64 `json:"peak_power"`
	AvgEfficiency float64 `json:"avg_efficiency"`
	TotalLoad     float64 `json:"total_load"`
	NetDemand     float64 `json:"net_demand"`
}

// Summarize computes the today-status figures for day from records.
// Efficiency is mean predicted solar over peak predicted solar, as a
// percentage; a zero peak yields zero efficiency.
func Summarize(day time.Time, records []PersistedForecast) Summary {
	s := Summary{Date: series.Day(day).Format(series.DateLayout)}
	if len(records) == 0 {
		s.Status = SummaryNoData
		return s
	}

	s.Status = SummarySuccess
	var solar float64
	for i, r := range records {
		solar += r.YhatSolar
		s.TotalLoad += r.YhatLoad
		s.NetDemand += r.NetDemand
		if i == 0 || r.YhatSolar > s.PeakPower {
			s.PeakPower = r.YhatSolar
		}
	}

	if s.PeakPower > 0 {
		mean := solar / float64(len(records))
		s.AvgEfficiency = series.Round(mean / s.PeakPower * 100)
	}
	s.TotalEnergy = series.Round(solar)
	s.PeakPower = series.Round(s.PeakPower)
	s.TotalLoad = series.Round(s.TotalLoad)
	s.NetDemand = series.Round(s.NetDemand)
	return s
}
