package series

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept in serialized forecasts.
const Precision = 2

// ForecastRow is one merged prediction: solar and load for the same day plus
// the derived net demand (load minus solar).
type ForecastRow struct {
	Date      time.Time `json:"-"`
	YhatSolar float64   `json:"yhat_solar"`
	YhatLoad  float64   `json:"yhat_load"`
	NetDemand float64   `json:"net_demand"`
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (r ForecastRow) MarshalJSON() ([]byte, error) {
	type alias ForecastRow
	return json.Marshal(struct {
		Date string `json:"date"`
		alias
	}{
		Date:  r.Date.Format(DateLayout),
		alias: alias(r),
	})
}

// Merge inner-joins the solar and load predictions on date, derives
// net_demand, keeps dates within [start, end] inclusive and rounds every
// value to Precision digits.
//
// Dates present in only one input are dropped silently. Rows with a
// non-finite value are dropped. An empty or inverted range yields an empty
// slice, never an error. Output is sorted by date ascending.
func Merge(solar, load []TimePoint, start, end time.Time) []ForecastRow {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return []ForecastRow{}
	}

	loadByDay := make(map[int64]float64, len(load))
	for _, p := range load {
		loadByDay[Day(p.Date).Unix()] = p.Value
	}

	rows := make([]ForecastRow, 0, len(solar))
	for _, p := range solar {
		day := Day(p.Date)
		if day.Before(start) || day.After(end) {
			continue
		}
		l, ok := loadByDay[day.Unix()]
		if !ok {
			continue
		}

		// net demand is derived only from a joined pair
		net := l - p.Value
		if !finite(p.Value) || !finite(l) || !finite(net) {
			continue
		}

		rows = append(rows, ForecastRow{
			Date:      day,
			YhatSolar: Round(p.Value),
			YhatLoad:  Round(l),
			NetDemand: Round(net),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

// Round rounds v half away from zero to Precision fractional digits using
// exact decimal arithmetic.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(Precision).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
