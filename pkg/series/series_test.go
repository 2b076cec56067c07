package series

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func points(start string, values ...float64) []TimePoint {
	d := day(start)
	out := make([]TimePoint, len(values))
	for i, v := range values {
		out[i] = TimePoint{Date: d.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "valid", in: "2025-01-31", want: day("2025-01-31")},
		{name: "empty", in: "", wantErr: true},
		{name: "wrong layout", in: "31/01/2025", wantErr: true},
		{name: "impossible day", in: "2025-02-30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("ParseDate(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2025, 3, 10, 2, 0, 0, 0, ist) // 2025-03-09 20:30 UTC
	if got := Day(in); !got.Equal(day("2025-03-09")) {
		t.Errorf("Day() = %v, want 2025-03-09", got)
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(day("2025-01-01"), day("2025-01-06")); got != 5 {
		t.Errorf("DaysBetween = %d, want 5", got)
	}
	if got := DaysBetween(day("2025-01-06"), day("2025-01-01")); got != -5 {
		t.Errorf("DaysBetween = %d, want -5", got)
	}
}

func TestSeriesValidate(t *testing.T) {
	tests := []struct {
		name    string
		points  []TimePoint
		wantErr bool
	}{
		{name: "empty", points: nil},
		{name: "increasing", points: points("2025-01-01", 1, 2, 3)},
		{name: "gaps allowed", points: []TimePoint{
			{Date: day("2025-01-01"), Value: 1},
			{Date: day("2025-01-05"), Value: 2},
		}},
		{name: "duplicate date", points: []TimePoint{
			{Date: day("2025-01-01"), Value: 1},
			{Date: day("2025-01-01"), Value: 2},
		}, wantErr: true},
		{name: "decreasing", points: []TimePoint{
			{Date: day("2025-01-02"), Value: 1},
			{Date: day("2025-01-01"), Value: 2},
		}, wantErr: true},
		{name: "nan value", points: points("2025-01-01", 1, math.NaN()), wantErr: true},
		{name: "inf value", points: points("2025-01-01", math.Inf(1)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Series{Name: "solar", Points: tt.points}.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestMerge_InnerJoinAndDerive(t *testing.T) {
	solar := points("2025-01-01", 400, 410, 420)
	load := points("2025-01-02", 500, 505, 510) // 01-02..01-04

	rows := Merge(solar, load, day("2025-01-01"), day("2025-01-31"))
	if len(rows) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(rows))
	}

	if !rows[0].Date.Equal(day("2025-01-02")) || !rows[1].Date.Equal(day("2025-01-03")) {
		t.Errorf("unexpected dates: %v, %v", rows[0].Date, rows[1].Date)
	}
	if rows[0].NetDemand != 90 {
		t.Errorf("net demand = %v, want load - solar = 90", rows[0].NetDemand)
	}
}

func TestMerge_JoinIsCommutativeButSignIsNot(t *testing.T) {
	a := points("2025-01-01", 100, 200, 300)
	b := points("2025-01-02", 150, 250)

	ab := Merge(a, b, day("2025-01-01"), day("2025-01-10"))
	ba := Merge(b, a, day("2025-01-01"), day("2025-01-10"))

	if len(ab) != len(ba) {
		t.Fatalf("join sizes differ: %d vs %d", len(ab), len(ba))
	}
	for i := range ab {
		if !ab[i].Date.Equal(ba[i].Date) {
			t.Errorf("row %d: dates differ %v vs %v", i, ab[i].Date, ba[i].Date)
		}
		if ab[i].NetDemand != -ba[i].NetDemand {
			t.Errorf("row %d: net demand should flip sign, got %v and %v", i, ab[i].NetDemand, ba[i].NetDemand)
		}
	}
}

func TestMerge_RangeFilter(t *testing.T) {
	solar := points("2025-01-01", 1, 2, 3, 4, 5)
	load := points("2025-01-01", 10, 20, 30, 40, 50)

	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{name: "inclusive both ends", start: "2025-01-02", end: "2025-01-04", want: 3},
		{name: "single day", start: "2025-01-03", end: "2025-01-03", want: 1},
		{name: "partially outside", start: "2024-12-25", end: "2025-01-02", want: 2},
		{name: "wholly outside", start: "2025-02-01", end: "2025-02-10", want: 0},
		{name: "inverted", start: "2025-01-04", end: "2025-01-02", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Merge(solar, load, day(tt.start), day(tt.end))
			if rows == nil {
				t.Fatal("Merge should return an empty slice, not nil")
			}
			if len(rows) != tt.want {
				t.Errorf("got %d rows, want %d", len(rows), tt.want)
			}
		})
	}
}

func TestMerge_DropsNonFinite(t *testing.T) {
	solar := points("2025-01-01", 1, math.NaN(), 3)
	load := points("2025-01-01", 10, 20, math.Inf(-1))

	rows := Merge(solar, load, day("2025-01-01"), day("2025-01-03"))
	if len(rows) != 1 {
		t.Fatalf("expected only the finite row, got %d", len(rows))
	}
	if !rows[0].Date.Equal(day("2025-01-01")) {
		t.Errorf("unexpected surviving date %v", rows[0].Date)
	}
}

func TestMerge_RoundsOutputOnly(t *testing.T) {
	solar := []TimePoint{{Date: day("2025-01-01"), Value: 1.005}}
	load := []TimePoint{{Date: day("2025-01-01"), Value: 2.3349}}

	rows := Merge(solar, load, day("2025-01-01"), day("2025-01-01"))
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.YhatSolar != 1.01 {
		t.Errorf("YhatSolar = %v, want 1.01", r.YhatSolar)
	}
	if r.YhatLoad != 2.33 {
		t.Errorf("YhatLoad = %v, want 2.33", r.YhatLoad)
	}
	// computed from unrounded inputs: 2.3349 - 1.005 = 1.3299
	if r.NetDemand != 1.33 {
		t.Errorf("NetDemand = %v, want 1.33", r.NetDemand)
	}
	if solar[0].Value != 1.005 {
		t.Error("Merge must not mutate its inputs")
	}
}

func TestForecastRow_MarshalJSON(t *testing.T) {
	row := ForecastRow{Date: day("2025-06-01"), YhatSolar: 410.5, YhatLoad: 390.25, NetDemand: -20.25}

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["date"] != "2025-06-01" {
		t.Errorf("date = %v, want 2025-06-01", got["date"])
	}
	if got["net_demand"] != -20.25 {
		t.Errorf("net_demand = %v, want -20.25", got["net_demand"])
	}
	if len(got) != 4 {
		t.Errorf("expected 4 fields, got %v", got)
	}
}

func TestNewResult(t *testing.T) {
	empty := NewResult(nil)
	if empty.Status != StatusEmpty || !empty.Empty() {
		t.Errorf("expected empty status, got %q", empty.Status)
	}
	if empty.Rows == nil {
		t.Error("empty result should carry a non-nil slice")
	}

	ok := NewResult([]ForecastRow{{Date: day("2025-01-01")}})
	if ok.Status != StatusOK || ok.Empty() {
		t.Errorf("expected ok status, got %q", ok.Status)
	}
}
