package tariff

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier maps an installed-capacity band to a feed-in rate key. MaxKW of 0
// means the band is unbounded.
type Tier struct {
	MaxKW float64 `yaml:"max_kw"`
	Rate  string  `yaml:"rate"`
}

// Table holds the grid and feed-in rates used by Compute. A Table is
// treated as immutable once loaded.
type Table struct {
	// GridRates is the per-kWh grid price by consumer category
	GridRates map[string]float64 `yaml:"grid_rates"`

	// DefaultGridRate applies to categories missing from GridRates
	DefaultGridRate float64 `yaml:"default_grid_rate"`

	// FeedInRates is the per-kWh solar generation cost by rate key
	FeedInRates map[string]float64 `yaml:"feed_in_rates"`

	// DefaultFeedIn is the rate key for categories without tiers
	DefaultFeedIn string `yaml:"default_feed_in"`

	// Tiers lists capacity bands per category, checked in order
	Tiers map[string][]Tier `yaml:"tiers"`
}

// DefaultTable returns the built-in tariff schedule.
func DefaultTable() Table {
	return Table{
		GridRates: map[string]float64{
			"domestic":    5.8,
			"institution": 6.3,
			"industry":    7.5,
		},
		DefaultGridRate: 5.8,
		FeedInRates: map[string]float64{
			"domestic_no_subsidy": 4.15,
			"pm_surya_1_2kw":      2.30,
			"pm_surya_2_3kw":      2.48,
			"pm_surya_above_3kw":  2.93,
			"non_domestic":        3.08,
			"mw_ground":           3.07,
		},
		DefaultFeedIn: "mw_ground",
		Tiers: map[string][]Tier{
			"domestic": {
				{MaxKW: 2, Rate: "pm_surya_1_2kw"},
				{MaxKW: 3, Rate: "pm_surya_2_3kw"},
				{MaxKW: 10, Rate: "pm_surya_above_3kw"},
				{Rate: "domestic_no_subsidy"},
			},
			"institution": {{Rate: "non_domestic"}},
			"industry":    {{Rate: "non_domestic"}},
		},
	}
}

// LoadTable reads a YAML tariff table from path. Sections missing from the
// file keep their built-in values.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read tariff file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML tariff table over DefaultTable.
func ParseTable(data []byte) (Table, error) {
	var file Table
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Table{}, fmt.Errorf("parse tariff file: %w", err)
	}

	t := DefaultTable()
	if file.GridRates != nil {
		t.GridRates = file.GridRates
	}
	if file.DefaultGridRate != 0 {
		t.DefaultGridRate = file.DefaultGridRate
	}
	if file.FeedInRates != nil {
		t.FeedInRates = file.FeedInRates
	}
	if file.DefaultFeedIn != "" {
		t.DefaultFeedIn = file.DefaultFeedIn
	}
	if file.Tiers != nil {
		t.Tiers = file.Tiers
	}

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate checks that rates are non-negative and every tier refers to a
// known feed-in rate.
func (t Table) Validate() error {
	if t.DefaultGridRate < 0 {
		return fmt.Errorf("tariff: default_grid_rate must be non-negative")
	}
	for category, rate := range t.GridRates {
		if rate < 0 {
			return fmt.Errorf("tariff: grid rate for %q must be non-negative", category)
		}
	}
	for key, rate := range t.FeedInRates {
		if rate < 0 {
			return fmt.Errorf("tariff: feed-in rate %q must be non-negative", key)
		}
	}
	if _, ok := t.FeedInRates[t.DefaultFeedIn]; !ok {
		return fmt.Errorf("tariff: default_feed_in %q is not a feed-in rate", t.DefaultFeedIn)
	}
	for category, tiers := range t.Tiers {
		if len(tiers) == 0 {
			return fmt.Errorf("tariff: category %q has no tiers", category)
		}
		for i, tier := range tiers {
			if _, ok := t.FeedInRates[tier.Rate]; !ok {
				return fmt.Errorf("tariff: category %q tier %d uses unknown rate %q", category, i, tier.Rate)
			}
			if tier.MaxKW < 0 {
				return fmt.Errorf("tariff: category %q tier %d has negative max_kw", category, i)
			}
		}
	}
	return nil
}

// GridRate returns the grid price for category.
func (t Table) GridRate(category string) float64 {
	if rate, ok := t.GridRates[category]; ok {
		return rate
	}
	return t.DefaultGridRate
}

// FeedIn returns the feed-in rate key and price for category at avgPowerKW.
// A category whose tiers all have an upper bound below avgPowerKW falls back
// to its last tier.
func (t Table) FeedIn(category string, avgPowerKW float64) (string, float64) {
	tiers, ok := t.Tiers[category]
	if !ok || len(tiers) == 0 {
		return t.DefaultFeedIn, t.FeedInRates[t.DefaultFeedIn]
	}
	for _, tier := range tiers {
		if tier.MaxKW == 0 || avgPowerKW <= tier.MaxKW {
			return tier.Rate, t.FeedInRates[tier.Rate]
		}
	}
	last := tiers[len(tiers)-1].Rate
	return last, t.FeedInRates[last]
}
