// Package domain contains the core data model for the dashboard.
// The domain layer is pure: no infrastructure dependencies, no I/O.
//
// Absence is modeled explicitly: optional metrics are *float64, and a nil
// pointer means "no data for this year". A zero revenue year and a missing
// revenue figure are different things and must never be conflated.
package domain

// Recognized currency codes. LKR is the native reporting currency of the
// ingested annual reports; USD is the supported conversion target.
const (
	CurrencyLKR = "LKR"
	CurrencyUSD = "USD"
)

// RecognizedCurrencies is the closed set of currency codes a Dataset or a
// FilterSelection may carry.
var RecognizedCurrencies = []string{CurrencyLKR, CurrencyUSD}

// IndustryAll matches every segment.
const IndustryAll = "All"

// RecognizedIndustries is the closed enumeration of industry tags, matching
// the business segments of the reporting company.
var RecognizedIndustries = []string{
	IndustryAll,
	"Transportation",
	"Leisure",
	"Consumer Foods",
	"Retail",
	"Financial Services",
	"Property",
	"Information Technology",
}

// IsRecognizedCurrency reports whether code is in the recognized set.
func IsRecognizedCurrency(code string) bool {
	for _, c := range RecognizedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// IsRecognizedIndustry reports whether tag is in the recognized enumeration.
func IsRecognizedIndustry(tag string) bool {
	for _, t := range RecognizedIndustries {
		if t == tag {
			return true
		}
	}
	return false
}

// ShareholderEntry is one row of a year's shareholder table.
type ShareholderEntry struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"` // Ownership percentage, 0-100
}

// YearRecord holds one fiscal year's figures. Monetary fields are in
// billions of the Dataset's currency; EPS and NetAssetPerShare are per-share
// amounts in the same currency. ShareCount is in millions of shares.
type YearRecord struct {
	Year              int                `json:"year"`
	Revenue           *float64           `json:"revenue,omitempty"`
	CostOfSales       *float64           `json:"cost_of_sales,omitempty"`
	OperatingExpenses *float64           `json:"operating_expenses,omitempty"`
	GrossProfit       *float64           `json:"gross_profit,omitempty"`
	GrossProfitMargin *float64           `json:"gross_profit_margin,omitempty"` // Percentage
	OperatingProfit   *float64           `json:"operating_profit,omitempty"`
	NetProfit         *float64           `json:"net_profit,omitempty"`
	EPS               *float64           `json:"eps,omitempty"`
	ShareCount        *float64           `json:"share_count,omitempty"`
	NetAssetPerShare  *float64           `json:"net_asset_per_share,omitempty"`
	Shareholders      []ShareholderEntry `json:"shareholders,omitempty"`
}

// Dataset is the top-level entity: one company's yearly figures for a
// contiguous ascending range of years, plus ingestion-supplied narrative.
// A Dataset is immutable after load; uploads replace it wholesale.
type Dataset struct {
	ID       string       `json:"id,omitempty"`
	Company  string       `json:"company,omitempty"`
	Currency string       `json:"currency"`
	Years    []YearRecord `json:"years"`
	Summary  string       `json:"summary,omitempty"`
	Insights []string     `json:"insights,omitempty"`
	// Warnings carries non-fatal validation findings (EPS/share-count
	// mismatches, shareholder totals over 100%). Informational only.
	Warnings []string `json:"warnings,omitempty"`
}

// YearNumbers returns the dataset's years in order.
func (d *Dataset) YearNumbers() []int {
	years := make([]int, len(d.Years))
	for i, yr := range d.Years {
		years[i] = yr.Year
	}
	return years
}

// FilterSelection is the user's current filter state. Ephemeral: held by the
// orchestrator, recomputed on every change, never persisted.
type FilterSelection struct {
	Years    []int  `json:"years"`
	Industry string `json:"industry"`
	Currency string `json:"currency"`
}

// FilteredView is the result of applying a FilterSelection to a Dataset.
// It has the same shape as the dataset's year records, possibly
// currency-converted, and is safe to share: Apply always copies.
type FilteredView struct {
	DatasetID string       `json:"dataset_id,omitempty"`
	Currency  string       `json:"currency"`
	Rate      float64      `json:"rate"` // Conversion rate applied (1.0 = none)
	Records   []YearRecord `json:"records"`
}

// YearNumbers returns the view's years in order.
func (v *FilteredView) YearNumbers() []int {
	years := make([]int, len(v.Records))
	for i, yr := range v.Records {
		years[i] = yr.Year
	}
	return years
}

// Point is one (year, value) pair of a derived or presentational series.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Series is an ordered sequence of points, ascending by year.
type Series []Point

// Value returns the point value for a year and whether it is present.
func (s Series) Value(year int) (float64, bool) {
	for _, p := range s {
		if p.Year == year {
			return p.Value, true
		}
	}
	return 0, false
}

// Metric names used as DerivedSeries keys and forecast targets.
const (
	MetricRevenue           = "revenue"
	MetricCostOfSales       = "cost_of_sales"
	MetricOperatingExpenses = "operating_expenses"
	MetricGrossProfit       = "gross_profit"
	MetricOperatingProfit   = "operating_profit"
	MetricNetProfit         = "net_profit"
	MetricEPS               = "eps"
	MetricNetAssetPerShare  = "net_asset_per_share"
	MetricGrossMargin       = "gross_profit_margin"
)

// DerivedSeries bundles all second-order series computed from a FilteredView.
// It is a pure function of its inputs and is never mutated after creation.
type DerivedSeries struct {
	// Values holds per-metric (year, value) series for years where the
	// metric is present. Keyed by the Metric* constants.
	Values map[string]Series `json:"values"`
	// Growth holds year-over-year percentage deltas. growth[i] pairs
	// years[i] against years[i-1]; the first year in view has no entry.
	Growth map[string]Series `json:"growth"`
	// CostRatio is cost_of_sales / revenue * 100 per year, absent where
	// revenue is zero or either figure is missing.
	CostRatio Series `json:"cost_ratio"`
	// TopShareholders maps year to the top-N shareholder ranking.
	TopShareholders map[int][]ShareholderEntry `json:"top_shareholders"`
}

// MetricValue extracts a named metric from a record, nil when absent.
// GrossMargin is synthesized from gross profit and revenue when both exist.
func (r *YearRecord) MetricValue(metric string) *float64 {
	switch metric {
	case MetricRevenue:
		return r.Revenue
	case MetricCostOfSales:
		return r.CostOfSales
	case MetricOperatingExpenses:
		return r.OperatingExpenses
	case MetricGrossProfit:
		return r.GrossProfit
	case MetricOperatingProfit:
		return r.OperatingProfit
	case MetricNetProfit:
		return r.NetProfit
	case MetricEPS:
		return r.EPS
	case MetricNetAssetPerShare:
		return r.NetAssetPerShare
	case MetricGrossMargin:
		if r.GrossProfitMargin != nil {
			return r.GrossProfitMargin
		}
		if r.GrossProfit != nil && r.Revenue != nil && *r.Revenue != 0 {
			m := *r.GrossProfit / *r.Revenue * 100
			return &m
		}
		return nil
	default:
		return nil
	}
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 {
	return &v
}
