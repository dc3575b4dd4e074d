// Package derive computes second-order series from a filtered view:
// year-over-year growth rates, cost-to-revenue ratios and shareholder
// rankings. This is the single source of truth for these figures; the
// presentation adapters never recompute them.
package derive

import (
	"sort"

	"github.com/finlens/finlens/internal/domain"
)

// DefaultTopN is the shareholder ranking size when the caller does not ask
// for a specific one.
const DefaultTopN = 10

// growthMetrics are the metrics that get a year-over-year growth series.
var growthMetrics = []string{
	domain.MetricRevenue,
	domain.MetricEPS,
	domain.MetricNetAssetPerShare,
	domain.MetricGrossMargin,
	domain.MetricGrossProfit,
	domain.MetricOperatingProfit,
	domain.MetricNetProfit,
}

// valueMetrics are all metrics emitted as plain (year, value) series.
var valueMetrics = []string{
	domain.MetricRevenue,
	domain.MetricCostOfSales,
	domain.MetricOperatingExpenses,
	domain.MetricGrossProfit,
	domain.MetricOperatingProfit,
	domain.MetricNetProfit,
	domain.MetricEPS,
	domain.MetricNetAssetPerShare,
	domain.MetricGrossMargin,
}

// Calculator derives metrics from filtered views.
type Calculator struct {
	topN int
}

// New creates a calculator with the default top-N ranking size.
func New() *Calculator {
	return &Calculator{topN: DefaultTopN}
}

// NewWithTopN creates a calculator with a custom ranking size.
func NewWithTopN(n int) *Calculator {
	if n <= 0 {
		n = DefaultTopN
	}
	return &Calculator{topN: n}
}

// Derive computes all derived series for a view. It never fails: metrics
// missing for a year are simply absent from the output, a zero denominator
// yields an absent value rather than Inf or NaN, and the first year in view
// has no growth entry because there is no prior year to compare against.
func (c *Calculator) Derive(view *domain.FilteredView) *domain.DerivedSeries {
	out := &domain.DerivedSeries{
		Values:          make(map[string]domain.Series),
		Growth:          make(map[string]domain.Series),
		TopShareholders: make(map[int][]domain.ShareholderEntry),
	}

	for _, metric := range valueMetrics {
		if s := valueSeries(view, metric); len(s) > 0 {
			out.Values[metric] = s
		}
	}

	for _, metric := range growthMetrics {
		if g := growthSeries(view, metric); len(g) > 0 {
			out.Growth[metric] = g
		}
	}

	out.CostRatio = costRatioSeries(view)

	for _, yr := range view.Records {
		if len(yr.Shareholders) > 0 {
			out.TopShareholders[yr.Year] = RankShareholders(yr.Shareholders, c.topN)
		}
	}

	return out
}

// valueSeries extracts the (year, value) pairs where the metric is present.
func valueSeries(view *domain.FilteredView, metric string) domain.Series {
	var s domain.Series
	for i := range view.Records {
		if v := view.Records[i].MetricValue(metric); v != nil {
			s = append(s, domain.Point{Year: view.Records[i].Year, Value: *v})
		}
	}
	return s
}

// growthSeries computes growth[i] = (value[i] - value[i-1]) / value[i-1] * 100
// against the previous record in the view. The first record has no entry;
// absence signals "no prior year in view", which is not the same as zero
// growth. Pairs where either value is missing, or the prior value is zero,
// are skipped.
func growthSeries(view *domain.FilteredView, metric string) domain.Series {
	var g domain.Series
	for i := 1; i < len(view.Records); i++ {
		curr := view.Records[i].MetricValue(metric)
		prev := view.Records[i-1].MetricValue(metric)
		if curr == nil || prev == nil || *prev == 0 {
			continue
		}
		g = append(g, domain.Point{
			Year:  view.Records[i].Year,
			Value: (*curr - *prev) / *prev * 100,
		})
	}
	return g
}

// costRatioSeries computes cost_of_sales / revenue * 100 per year. Years
// with zero revenue or a missing figure have no entry.
func costRatioSeries(view *domain.FilteredView) domain.Series {
	var s domain.Series
	for i := range view.Records {
		yr := &view.Records[i]
		if yr.CostOfSales == nil || yr.Revenue == nil || *yr.Revenue == 0 {
			continue
		}
		s = append(s, domain.Point{
			Year:  yr.Year,
			Value: *yr.CostOfSales / *yr.Revenue * 100,
		})
	}
	return s
}

// RankShareholders returns the top n entries by ownership percentage,
// descending. The sort is stable: ties keep their original input order.
// Ranking an already-ranked-and-truncated list with the same n is a no-op.
func RankShareholders(entries []domain.ShareholderEntry, n int) []domain.ShareholderEntry {
	if n <= 0 {
		n = DefaultTopN
	}

	ranked := make([]domain.ShareholderEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Percentage > ranked[j].Percentage
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
