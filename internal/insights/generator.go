// Package insights generates rule-based narrative commentary from a
// dataset: per-topic insight statements and an executive summary. The rules
// are deterministic; the same dataset always yields the same text.
package insights

import (
	"fmt"
	"strings"

	"github.com/finlens/finlens/internal/domain"
)

// Conglomerate benchmark figures used for relative commentary.
const (
	benchmarkGrossMargin      = 24.5
	benchmarkNetMargin        = 12.0
	benchmarkNetAssetPerShare = 85.0
)

// epsSignificantGrowth separates "significant" from "moderate" EPS growth
// in the earnings commentary.
const epsSignificantGrowth = 15.0

// trendWindow is how many recent year-over-year deltas the revenue trend
// rule looks at.
const trendWindow = 3

// Generator produces insight statements and executive summaries.
type Generator struct{}

// New creates a generator.
func New() *Generator {
	return &Generator{}
}

// Generate returns one insight statement per rule that has enough data to
// fire. A dataset with no usable figures yields an empty slice, not an error.
func (g *Generator) Generate(ds *domain.Dataset) []string {
	var out []string

	company := companyName(ds)

	if s := revenueTrendInsight(ds, company); s != "" {
		out = append(out, s)
	}
	if s := profitabilityInsight(ds); s != "" {
		out = append(out, s)
	}
	if s := epsInsight(ds, company); s != "" {
		out = append(out, s)
	}
	if s := costStructureInsight(ds); s != "" {
		out = append(out, s)
	}
	if s := netAssetInsight(ds, ds.Currency); s != "" {
		out = append(out, s)
	}

	return out
}

func companyName(ds *domain.Dataset) string {
	if ds.Company != "" {
		return ds.Company
	}
	return "The company"
}

type yearDelta struct {
	year      int
	increased bool
	magnitude float64
}

// metricDeltas computes the year-over-year percentage deltas for a metric,
// skipping pairs with a missing or zero prior value.
func metricDeltas(ds *domain.Dataset, metric string) []yearDelta {
	var deltas []yearDelta
	for i := 1; i < len(ds.Years); i++ {
		curr := ds.Years[i].MetricValue(metric)
		prev := ds.Years[i-1].MetricValue(metric)
		if curr == nil || prev == nil || *prev == 0 {
			continue
		}
		growth := (*curr - *prev) / *prev * 100
		deltas = append(deltas, yearDelta{
			year:      ds.Years[i].Year,
			increased: growth > 0,
			magnitude: abs(growth),
		})
	}
	return deltas
}

// revenueTrendInsight comments on the last few years of revenue movement:
// a consistent direction gets a trend statement, anything else a volatility
// statement anchored on the most recent year.
func revenueTrendInsight(ds *domain.Dataset, company string) string {
	deltas := metricDeltas(ds, domain.MetricRevenue)
	if len(deltas) == 0 {
		return ""
	}

	window := deltas
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}

	consistent := true
	for _, d := range window {
		if d.increased != window[0].increased {
			consistent = false
			break
		}
	}

	if consistent {
		var sum float64
		years := make([]string, len(window))
		for i, d := range window {
			sum += d.magnitude
			years[i] = fmt.Sprintf("%d", d.year)
		}
		avg := sum / float64(len(window))

		direction, rate, reading := "decreasing", "decline", "This may indicate market challenges or strategic repositioning."
		if window[0].increased {
			direction, rate, reading = "increasing", "growth", "This indicates strong market performance and effective business strategies."
		}
		return fmt.Sprintf(
			"Revenue trend: %s has shown a consistently %s revenue trend in %s with an average %s rate of %.1f%%. %s",
			company, direction, strings.Join(years, ", "), rate, avg, reading)
	}

	latest := window[len(window)-1]
	direction, reading := "decreased", "which may require attention to revenue generation strategies."
	if latest.increased {
		direction, reading = "increased", "which may indicate a positive shift in market conditions or successful growth strategies."
	}
	return fmt.Sprintf(
		"Revenue volatility: %s has shown volatility in revenue over recent years. In %d, revenue %s by %.1f%%, %s",
		company, latest.year, direction, latest.magnitude, reading)
}

// profitabilityInsight compares the latest year's margins to conglomerate
// benchmarks.
func profitabilityInsight(ds *domain.Dataset) string {
	if len(ds.Years) == 0 {
		return ""
	}
	latest := &ds.Years[len(ds.Years)-1]

	gpMargin := latest.MetricValue(domain.MetricGrossMargin)
	npMargin := netProfitMargin(latest)
	if gpMargin == nil || npMargin == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Profitability (%d): ", latest.Year)

	if *gpMargin > benchmarkGrossMargin {
		fmt.Fprintf(&b, "gross profit margin of %.1f%% exceeds the industry average of %.1f%%, indicating strong pricing power and efficient cost of sales management. ",
			*gpMargin, benchmarkGrossMargin)
	} else {
		fmt.Fprintf(&b, "gross profit margin of %.1f%% is below the industry average of %.1f%%, suggesting room for improvement in pricing or cost of sales management. ",
			*gpMargin, benchmarkGrossMargin)
	}

	if *npMargin > benchmarkNetMargin {
		fmt.Fprintf(&b, "Net profit margin of %.1f%% is above the industry benchmark of %.1f%%, demonstrating effective overall cost control.",
			*npMargin, benchmarkNetMargin)
	} else {
		fmt.Fprintf(&b, "Net profit margin of %.1f%% is below the industry benchmark of %.1f%%, indicating opportunities in operating expense management.",
			*npMargin, benchmarkNetMargin)
	}

	return b.String()
}

// epsInsight comments on the latest year's earnings per share and its
// year-over-year movement.
func epsInsight(ds *domain.Dataset, company string) string {
	deltas := metricDeltas(ds, domain.MetricEPS)
	if len(deltas) == 0 {
		return ""
	}
	latest := &ds.Years[len(ds.Years)-1]
	if latest.EPS == nil {
		return ""
	}
	d := deltas[len(deltas)-1]
	if d.year != latest.Year {
		return ""
	}

	if d.increased {
		reading := "This moderate growth indicates steady improvement in profitability."
		if d.magnitude > epsSignificantGrowth {
			reading = "This significant growth suggests strong profitability and effective capital allocation."
		}
		return fmt.Sprintf(
			"Earnings per share (%d): %s recorded an EPS of %.2f %s, a %.1f%% increase from the previous year. %s",
			latest.Year, company, *latest.EPS, ds.Currency, d.magnitude, reading)
	}
	return fmt.Sprintf(
		"Earnings per share (%d): %s recorded an EPS of %.2f %s, a %.1f%% decrease from the previous year. This decline may raise concerns about profitability or share dilution if the trend continues.",
		latest.Year, company, *latest.EPS, ds.Currency, d.magnitude)
}

// costStructureInsight compares the latest year's cost ratios against the
// prior year. Moves under one percentage point read as stable.
func costStructureInsight(ds *domain.Dataset) string {
	if len(ds.Years) < 2 {
		return ""
	}
	latest := &ds.Years[len(ds.Years)-1]
	prev := &ds.Years[len(ds.Years)-2]

	cogs := revenueRatio(latest, latest.CostOfSales)
	prevCogs := revenueRatio(prev, prev.CostOfSales)
	opex := revenueRatio(latest, latest.OperatingExpenses)
	prevOpex := revenueRatio(prev, prev.OperatingExpenses)
	if cogs == nil || prevCogs == nil || opex == nil || prevOpex == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cost structure (%d): ", latest.Year)

	cogsChange := *cogs - *prevCogs
	switch {
	case abs(cogsChange) < 1:
		fmt.Fprintf(&b, "cost of sales remained stable at %.1f%% of revenue. ", *cogs)
	case cogsChange > 0:
		fmt.Fprintf(&b, "cost of sales increased to %.1f%% of revenue (+%.1f percentage points), which may indicate rising input costs or pricing pressure. ", *cogs, cogsChange)
	default:
		fmt.Fprintf(&b, "cost of sales decreased to %.1f%% of revenue (%.1f percentage points), suggesting improved sourcing efficiency. ", *cogs, cogsChange)
	}

	opexChange := *opex - *prevOpex
	switch {
	case abs(opexChange) < 1:
		fmt.Fprintf(&b, "Operating expenses remained stable at %.1f%% of revenue, indicating consistent operational efficiency.", *opex)
	case opexChange > 0:
		fmt.Fprintf(&b, "Operating expenses increased to %.1f%% of revenue (+%.1f percentage points), which may require attention to cost control.", *opex, opexChange)
	default:
		fmt.Fprintf(&b, "Operating expenses decreased to %.1f%% of revenue (%.1f percentage points), reflecting successful cost optimization.", *opex, opexChange)
	}

	return b.String()
}

// netAssetInsight compares the latest net asset per share to the benchmark.
func netAssetInsight(ds *domain.Dataset, currency string) string {
	if len(ds.Years) == 0 {
		return ""
	}
	latest := &ds.Years[len(ds.Years)-1]
	if latest.NetAssetPerShare == nil {
		return ""
	}
	naps := *latest.NetAssetPerShare

	if naps > benchmarkNetAssetPerShare {
		premium := (naps - benchmarkNetAssetPerShare) / benchmarkNetAssetPerShare * 100
		return fmt.Sprintf(
			"Net asset value (%d): net asset per share of %.2f %s is %.1f%% above the industry average, indicating strong balance sheet health and capacity for future growth investments.",
			latest.Year, naps, currency, premium)
	}
	discount := (benchmarkNetAssetPerShare - naps) / benchmarkNetAssetPerShare * 100
	return fmt.Sprintf(
		"Net asset value (%d): net asset per share of %.2f %s is %.1f%% below the industry average, suggesting opportunities to improve asset utilization or reduce liabilities.",
		latest.Year, naps, currency, discount)
}

func netProfitMargin(yr *domain.YearRecord) *float64 {
	return revenueRatio(yr, yr.NetProfit)
}

func revenueRatio(yr *domain.YearRecord, v *float64) *float64 {
	if v == nil || yr.Revenue == nil || *yr.Revenue == 0 {
		return nil
	}
	r := *v / *yr.Revenue * 100
	return &r
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
