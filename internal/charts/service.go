package charts

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/finlens/finlens/internal/domain"
)

// Benchmark reference lines drawn on the margin and net asset charts.
const (
	benchmarkGrossMargin      = 24.5
	benchmarkNetAssetPerShare = 85.0
)

// marketEvents are fixed contextual annotations attached to charts whenever
// the year is in view.
var marketEvents = map[int]string{
	2020: "COVID-19 pandemic disruption",
	2022: "Sri Lankan economic crisis",
}

// Chart ids served by the catalog.
const (
	ChartRevenueTrend      = "revenue_trend"
	ChartCostVsExpenses    = "cost_vs_expenses"
	ChartGrossProfitMargin = "gross_profit_margin"
	ChartEPSTrend          = "eps_trend"
	ChartNetAssetPerShare  = "net_asset_per_share"
	ChartTopShareholders   = "top_shareholders"
)

// ChartIDs lists every chart the service can build, in display order.
var ChartIDs = []string{
	ChartRevenueTrend,
	ChartCostVsExpenses,
	ChartGrossProfitMargin,
	ChartEPSTrend,
	ChartNetAssetPerShare,
	ChartTopShareholders,
}

// Service builds chart specifications.
type Service struct {
	log zerolog.Logger
}

// NewService creates a charts service.
func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("service", "charts").Logger()}
}

// Build returns the chart with the given id, or an error for unknown ids.
// The shareholder chart uses the latest year in view.
func (s *Service) Build(id string, view *domain.FilteredView, derived *domain.DerivedSeries) (*ChartSpec, error) {
	switch id {
	case ChartRevenueTrend:
		return s.RevenueTrend(view, derived), nil
	case ChartCostVsExpenses:
		return s.CostVsExpenses(view, derived), nil
	case ChartGrossProfitMargin:
		return s.GrossProfitMargin(view, derived), nil
	case ChartEPSTrend:
		return s.EPSTrend(view, derived), nil
	case ChartNetAssetPerShare:
		return s.NetAssetPerShare(view, derived), nil
	case ChartTopShareholders:
		return s.TopShareholders(view, derived), nil
	default:
		return nil, fmt.Errorf("unknown chart id: %s", id)
	}
}

// Catalog builds every chart for a view. Charts with no data are skipped.
func (s *Service) Catalog(view *domain.FilteredView, derived *domain.DerivedSeries) []*ChartSpec {
	var out []*ChartSpec
	for _, id := range ChartIDs {
		chart, err := s.Build(id, view, derived)
		if err != nil {
			continue
		}
		if chart.Empty() {
			s.log.Debug().Str("chart", id).Msg("Skipping chart with no data")
			continue
		}
		out = append(out, chart)
	}
	return out
}

// RevenueTrend is the headline revenue line with growth and event
// annotations.
func (s *Service) RevenueTrend(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartRevenueTrend,
		Title:      "Revenue Trend",
		XAxisLabel: "Year",
		YAxisLabel: fmt.Sprintf("Revenue (Billion %s)", view.Currency),
	}

	chart.Series = append(chart.Series, monetarySeries(
		"Revenue", KindLine, derived.Values[domain.MetricRevenue], view.Currency))
	chart.Annotations = yearAnnotations(view, derived.Growth[domain.MetricRevenue])
	return chart
}

// CostVsExpenses compares cost of sales and operating expenses as grouped
// bars, with the cost-to-revenue ratio as an overlay line.
func (s *Service) CostVsExpenses(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartCostVsExpenses,
		Title:      "Cost of Sales vs Operating Expenses",
		XAxisLabel: "Year",
		YAxisLabel: fmt.Sprintf("Amount (Billion %s)", view.Currency),
	}

	chart.Series = append(chart.Series,
		monetarySeries("Cost of Sales", KindGroupedBar, derived.Values[domain.MetricCostOfSales], view.Currency),
		monetarySeries("Operating Expenses", KindGroupedBar, derived.Values[domain.MetricOperatingExpenses], view.Currency),
		percentSeries("Cost to Revenue Ratio", KindLine, derived.CostRatio, false),
	)
	chart.Annotations = eventAnnotations(view)
	return chart
}

// GrossProfitMargin is the margin line against the industry average.
func (s *Service) GrossProfitMargin(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartGrossProfitMargin,
		Title:      "Gross Profit Margin",
		XAxisLabel: "Year",
		YAxisLabel: "Margin (%)",
	}

	margin := derived.Values[domain.MetricGrossMargin]
	chart.Series = append(chart.Series,
		percentSeries("Gross Profit Margin", KindLine, margin, false),
		benchmarkSeries("Industry Average", margin, benchmarkGrossMargin, "%.1f%%"),
	)
	chart.Annotations = yearAnnotations(view, derived.Growth[domain.MetricGrossMargin])
	return chart
}

// EPSTrend is the earnings per share line with growth annotations.
func (s *Service) EPSTrend(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartEPSTrend,
		Title:      "Earnings Per Share",
		XAxisLabel: "Year",
		YAxisLabel: fmt.Sprintf("EPS (%s)", view.Currency),
	}

	chart.Series = append(chart.Series, perShareSeries(
		"EPS", KindBar, derived.Values[domain.MetricEPS], view.Currency))
	chart.Annotations = yearAnnotations(view, derived.Growth[domain.MetricEPS])
	return chart
}

// NetAssetPerShare is the net asset per share line against the industry
// benchmark.
func (s *Service) NetAssetPerShare(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartNetAssetPerShare,
		Title:      "Net Asset Per Share",
		XAxisLabel: "Year",
		YAxisLabel: fmt.Sprintf("Net Asset Per Share (%s)", view.Currency),
	}

	naps := derived.Values[domain.MetricNetAssetPerShare]
	chart.Series = append(chart.Series,
		perShareSeries("Net Asset Per Share", KindLine, naps, view.Currency),
		benchmarkSeries("Industry Benchmark", naps, benchmarkNetAssetPerShare,
			"%.2f "+view.Currency),
	)
	chart.Annotations = yearAnnotations(view, derived.Growth[domain.MetricNetAssetPerShare])
	return chart
}

// TopShareholders is a horizontal bar ranking for the latest year in view
// that has a shareholder table.
func (s *Service) TopShareholders(view *domain.FilteredView, derived *domain.DerivedSeries) *ChartSpec {
	chart := &ChartSpec{
		ID:         ChartTopShareholders,
		Title:      "Top Shareholders",
		XAxisLabel: "Ownership (%)",
		YAxisLabel: "Shareholder",
	}

	year, ranking := latestRanking(view, derived)
	if ranking == nil {
		return chart
	}
	chart.Title = fmt.Sprintf("Top Shareholders (%d)", year)

	series := SeriesSpec{Name: "Ownership", Kind: KindHorizontalBar}
	for _, sh := range ranking {
		series.Points = append(series.Points, PointSpec{
			X:       sh.Name,
			Y:       sh.Percentage,
			Tooltip: fmt.Sprintf("%s: %.2f%%", sh.Name, sh.Percentage),
		})
	}
	chart.Series = append(chart.Series, series)
	return chart
}

// latestRanking returns the most recent in-view year carrying a ranking.
func latestRanking(view *domain.FilteredView, derived *domain.DerivedSeries) (int, []domain.ShareholderEntry) {
	for i := len(view.Records) - 1; i >= 0; i-- {
		year := view.Records[i].Year
		if ranking, ok := derived.TopShareholders[year]; ok && len(ranking) > 0 {
			return year, ranking
		}
	}
	return 0, nil
}

func monetarySeries(name, kind string, series domain.Series, currency string) SeriesSpec {
	out := SeriesSpec{Name: name, Kind: kind}
	for _, p := range series {
		out.Points = append(out.Points, PointSpec{
			X:       fmt.Sprintf("%d", p.Year),
			Y:       p.Value,
			Tooltip: fmt.Sprintf("%d: %.2f Billion %s", p.Year, p.Value, currency),
		})
	}
	return out
}

func perShareSeries(name, kind string, series domain.Series, currency string) SeriesSpec {
	out := SeriesSpec{Name: name, Kind: kind}
	for _, p := range series {
		out.Points = append(out.Points, PointSpec{
			X:       fmt.Sprintf("%d", p.Year),
			Y:       p.Value,
			Tooltip: fmt.Sprintf("%d: %.2f %s", p.Year, p.Value, currency),
		})
	}
	return out
}

func percentSeries(name, kind string, series domain.Series, dashed bool) SeriesSpec {
	out := SeriesSpec{Name: name, Kind: kind, Dashed: dashed}
	for _, p := range series {
		out.Points = append(out.Points, PointSpec{
			X:       fmt.Sprintf("%d", p.Year),
			Y:       p.Value,
			Tooltip: fmt.Sprintf("%d: %.1f%%", p.Year, p.Value),
		})
	}
	return out
}

// benchmarkSeries draws a flat dashed reference line across the years of
// the anchor series.
func benchmarkSeries(name string, anchor domain.Series, value float64, tooltipFormat string) SeriesSpec {
	out := SeriesSpec{Name: name, Kind: KindLine, Dashed: true}
	for _, p := range anchor {
		out.Points = append(out.Points, PointSpec{
			X:       fmt.Sprintf("%d", p.Year),
			Y:       value,
			Tooltip: name + ": " + fmt.Sprintf(tooltipFormat, value),
		})
	}
	return out
}

// yearAnnotations merges growth callouts with market event labels, in view
// order.
func yearAnnotations(view *domain.FilteredView, growth domain.Series) []Annotation {
	var out []Annotation
	for _, yr := range view.YearNumbers() {
		if g, ok := growth.Value(yr); ok {
			out = append(out, Annotation{Year: yr, Label: fmt.Sprintf("%+.1f%%", g)})
		}
		if label, ok := marketEvents[yr]; ok {
			out = append(out, Annotation{Year: yr, Label: label})
		}
	}
	return out
}

func eventAnnotations(view *domain.FilteredView) []Annotation {
	var out []Annotation
	for _, yr := range view.YearNumbers() {
		if label, ok := marketEvents[yr]; ok {
			out = append(out, Annotation{Year: yr, Label: label})
		}
	}
	return out
}
