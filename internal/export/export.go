// Package export renders filtered views into downloadable formats: a CSV
// metrics table and standalone chart specification documents.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/domain"
)

// csvColumns defines the metric column order of the CSV export. Derived
// columns follow the raw ones.
var csvColumns = []string{
	domain.MetricRevenue,
	domain.MetricCostOfSales,
	domain.MetricOperatingExpenses,
	domain.MetricGrossProfit,
	domain.MetricGrossMargin,
	domain.MetricOperatingProfit,
	domain.MetricNetProfit,
	domain.MetricEPS,
	domain.MetricNetAssetPerShare,
}

// CSV renders the view's metrics as a CSV table, one row per year. Absent
// values become empty cells, never zeros. Growth and cost ratio columns
// come from the derived series.
func CSV(view *domain.FilteredView, derived *domain.DerivedSeries) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"year"}, csvColumns...)
	header = append(header, "revenue_growth", "eps_growth", "cost_ratio")
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range view.Records {
		yr := &view.Records[i]
		row := []string{strconv.Itoa(yr.Year)}

		for _, metric := range csvColumns {
			row = append(row, formatOptional(yr.MetricValue(metric)))
		}
		row = append(row,
			formatSeriesValue(derived.Growth[domain.MetricRevenue], yr.Year),
			formatSeriesValue(derived.Growth[domain.MetricEPS], yr.Year),
			formatSeriesValue(derived.CostRatio, yr.Year),
		)

		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row for %d: %w", yr.Year, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// ChartJSON renders a chart specification as an indented standalone JSON
// document.
func ChartJSON(chart *charts.ChartSpec) ([]byte, error) {
	data, err := json.MarshalIndent(chart, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart %s: %w", chart.ID, err)
	}
	return data, nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatSeriesValue(s domain.Series, year int) string {
	v, ok := s.Value(year)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
