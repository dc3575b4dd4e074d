package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/derive"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/filter"
)

func testView() (*domain.FilteredView, *domain.DerivedSeries) {
	ds := &domain.Dataset{
		ID:       "ds-test",
		Currency: domain.CurrencyLKR,
		Years: []domain.YearRecord{
			{Year: 2023, Revenue: domain.Float(100), CostOfSales: domain.Float(65), EPS: domain.Float(10)},
			{Year: 2024, Revenue: domain.Float(80), CostOfSales: domain.Float(60)},
		},
	}
	view := filter.New().Apply(ds, domain.FilterSelection{}, 1.0)
	return view, derive.New().Derive(view)
}

func TestCSVLayout(t *testing.T) {
	view, derived := testView()

	out, err := CSV(view, derived)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus one row per year")

	header := records[0]
	assert.Equal(t, "year", header[0])
	assert.Contains(t, header, "revenue_growth")
	assert.Contains(t, header, "cost_ratio")

	byName := func(row []string, col string) string {
		for i, name := range header {
			if name == col {
				return row[i]
			}
		}
		t.Fatalf("column %s not found", col)
		return ""
	}

	assert.Equal(t, "2023", records[1][0])
	assert.Equal(t, "100", byName(records[1], "revenue"))
	assert.Equal(t, "65", byName(records[1], "cost_ratio"))
	// First year has no growth entry.
	assert.Equal(t, "", byName(records[1], "revenue_growth"))

	assert.Equal(t, "-20", byName(records[2], "revenue_growth"))
	// Absent metrics are empty cells, not zeros.
	assert.Equal(t, "", byName(records[2], "eps"))
	assert.Equal(t, "", byName(records[2], "eps_growth"))
}

func TestChartJSONRoundTrips(t *testing.T) {
	view, derived := testView()
	chart := charts.NewService(zerolog.Nop()).RevenueTrend(view, derived)

	out, err := ChartJSON(chart)
	require.NoError(t, err)

	var decoded charts.ChartSpec
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, chart.ID, decoded.ID)
	assert.Len(t, decoded.Series, len(chart.Series))
}
