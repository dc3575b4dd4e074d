package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/config"
	"github.com/finlens/finlens/internal/dataset"
	"github.com/finlens/finlens/internal/derive"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/filter"
	"github.com/finlens/finlens/internal/forecast"
	"github.com/finlens/finlens/internal/insights"
	"github.com/finlens/finlens/internal/orchestrator"
)

type fixedRates struct {
	rate float64
	err  error
}

func (f fixedRates) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	return f.rate, f.err
}

func newTestServer(t *testing.T, rates fixedRates) *Server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := dataset.NewRepository(db)
	require.NoError(t, err)

	log := zerolog.Nop()
	chartSvc := charts.NewService(log)
	orch := orchestrator.New(
		filter.New(),
		derive.New(),
		derive.NewCache(time.Minute),
		chartSvc,
		rates,
		log,
	)

	return New(Config{
		Log:          log,
		Config:       &config.Config{DataDir: t.TempDir(), NativeCurrency: domain.CurrencyLKR},
		Port:         0,
		DevMode:      true,
		Orchestrator: orch,
		DatasetRepo:  repo,
		Charts:       chartSvc,
		Forecaster:   forecast.New(),
		Insights:     insights.New(),
		Extraction:   nil,
		Rates:        rates,
	})
}

func uploadPayload() []byte {
	years := ""
	revenues := []float64{135.5, 138.0, 127.0, 218.0, 276.0, 291.0}
	for i, rev := range revenues {
		if i > 0 {
			years += ","
		}
		years += fmt.Sprintf(
			`{"year": %d, "revenue": %g, "cost_of_sales": %g, "eps": %g}`,
			2019+i, rev, rev*0.7, 10+float64(i))
	}
	return []byte(fmt.Sprintf(
		`{"company": "John Keells Holdings PLC", "currency": "LKR", "years": [%s]}`, years))
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadDataset(t *testing.T, s *Server) {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/api/upload", uploadPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, orchestrator.StateEmpty, body["state"])
}

func TestUploadJSONDataset(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})

	rec := doRequest(t, s, http.MethodPost, "/api/upload", uploadPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			DatasetID string `json:"dataset_id"`
			Company   string `json:"company"`
			Years     []int  `json:"years"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.DatasetID)
	assert.Equal(t, "John Keells Holdings PLC", body.Data.Company)
	assert.Equal(t, []int{2019, 2020, 2021, 2022, 2023, 2024}, body.Data.Years)

	// The view is ready and narrative was generated.
	state := doRequest(t, s, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, state.Code)
	var sb struct {
		Data orchestrator.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(state.Body.Bytes(), &sb))
	assert.Equal(t, orchestrator.StateReady, sb.Data.State)
	assert.NotEmpty(t, sb.Data.Insights)
	assert.NotEmpty(t, sb.Data.Summary)
	assert.NotEmpty(t, sb.Data.Charts)
}

func TestUploadValidationErrorListsViolations(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})

	payload := []byte(`{"currency": "GBP", "years": [{"year": 2020, "revenue": -5}]}`)
	rec := doRequest(t, s, http.MethodPost, "/api/upload", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error      string              `json:"error"`
		Violations []dataset.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dataset validation failed", body.Error)
	assert.Len(t, body.Violations, 2)
}

func TestFilterEndpointGET(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/filter?years=2022,2023,2024&currency=LKR", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data orchestrator.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []int{2022, 2023, 2024}, body.Data.Filtered.YearNumbers())
}

func TestFilterEndpointPOSTWithConversion(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 1.0 / 200.0})
	uploadDataset(t, s)

	sel := []byte(`{"years": [2024], "currency": "USD"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/filter", sel)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data orchestrator.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CurrencyUSD, body.Data.Filtered.Currency)
	assert.InDelta(t, 291.0/200.0, *body.Data.Filtered.Records[0].Revenue, 1e-9)
}

func TestFilterEndpointBadYear(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/filter?years=twenty", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterEndpointRateFailure(t *testing.T) {
	s := newTestServer(t, fixedRates{err: fmt.Errorf("rate service down")})
	uploadDataset(t, s)

	sel := []byte(`{"currency": "USD"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/filter", sel)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	// Last good view rides along with the error.
	var body struct {
		Error string            `json:"error"`
		Data  orchestrator.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "rate service down")
	assert.NotNil(t, body.Data.Filtered)
}

func TestForecastEndpoint(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodPost, "/api/forecast", []byte(`{"metric": "revenue", "periods": 3}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data forecast.Forecast `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "revenue", body.Data.Metric)
	assert.Len(t, body.Data.Projected, 3)
	assert.Equal(t, 2025, body.Data.Projected[0].Year)
}

func TestForecastWithoutDataset(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})

	rec := doRequest(t, s, http.MethodPost, "/api/forecast", []byte(`{"metric": "revenue"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestForecastUnknownMetric(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodPost, "/api/forecast", []byte(`{"metric": "ebitda"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChartEndpoints(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/charts/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/charts/revenue_trend", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data charts.ChartSpec `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, charts.ChartRevenueTrend, body.Data.ID)

	rec = doRequest(t, s, http.MethodGet, "/api/charts/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "year,revenue")
}

func TestDatasetLifecycle(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})
	uploadDataset(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/datasets/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Data []dataset.StoredDataset `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	id := list.Data[0].ID

	rec = doRequest(t, s, http.MethodGet, "/api/datasets/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The active dataset cannot be deleted.
	rec = doRequest(t, s, http.MethodDelete, "/api/datasets/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/datasets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateEndpoint(t *testing.T) {
	s := newTestServer(t, fixedRates{rate: 0.005})

	rec := doRequest(t, s, http.MethodGet, "/api/currency/rate/LKR/USD", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Rate float64 `json:"rate"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 0.005, body.Data.Rate, 1e-9)
}
