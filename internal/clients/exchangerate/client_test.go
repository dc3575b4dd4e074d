package exchangerate

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/clientdata"
)

func testCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := clientdata.NewRepository(db)
	require.NoError(t, err)
	return repo
}

func rateServer(t *testing.T, calls *int64, rate float64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		fmt.Fprintf(w, `{"base":"LKR","rates":{"USD":%g,"EUR":0.0046}}`, rate)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRateSameCurrency(t *testing.T) {
	client := NewClient("", nil, zerolog.Nop())

	rate, err := client.Rate(context.Background(), "LKR", "LKR")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestRateFetchesAndCaches(t *testing.T) {
	var calls int64
	srv := rateServer(t, &calls, 0.005)
	repo := testCacheRepo(t)
	client := NewClient(srv.URL, repo, zerolog.Nop())

	rate, err := client.Rate(context.Background(), "LKR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.005, rate, 1e-9)

	// Second call is served from cache.
	rate, err = client.Rate(context.Background(), "LKR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.005, rate, 1e-9)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestRateStaleFallbackOnAPIError(t *testing.T) {
	repo := testCacheRepo(t)

	// Seed an expired cache entry.
	require.NoError(t, repo.Store("exchangerate", "LKR:USD", cachedExchangeRate{Rate: 0.0048}, -1))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, repo, zerolog.Nop())
	rate, err := client.Rate(context.Background(), "LKR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0048, rate, 1e-9)
}

func TestRateErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, nil, zerolog.Nop())
	_, err := client.Rate(context.Background(), "LKR", "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRateMissingPair(t *testing.T) {
	var calls int64
	srv := rateServer(t, &calls, 0.005)
	client := NewClient(srv.URL, nil, zerolog.Nop())

	_, err := client.Rate(context.Background(), "LKR", "JPY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate not found")
}

func TestRefreshJobWarmsCache(t *testing.T) {
	var calls int64
	srv := rateServer(t, &calls, 0.005)
	repo := testCacheRepo(t)
	client := NewClient(srv.URL, repo, zerolog.Nop())

	job := NewRefreshJob(client, "LKR", "USD", zerolog.Nop())
	assert.Equal(t, "exchange_rate_refresh", job.Name())
	require.NoError(t, job.Run())

	data, err := repo.GetIfFresh("exchangerate", "LKR:USD")
	require.NoError(t, err)
	assert.NotNil(t, data)
}
