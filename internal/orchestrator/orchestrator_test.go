package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/derive"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/events"
	"github.com/finlens/finlens/internal/filter"
)

// stubRates is a controllable rate source for tests.
type stubRates struct {
	mu    sync.Mutex
	rate  float64
	err   error
	delay time.Duration
	calls int
}

func (s *stubRates) Rate(ctx context.Context, from, to string) (float64, error) {
	s.mu.Lock()
	s.calls++
	rate, err, delay := s.rate, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return rate, err
}

func testDataset() *domain.Dataset {
	ds := &domain.Dataset{
		ID:       "ds-test",
		Company:  "John Keells Holdings PLC",
		Currency: domain.CurrencyLKR,
		Insights: []string{"Revenue grew steadily."},
		Summary:  "A good year.",
	}
	for i, rev := range []float64{135.5, 138.0, 127.0, 218.0, 276.0, 291.0} {
		ds.Years = append(ds.Years, domain.YearRecord{
			Year:        2019 + i,
			Revenue:     domain.Float(rev),
			CostOfSales: domain.Float(rev * 0.7),
		})
	}
	return ds
}

func newTestOrchestrator(rates RateProvider) *Orchestrator {
	return New(
		filter.New(),
		derive.New(),
		derive.NewCache(time.Minute),
		charts.NewService(zerolog.Nop()),
		rates,
		zerolog.Nop(),
	)
}

func TestStartsEmpty(t *testing.T) {
	o := newTestOrchestrator(nil)
	view := o.Current()
	assert.Equal(t, StateEmpty, view.State)
	assert.Nil(t, view.Filtered)
}

func TestSetDatasetProducesReadyView(t *testing.T) {
	o := newTestOrchestrator(nil)

	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	view := o.Current()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, "ds-test", view.DatasetID)
	require.NotNil(t, view.Filtered)
	assert.Len(t, view.Filtered.Records, 6)
	assert.NotEmpty(t, view.Charts)
	assert.Equal(t, []string{"Revenue grew steadily."}, view.Insights)
	// Selection resets to the native currency and full range.
	assert.Equal(t, domain.CurrencyLKR, view.Selection.Currency)
	assert.Empty(t, view.Selection.Years)
}

func TestApplySelectionSubset(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	err := o.ApplySelection(context.Background(), domain.FilterSelection{
		Years:    []int{2022, 2023, 2024},
		Currency: domain.CurrencyLKR,
	})
	require.NoError(t, err)

	view := o.Current()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, []int{2022, 2023, 2024}, view.Filtered.YearNumbers())
}

func TestApplySelectionValidation(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	err := o.ApplySelection(context.Background(), domain.FilterSelection{Currency: "GBP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized currency")

	err = o.ApplySelection(context.Background(), domain.FilterSelection{Industry: "Mining"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized industry")

	// Failed validation leaves the view untouched.
	assert.Equal(t, StateReady, o.Current().State)
}

func TestApplySelectionWithoutDataset(t *testing.T) {
	o := newTestOrchestrator(nil)
	err := o.ApplySelection(context.Background(), domain.FilterSelection{})
	require.Error(t, err)
}

func TestCurrencyConversionUsesRateProvider(t *testing.T) {
	rates := &stubRates{rate: 1.0 / 200.0}
	o := newTestOrchestrator(rates)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	err := o.ApplySelection(context.Background(), domain.FilterSelection{Currency: domain.CurrencyUSD})
	require.NoError(t, err)

	view := o.Current()
	assert.Equal(t, domain.CurrencyUSD, view.Filtered.Currency)
	assert.InDelta(t, 135.5/200.0, *view.Filtered.Records[0].Revenue, 1e-9)
}

func TestErrorRetainsLastGoodView(t *testing.T) {
	rates := &stubRates{err: fmt.Errorf("rate service down")}
	o := newTestOrchestrator(rates)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	err := o.ApplySelection(context.Background(), domain.FilterSelection{Currency: domain.CurrencyUSD})
	require.Error(t, err)

	view := o.Current()
	assert.Equal(t, StateError, view.State)
	assert.Contains(t, view.Error, "rate service down")
	// Last good data stays on screen.
	require.NotNil(t, view.Filtered)
	assert.Len(t, view.Filtered.Records, 6)
	assert.Equal(t, domain.CurrencyLKR, view.Filtered.Currency)
}

func TestLastRequestWins(t *testing.T) {
	rates := &stubRates{rate: 1.0 / 200.0, delay: 100 * time.Millisecond}
	o := newTestOrchestrator(rates)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Slow conversion request.
		o.ApplySelection(context.Background(), domain.FilterSelection{Currency: domain.CurrencyUSD})
	}()

	// Give the slow request time to claim its sequence number, then
	// supersede it with a fast native-currency request.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.ApplySelection(context.Background(), domain.FilterSelection{
		Years:    []int{2024},
		Currency: domain.CurrencyLKR,
	}))
	wg.Wait()

	// The slow request finished last but must not overwrite the newer view.
	view := o.Current()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, domain.CurrencyLKR, view.Filtered.Currency)
	assert.Equal(t, []int{2024}, view.Filtered.YearNumbers())
}

// jitterRates adds scheduling variance so concurrent refreshes finish out
// of order.
type jitterRates struct {
	rate float64
}

func (j jitterRates) Rate(ctx context.Context, from, to string) (float64, error) {
	time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
	return j.rate, nil
}

func TestConcurrentSelectionsSettleOnNewest(t *testing.T) {
	o := newTestOrchestrator(jitterRates{rate: 1.0 / 200.0})
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	selections := []domain.FilterSelection{
		{Currency: domain.CurrencyUSD},
		{Years: []int{2024}, Currency: domain.CurrencyLKR},
		{Years: []int{2022, 2023}, Currency: domain.CurrencyUSD},
		{Currency: domain.CurrencyLKR},
	}

	// Regardless of completion order, the published view must always end on
	// the newest sequence number; a superseded refresh must never regress it
	// or leave the state stuck in Loading.
	for round := 0; round < 200; round++ {
		before := o.Current().Sequence

		var wg sync.WaitGroup
		for _, sel := range selections {
			wg.Add(1)
			go func(sel domain.FilterSelection) {
				defer wg.Done()
				o.ApplySelection(context.Background(), sel)
			}(sel)
		}
		wg.Wait()

		view := o.Current()
		require.Equal(t, StateReady, view.State, "round %d", round)
		require.Equal(t, before+uint64(len(selections)), view.Sequence, "round %d", round)
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	first := o.Current().Sequence
	require.NoError(t, o.Refresh(context.Background()))
	second := o.Current().Sequence
	assert.Greater(t, second, first)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	o := newTestOrchestrator(nil)
	ch := o.Subscribe()
	defer o.Unsubscribe(ch)

	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Contains(t, types, events.TypeDatasetLoaded)
	assert.Contains(t, types, events.TypeStateChanged)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	o := newTestOrchestrator(nil)
	ch := o.Subscribe()
	o.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op.
	o.Unsubscribe(ch)
}

func TestDerivedCacheReusedAcrossIdenticalSelections(t *testing.T) {
	o := newTestOrchestrator(nil)
	require.NoError(t, o.SetDataset(context.Background(), testDataset()))

	sel := domain.FilterSelection{Years: []int{2023, 2024}, Currency: domain.CurrencyLKR}
	require.NoError(t, o.ApplySelection(context.Background(), sel))
	first := o.Current().Derived

	require.NoError(t, o.ApplySelection(context.Background(), sel))
	second := o.Current().Derived

	assert.Equal(t, first, second)
}
