// Package orchestrator coordinates the dashboard view lifecycle: it holds
// the active dataset and filter selection, runs the filter, derivation and
// chart pipeline on every change, and publishes the resulting view.
//
// Concurrency model: every refresh takes a monotonically increasing
// sequence number. A refresh only commits if its sequence is still the
// newest when it finishes, so rapid filter changes resolve to the last
// request and intermediate results are discarded. A failed refresh moves
// the state to Error but keeps the last good view for display.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/derive"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/events"
	"github.com/finlens/finlens/internal/filter"
)

// View states.
const (
	StateEmpty   = "empty"
	StateLoading = "loading"
	StateReady   = "ready"
	StateError   = "error"
)

// View is the published dashboard state. It is a snapshot: the orchestrator
// hands out copies and never mutates a View after publishing it.
type View struct {
	State     string    `json:"state"`
	Sequence  uint64    `json:"sequence"`
	UpdatedAt time.Time `json:"updated_at"`

	DatasetID string                 `json:"dataset_id,omitempty"`
	Company   string                 `json:"company,omitempty"`
	Selection domain.FilterSelection `json:"selection"`

	Filtered *domain.FilteredView  `json:"filtered,omitempty"`
	Derived  *domain.DerivedSeries `json:"derived,omitempty"`
	Charts   []*charts.ChartSpec   `json:"charts,omitempty"`

	Insights []string `json:"insights,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Error describes the latest failed refresh. Set only in StateError;
	// the rest of the view retains the last successful result.
	Error string `json:"error,omitempty"`
}

// RateProvider supplies currency conversion rates in units of target
// currency per unit of source currency.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Orchestrator owns the active dataset and view.
type Orchestrator struct {
	engine *filter.Engine
	calc   *derive.Calculator
	cache  *derive.Cache
	charts *charts.Service
	rates  RateProvider
	log    zerolog.Logger

	seq uint64 // Monotonic refresh counter, atomic.

	mu        sync.RWMutex
	dataset   *domain.Dataset
	selection domain.FilterSelection
	view      View

	subMu       sync.Mutex
	subscribers map[chan events.Event]struct{}
}

// New creates an orchestrator in the Empty state.
func New(
	engine *filter.Engine,
	calc *derive.Calculator,
	cache *derive.Cache,
	chartSvc *charts.Service,
	rates RateProvider,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:      engine,
		calc:        calc,
		cache:       cache,
		charts:      chartSvc,
		rates:       rates,
		log:         log.With().Str("component", "orchestrator").Logger(),
		view:        View{State: StateEmpty, UpdatedAt: time.Now().UTC()},
		subscribers: make(map[chan events.Event]struct{}),
	}
}

// Current returns a snapshot of the published view.
func (o *Orchestrator) Current() View {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.view
}

// Dataset returns the active dataset, or nil before the first load.
func (o *Orchestrator) Dataset() *domain.Dataset {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dataset
}

// Selection returns the active filter selection.
func (o *Orchestrator) Selection() domain.FilterSelection {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.selection
}

// SetDataset installs a dataset as the active one, resets the selection to
// the dataset's native currency and full year range, and refreshes. Called
// on upload and on startup reload.
func (o *Orchestrator) SetDataset(ctx context.Context, ds *domain.Dataset) error {
	o.mu.Lock()
	o.dataset = ds
	o.selection = domain.FilterSelection{
		Industry: domain.IndustryAll,
		Currency: ds.Currency,
	}
	o.mu.Unlock()

	if o.cache != nil {
		o.cache.InvalidateDataset(ds.ID)
	}

	o.publish(events.Event{
		Type:      events.TypeDatasetLoaded,
		DatasetID: ds.ID,
		Timestamp: time.Now().UTC(),
	})

	return o.refresh(ctx)
}

// ApplySelection validates and installs a new filter selection, then
// refreshes the view. Concurrent calls race safely: the one holding the
// highest sequence number wins.
func (o *Orchestrator) ApplySelection(ctx context.Context, sel domain.FilterSelection) error {
	if err := validateSelection(sel); err != nil {
		return err
	}

	o.mu.Lock()
	if o.dataset == nil {
		o.mu.Unlock()
		return fmt.Errorf("no dataset loaded")
	}
	if sel.Industry == "" {
		sel.Industry = domain.IndustryAll
	}
	if sel.Currency == "" {
		sel.Currency = o.dataset.Currency
	}
	o.selection = sel
	o.mu.Unlock()

	o.publish(events.Event{
		Type:      events.TypeFilterApplied,
		Timestamp: time.Now().UTC(),
	})

	return o.refresh(ctx)
}

// Refresh recomputes the view from the current dataset and selection.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.refresh(ctx)
}

func validateSelection(sel domain.FilterSelection) error {
	if sel.Currency != "" && !domain.IsRecognizedCurrency(sel.Currency) {
		return fmt.Errorf("unrecognized currency: %s", sel.Currency)
	}
	if sel.Industry != "" && !domain.IsRecognizedIndustry(sel.Industry) {
		return fmt.Errorf("unrecognized industry: %s", sel.Industry)
	}
	return nil
}

// refresh runs the pipeline under a fresh sequence number and commits the
// result only if no newer refresh has started since.
func (o *Orchestrator) refresh(ctx context.Context) error {
	seq := atomic.AddUint64(&o.seq, 1)

	o.mu.Lock()
	ds := o.dataset
	sel := o.selection
	// Publish only while still the newest refresh; checking under the lock
	// keeps a superseded goroutine from overwriting a newer commit.
	if ds == nil {
		if atomic.LoadUint64(&o.seq) == seq {
			o.view = View{State: StateEmpty, Sequence: seq, UpdatedAt: time.Now().UTC()}
		}
		o.mu.Unlock()
		return nil
	}
	if atomic.LoadUint64(&o.seq) == seq {
		o.view.State = StateLoading
		o.view.Sequence = seq
	}
	o.mu.Unlock()

	view, err := o.compute(ctx, ds, sel)
	if err != nil {
		o.commitError(seq, err)
		return err
	}

	o.commit(seq, view)
	return nil
}

// compute runs filter, derivation and chart generation for one selection.
func (o *Orchestrator) compute(ctx context.Context, ds *domain.Dataset, sel domain.FilterSelection) (*View, error) {
	rate := 1.0
	if sel.Currency != "" && sel.Currency != ds.Currency {
		if o.rates == nil {
			return nil, fmt.Errorf("currency conversion to %s requested but no rate source configured", sel.Currency)
		}
		r, err := o.rates.Rate(ctx, ds.Currency, sel.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s/%s rate: %w", ds.Currency, sel.Currency, err)
		}
		rate = r
	}

	filtered := o.engine.Apply(ds, sel, rate)

	var derived *domain.DerivedSeries
	cacheKey := derive.Key(ds.ID, sel, rate)
	if o.cache != nil {
		if hit, ok := o.cache.Get(cacheKey); ok {
			derived = hit
		}
	}
	if derived == nil {
		derived = o.calc.Derive(filtered)
		if o.cache != nil {
			o.cache.Put(cacheKey, derived)
		}
	}

	view := &View{
		State:     StateReady,
		DatasetID: ds.ID,
		Company:   ds.Company,
		Selection: sel,
		Filtered:  filtered,
		Derived:   derived,
		Charts:    o.charts.Catalog(filtered, derived),
		Insights:  ds.Insights,
		Summary:   ds.Summary,
		Warnings:  ds.Warnings,
	}
	return view, nil
}

// commit publishes a successful refresh unless a newer one has started.
// The staleness check runs under the view lock: check-then-publish must be
// atomic, or a superseded refresh could slip in between and regress the view.
func (o *Orchestrator) commit(seq uint64, view *View) {
	o.mu.Lock()
	if atomic.LoadUint64(&o.seq) != seq {
		o.mu.Unlock()
		o.log.Debug().Uint64("seq", seq).Msg("Discarding superseded refresh")
		return
	}
	view.Sequence = seq
	view.UpdatedAt = time.Now().UTC()
	o.view = *view
	o.mu.Unlock()

	o.publish(events.Event{
		Type:      events.TypeStateChanged,
		State:     StateReady,
		Sequence:  seq,
		DatasetID: view.DatasetID,
		Timestamp: time.Now().UTC(),
	})
}

// commitError moves the view to Error, retaining the last good data.
func (o *Orchestrator) commitError(seq uint64, err error) {
	o.mu.Lock()
	if atomic.LoadUint64(&o.seq) != seq {
		o.mu.Unlock()
		return
	}
	o.view.State = StateError
	o.view.Error = err.Error()
	o.view.Sequence = seq
	o.view.UpdatedAt = time.Now().UTC()
	datasetID := o.view.DatasetID
	o.mu.Unlock()

	o.log.Warn().Err(err).Uint64("seq", seq).Msg("View refresh failed")

	o.publish(events.Event{
		Type:      events.TypeRefreshFailed,
		State:     StateError,
		Sequence:  seq,
		DatasetID: datasetID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// Subscribe registers a channel for view events. The channel is buffered;
// slow consumers drop events rather than block the pipeline.
func (o *Orchestrator) Subscribe() chan events.Event {
	ch := make(chan events.Event, 16)
	o.subMu.Lock()
	o.subscribers[ch] = struct{}{}
	o.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (o *Orchestrator) Unsubscribe(ch chan events.Event) {
	o.subMu.Lock()
	if _, ok := o.subscribers[ch]; ok {
		delete(o.subscribers, ch)
		close(ch)
	}
	o.subMu.Unlock()
}

func (o *Orchestrator) publish(ev events.Event) {
	o.subMu.Lock()
	for ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	o.subMu.Unlock()
}
