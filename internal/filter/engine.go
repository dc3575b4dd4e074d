// Package filter applies a user's filter selection to a dataset, producing
// a filtered view with the same shape.
package filter

import (
	"github.com/finlens/finlens/internal/domain"
)

// Engine filters datasets by year range, industry tag and currency.
// It is stateless; Apply is a pure function of its arguments.
type Engine struct{}

// New creates a filter engine.
func New() *Engine {
	return &Engine{}
}

// Apply filters the dataset's year records to the requested years,
// preserving order. An empty year selection falls back to the full dataset;
// the engine never produces an empty view from a non-empty dataset.
//
// Currency conversion: when the selection currency differs from the dataset
// currency, every monetary field is multiplied by rate (units of selection
// currency per unit of dataset currency). The rate is injected by the
// caller; this component never fetches rates. Percentages, share counts and
// shareholder tables are not converted.
//
// Industry filtering is a pass-through tag match when records carry segment
// data. This dataset shape has no per-segment breakdown, so the selection
// is accepted and has no effect.
func (e *Engine) Apply(ds *domain.Dataset, sel domain.FilterSelection, rate float64) *domain.FilteredView {
	requested := make(map[int]bool, len(sel.Years))
	for _, y := range sel.Years {
		requested[y] = true
	}

	convert := sel.Currency != "" && sel.Currency != ds.Currency
	if !convert {
		rate = 1.0
	}

	currency := ds.Currency
	if convert {
		currency = sel.Currency
	}

	view := &domain.FilteredView{
		DatasetID: ds.ID,
		Currency:  currency,
		Rate:      rate,
	}

	for _, yr := range ds.Years {
		if len(requested) > 0 && !requested[yr.Year] {
			continue
		}
		view.Records = append(view.Records, convertRecord(yr, rate))
	}

	// Empty-selection fallback already covered by len(requested) == 0;
	// a selection naming only unknown years degrades the same way.
	if len(view.Records) == 0 {
		for _, yr := range ds.Years {
			view.Records = append(view.Records, convertRecord(yr, rate))
		}
	}

	return view
}

// convertRecord deep-copies a year record, scaling monetary fields by rate.
// The input dataset is never mutated; in-flight readers of a previous view
// stay consistent.
func convertRecord(yr domain.YearRecord, rate float64) domain.YearRecord {
	out := domain.YearRecord{
		Year:              yr.Year,
		Revenue:           scale(yr.Revenue, rate),
		CostOfSales:       scale(yr.CostOfSales, rate),
		OperatingExpenses: scale(yr.OperatingExpenses, rate),
		GrossProfit:       scale(yr.GrossProfit, rate),
		GrossProfitMargin: clone(yr.GrossProfitMargin), // percentage, currency-neutral
		OperatingProfit:   scale(yr.OperatingProfit, rate),
		NetProfit:         scale(yr.NetProfit, rate),
		EPS:               scale(yr.EPS, rate),
		ShareCount:        clone(yr.ShareCount),
		NetAssetPerShare:  scale(yr.NetAssetPerShare, rate),
	}

	if len(yr.Shareholders) > 0 {
		out.Shareholders = make([]domain.ShareholderEntry, len(yr.Shareholders))
		copy(out.Shareholders, yr.Shareholders)
	}

	return out
}

func scale(v *float64, rate float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * rate
	return &scaled
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
