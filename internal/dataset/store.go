// Package dataset implements the metrics store: parsing, validation and
// persistence of uploaded annual-report datasets.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/finlens/finlens/internal/domain"
)

// shareholderSumEpsilon is the slack allowed on a year's ownership total.
// Minor holders may be omitted, so totals below 100 are fine; totals above
// 100 beyond this epsilon indicate double-counted entries.
const shareholderSumEpsilon = 0.5

// epsTolerance is the relative tolerance for the EPS consistency check
// against net_profit / share_count. Source reports round differently, so
// a mismatch is a warning, never a failure.
const epsTolerance = 0.01

// Violation is one field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every violation found in an ingested payload,
// not just the first, so callers can report all issues at once.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("dataset validation failed (%d violations): %s",
		len(e.Violations), strings.Join(msgs, "; "))
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Load parses and validates a Dataset payload. On any structural violation
// it returns a *ValidationError listing every offending field. Well-formed
// but unusual data (zero revenue, missing shareholder tables, single-year
// datasets) passes validation; inconsistencies that source-report rounding
// can explain are recorded as warnings on the Dataset instead.
//
// Load is pure apart from assigning an ID to payloads that carry none.
func Load(raw []byte) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, &ValidationError{Violations: []Violation{
			{Field: "payload", Message: fmt.Sprintf("malformed JSON: %v", err)},
		}}
	}

	verr := &ValidationError{}
	validateStructure(&ds, verr)
	if len(verr.Violations) > 0 {
		return nil, verr
	}

	normalize(&ds)
	// Idempotent append: re-loading a serialized dataset must not
	// duplicate its warnings.
	for _, w := range consistencyWarnings(&ds) {
		if !containsString(ds.Warnings, w) {
			ds.Warnings = append(ds.Warnings, w)
		}
	}

	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}

	return &ds, nil
}

// Serialize encodes a Dataset such that Load(Serialize(ds)) reproduces ds.
func Serialize(ds *domain.Dataset) ([]byte, error) {
	data, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize dataset: %w", err)
	}
	return data, nil
}

// validateStructure collects every hard violation: non-contiguous or
// duplicate years, non-finite or negative figures, unrecognized currency,
// out-of-range ownership percentages.
func validateStructure(ds *domain.Dataset, verr *ValidationError) {
	if !domain.IsRecognizedCurrency(ds.Currency) {
		verr.add("currency", "unrecognized currency code %q (recognized: %s)",
			ds.Currency, strings.Join(domain.RecognizedCurrencies, ", "))
	}

	if len(ds.Years) == 0 {
		verr.add("years", "dataset contains no year records")
		return
	}

	for i, yr := range ds.Years {
		prefix := fmt.Sprintf("years[%d]", i)

		if i > 0 {
			prev := ds.Years[i-1].Year
			switch {
			case yr.Year == prev:
				verr.add(prefix+".year", "duplicate year %d", yr.Year)
			case yr.Year < prev:
				verr.add(prefix+".year", "years not in ascending order: %d after %d", yr.Year, prev)
			case yr.Year != prev+1:
				verr.add(prefix+".year", "years not contiguous: gap between %d and %d", prev, yr.Year)
			}
		}

		for name, v := range numericFields(&yr) {
			if v == nil {
				continue
			}
			if math.IsNaN(*v) || math.IsInf(*v, 0) {
				verr.add(prefix+"."+name, "value is not finite")
			} else if *v < 0 {
				verr.add(prefix+"."+name, "value %g is negative", *v)
			}
		}

		for j, sh := range yr.Shareholders {
			field := fmt.Sprintf("%s.shareholders[%d]", prefix, j)
			if sh.Name == "" {
				verr.add(field+".name", "shareholder name is empty")
			}
			if math.IsNaN(sh.Percentage) || math.IsInf(sh.Percentage, 0) {
				verr.add(field+".percentage", "value is not finite")
			} else if sh.Percentage < 0 || sh.Percentage > 100 {
				verr.add(field+".percentage", "ownership %g outside 0-100", sh.Percentage)
			}
		}
	}
}

// numericFields maps field names to the record's optional numeric values.
func numericFields(yr *domain.YearRecord) map[string]*float64 {
	return map[string]*float64{
		"revenue":             yr.Revenue,
		"cost_of_sales":       yr.CostOfSales,
		"operating_expenses":  yr.OperatingExpenses,
		"gross_profit":        yr.GrossProfit,
		"gross_profit_margin": yr.GrossProfitMargin,
		"operating_profit":    yr.OperatingProfit,
		"net_profit":          yr.NetProfit,
		"eps":                 yr.EPS,
		"share_count":         yr.ShareCount,
		"net_asset_per_share": yr.NetAssetPerShare,
	}
}

// normalize fills figures derivable from the supplied ones, the same way
// the ingestion side does: gross profit from revenue and cost of sales,
// operating profit from gross profit and operating expenses, and the gross
// margin percentage. Fills that would produce a negative figure are skipped
// so that re-loading a serialized dataset never fails validation.
func normalize(ds *domain.Dataset) {
	for i := range ds.Years {
		yr := &ds.Years[i]

		if yr.GrossProfit == nil && yr.Revenue != nil && yr.CostOfSales != nil {
			if gp := *yr.Revenue - *yr.CostOfSales; gp >= 0 {
				yr.GrossProfit = &gp
			}
		}
		if yr.OperatingProfit == nil && yr.GrossProfit != nil && yr.OperatingExpenses != nil {
			if op := *yr.GrossProfit - *yr.OperatingExpenses; op >= 0 {
				yr.OperatingProfit = &op
			}
		}
		if yr.GrossProfitMargin == nil && yr.GrossProfit != nil && yr.Revenue != nil && *yr.Revenue != 0 {
			m := *yr.GrossProfit / *yr.Revenue * 100
			yr.GrossProfitMargin = &m
		}
	}
}

// consistencyWarnings checks cross-field invariants that rounding in the
// source reports can legitimately break.
func consistencyWarnings(ds *domain.Dataset) []string {
	var warnings []string

	for _, yr := range ds.Years {
		// EPS vs net profit / share count. Net profit is in billions,
		// share count in millions, so the implied per-share figure is
		// net_profit * 1000 / share_count.
		if yr.EPS != nil && yr.NetProfit != nil && yr.ShareCount != nil && *yr.ShareCount > 0 {
			implied := *yr.NetProfit * 1000 / *yr.ShareCount
			if relDiff(*yr.EPS, implied) > epsTolerance {
				warnings = append(warnings, fmt.Sprintf(
					"%d: reported EPS %.2f differs from net profit / share count (%.2f)",
					yr.Year, *yr.EPS, implied))
			}
		}

		if len(yr.Shareholders) > 0 {
			var sum float64
			for _, sh := range yr.Shareholders {
				sum += sh.Percentage
			}
			if sum > 100+shareholderSumEpsilon {
				warnings = append(warnings, fmt.Sprintf(
					"%d: shareholder ownership sums to %.2f%%, exceeding 100%%", yr.Year, sum))
			}
		}
	}

	return warnings
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func relDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
