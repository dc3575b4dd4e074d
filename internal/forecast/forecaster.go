// Package forecast projects financial metric series forward. The primary
// model fits a least-squares linear trend; when the series is too irregular
// for a meaningful fit, a median-growth model takes over. Annual data rarely
// has more than a handful of points, so both models are deliberately simple.
package forecast

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/finlens/finlens/internal/domain"
)

// DefaultPeriods is the forecast horizon when the caller does not choose one.
const DefaultPeriods = 4

// MinDataPoints is the minimum history required for any forecast.
const MinDataPoints = 3

// confidenceZ is the z-score for the 95% confidence band.
const confidenceZ = 1.96

// defaultGrowthRate is assumed when the history yields no usable growth
// rates at all.
const defaultGrowthRate = 0.05

// Model names reported on a Forecast.
const (
	ModelLinearTrend  = "linear_trend"
	ModelMedianGrowth = "median_growth"
)

// Forecast is a projection of a metric series beyond its last year.
type Forecast struct {
	Metric     string        `json:"metric"`
	Model      string        `json:"model"`
	Historical domain.Series `json:"historical"`
	Projected  domain.Series `json:"projected"`
	// Lower and Upper bound the 95% confidence band around Projected.
	// Empty for the median-growth model, which carries no error estimate.
	Lower domain.Series `json:"lower,omitempty"`
	Upper domain.Series `json:"upper,omitempty"`
	// CAGR is the compound annual growth rate implied by the projection,
	// in percent. Nil when the last historical value is not positive.
	CAGR *float64 `json:"cagr,omitempty"`
	// GrowthRate is the per-year rate used by the median-growth model,
	// in percent. Nil for the linear model.
	GrowthRate *float64 `json:"growth_rate,omitempty"`
}

// Forecaster projects metric series.
type Forecaster struct{}

// New creates a forecaster.
func New() *Forecaster {
	return &Forecaster{}
}

// Forecast projects a metric series periods years past its end. It requires
// at least MinDataPoints historical points. The linear model is tried first;
// if the fit degenerates the median-growth model takes over.
func (f *Forecaster) Forecast(metric string, series domain.Series, periods int) (*Forecast, error) {
	if periods <= 0 {
		periods = DefaultPeriods
	}
	if len(series) < MinDataPoints {
		return nil, fmt.Errorf(
			"not enough data points to forecast %s: need %d, have %d",
			metric, MinDataPoints, len(series))
	}

	out := linearTrend(metric, series, periods)
	if out == nil {
		out = medianGrowth(metric, series, periods)
	}

	out.Historical = append(domain.Series(nil), series...)
	out.CAGR = cagr(series, out.Projected)
	return out, nil
}

// linearTrend fits y = alpha + beta*year by ordinary least squares and
// projects it forward with a flat ±1.96σ band, σ being the standard
// deviation of the historical values. Returns nil when the fit produces
// non-finite coefficients.
func linearTrend(metric string, series domain.Series, periods int) *Forecast {
	xs := make([]float64, len(series))
	ys := make([]float64, len(series))
	for i, p := range series {
		xs[i] = float64(p.Year)
		ys[i] = p.Value
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return nil
	}

	band := confidenceZ * stat.StdDev(ys, nil)

	out := &Forecast{Metric: metric, Model: ModelLinearTrend}
	lastYear := series[len(series)-1].Year
	for i := 1; i <= periods; i++ {
		year := lastYear + i
		value := alpha + beta*float64(year)
		out.Projected = append(out.Projected, domain.Point{Year: year, Value: value})
		out.Lower = append(out.Lower, domain.Point{Year: year, Value: value - band})
		out.Upper = append(out.Upper, domain.Point{Year: year, Value: value + band})
	}
	return out
}

// medianGrowth compounds the last value by the median historical growth
// rate. Growth rates are computed only across positive prior values; with
// none available a default rate applies.
func medianGrowth(metric string, series domain.Series, periods int) *Forecast {
	var rates []float64
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Value
		if prev > 0 {
			rates = append(rates, series[i].Value/prev-1)
		}
	}

	rate := defaultGrowthRate
	if len(rates) > 0 {
		sort.Float64s(rates)
		rate = stat.Quantile(0.5, stat.Empirical, rates, nil)
	}

	out := &Forecast{Metric: metric, Model: ModelMedianGrowth}
	ratePct := rate * 100
	out.GrowthRate = &ratePct

	value := series[len(series)-1].Value
	lastYear := series[len(series)-1].Year
	for i := 1; i <= periods; i++ {
		value *= 1 + rate
		out.Projected = append(out.Projected, domain.Point{Year: lastYear + i, Value: value})
	}
	return out
}

// cagr computes the compound annual growth rate from the last historical
// point to the last projected one, in percent. Undefined for non-positive
// endpoints.
func cagr(historical, projected domain.Series) *float64 {
	if len(historical) == 0 || len(projected) == 0 {
		return nil
	}
	last := historical[len(historical)-1]
	final := projected[len(projected)-1]
	if last.Value <= 0 || final.Value <= 0 {
		return nil
	}

	years := float64(final.Year - last.Year)
	if years <= 0 {
		return nil
	}

	v := (math.Pow(final.Value/last.Value, 1/years) - 1) * 100
	return &v
}
