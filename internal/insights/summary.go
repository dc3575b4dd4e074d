package insights

import (
	"fmt"
	"strings"

	"github.com/finlens/finlens/internal/domain"
)

// Summarize builds an executive summary of the dataset: latest-year
// highlights, a performance reading and a trend-based outlook. Plain text,
// one paragraph per section.
func (g *Generator) Summarize(ds *domain.Dataset) string {
	if len(ds.Years) == 0 {
		return "Insufficient data to generate a summary. Financial data spanning multiple years is required."
	}

	latest := &ds.Years[len(ds.Years)-1]
	company := companyName(ds)

	var b strings.Builder

	fmt.Fprintf(&b, "Executive summary (%d). ", latest.Year)
	fmt.Fprintf(&b,
		"%s financial performance from %d to %d, with emphasis on growth trends, profitability and shareholder value.\n\n",
		company, ds.Years[0].Year, latest.Year)

	b.WriteString(highlightsSection(ds, latest))
	b.WriteString(performanceSection(ds, company, latest))
	b.WriteString(outlookSection(ds, company))

	return strings.TrimRight(b.String(), "\n")
}

func highlightsSection(ds *domain.Dataset, latest *domain.YearRecord) string {
	var lines []string

	if line := highlightLine(ds, latest, domain.MetricRevenue, "Revenue", "billion "+ds.Currency); line != "" {
		lines = append(lines, line)
	}
	if line := highlightLine(ds, latest, domain.MetricNetProfit, "Net profit", "billion "+ds.Currency); line != "" {
		lines = append(lines, line)
	}
	if line := highlightLine(ds, latest, domain.MetricEPS, "Earnings per share", ds.Currency); line != "" {
		lines = append(lines, line)
	}
	if line := highlightLine(ds, latest, domain.MetricNetAssetPerShare, "Net asset per share", ds.Currency); line != "" {
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return ""
	}
	return "Financial highlights: " + strings.Join(lines, "; ") + ".\n\n"
}

func highlightLine(ds *domain.Dataset, latest *domain.YearRecord, metric, label, unit string) string {
	v := latest.MetricValue(metric)
	if v == nil {
		return ""
	}

	line := fmt.Sprintf("%s %.2f %s", label, *v, unit)
	if g := latestGrowth(ds, metric); g != nil {
		direction := "increase"
		if *g < 0 {
			direction = "decrease"
		}
		line += fmt.Sprintf(" (%.1f%% %s YoY)", abs(*g), direction)
	}
	return line
}

// latestGrowth returns the latest year's growth for a metric against the
// prior year, or nil when it cannot be computed.
func latestGrowth(ds *domain.Dataset, metric string) *float64 {
	if len(ds.Years) < 2 {
		return nil
	}
	curr := ds.Years[len(ds.Years)-1].MetricValue(metric)
	prev := ds.Years[len(ds.Years)-2].MetricValue(metric)
	if curr == nil || prev == nil || *prev == 0 {
		return nil
	}
	g := (*curr - *prev) / *prev * 100
	return &g
}

func performanceSection(ds *domain.Dataset, company string, latest *domain.YearRecord) string {
	var b strings.Builder

	profitGrowth := latestGrowth(ds, domain.MetricNetProfit)
	revenueGrowth := latestGrowth(ds, domain.MetricRevenue)

	if profitGrowth != nil && revenueGrowth != nil {
		switch {
		case *profitGrowth > 0 && *revenueGrowth > 0:
			fmt.Fprintf(&b, "%s demonstrated strong financial performance in %d with both revenue and profitability showing positive growth. ", company, latest.Year)
		case *profitGrowth > 0:
			fmt.Fprintf(&b, "Despite revenue challenges, %s maintained profitability growth in %d, indicating improved operational efficiency. ", company, latest.Year)
		case *revenueGrowth > 0:
			fmt.Fprintf(&b, "While achieving revenue growth in %d, %s experienced pressure on profit margins, suggesting increased operational costs or competitive pricing pressure. ", latest.Year, company)
		default:
			fmt.Fprintf(&b, "%s faced challenges in %d with declines in both revenue and profitability, potentially due to broader economic factors. ", company, latest.Year)
		}
	}

	gpMargin := latest.MetricValue(domain.MetricGrossMargin)
	npMargin := netProfitMargin(latest)
	if gpMargin != nil && npMargin != nil {
		fmt.Fprintf(&b, "The company recorded a gross profit margin of %.1f%% and a net profit margin of %.1f%%.", *gpMargin, *npMargin)
	}

	if b.Len() == 0 {
		return ""
	}
	return "Performance: " + b.String() + "\n\n"
}

// outlookSection votes latest-year revenue, EPS and net asset trends up or
// down and phrases the outlook from the balance.
func outlookSection(ds *domain.Dataset, company string) string {
	positive, negative := 0, 0
	for _, metric := range []string{domain.MetricRevenue, domain.MetricEPS, domain.MetricNetAssetPerShare} {
		g := latestGrowth(ds, metric)
		if g == nil {
			continue
		}
		if *g > 0 {
			positive++
		} else {
			negative++
		}
	}

	if positive == 0 && negative == 0 {
		return ""
	}

	var text string
	switch {
	case positive > negative:
		text = fmt.Sprintf(
			"Based on current trends, the outlook for %s remains positive with opportunities for continued growth and value creation. The diversified business model provides resilience against sector-specific challenges.",
			company)
	case positive < negative:
		text = fmt.Sprintf(
			"The outlook for %s presents challenges that management will need to address, with focus areas including revenue growth initiatives and cost optimization.",
			company)
	default:
		text = fmt.Sprintf(
			"%s faces a mixed outlook with both opportunities and challenges ahead. Enhancing revenue growth while maintaining cost discipline will be crucial.",
			company)
	}

	return "Outlook: " + text + "\n"
}
