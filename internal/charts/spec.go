// Package charts turns filtered views and derived series into
// renderer-agnostic chart specifications. All numbers arrive precomputed;
// the frontend renders what it is given and never does arithmetic.
package charts

// Chart kinds understood by the frontend renderer.
const (
	KindLine          = "line"
	KindBar           = "bar"
	KindGroupedBar    = "grouped_bar"
	KindHorizontalBar = "horizontal_bar"
)

// PointSpec is one renderable data point with its precomputed tooltip.
type PointSpec struct {
	X       string  `json:"x"`
	Y       float64 `json:"y"`
	Tooltip string  `json:"tooltip"`
}

// SeriesSpec is one named series of a chart.
type SeriesSpec struct {
	Name   string      `json:"name"`
	Kind   string      `json:"kind"`
	Points []PointSpec `json:"points"`
	// Dashed marks reference lines such as industry benchmarks.
	Dashed bool `json:"dashed,omitempty"`
}

// Annotation is a contextual label pinned to a year: growth callouts and
// market events.
type Annotation struct {
	Year  int    `json:"year"`
	Label string `json:"label"`
}

// ChartSpec is a complete, self-contained chart description.
type ChartSpec struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	XAxisLabel  string       `json:"x_axis_label"`
	YAxisLabel  string       `json:"y_axis_label"`
	Series      []SeriesSpec `json:"series"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Empty reports whether the chart has no data points at all.
func (c *ChartSpec) Empty() bool {
	for _, s := range c.Series {
		if len(s.Points) > 0 {
			return false
		}
	}
	return true
}
