// Package chart renders a comprehensive-strategy depth map (spec §4.G) as a
// standalone HTML chart, so a depth-map acquisition or repeatability run can
// be inspected visually instead of only as status-line text.
//
// Uses github.com/go-echarts/go-echarts/v2, a pack-indirect dependency
// (calvinmclean-auto-roast/go.mod); no direct content precedent in the pack,
// so this package supplies its own chart construction in that library's
// idiom.
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"deltacal/pkg/calibrate"
)

// labels names the 12 fixed test points in the order TwelvePoints returns
// them (spec §4.G): tower, opposite, adjacent-mid, opposite-mid.
var labels = []string{
	"Tower X", "Tower Y", "Tower Z",
	"Opp X", "Opp Y", "Opp Z",
	"Mid XY", "Mid YZ", "Mid ZX",
	"OppMid XY", "OppMid YZ", "OppMid ZX",
}

// DepthMapBar renders a depth map's 12 points as a bar chart of deviation
// from the center probe (mm) and returns the chart; RenderDepthMap writes it
// as an HTML page.
func DepthMapBar(m calibrate.DepthMap) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Depth map",
			Subtitle: fmt.Sprintf("origin=%.4f mm", m.OriginMM),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deviation (mm)"}),
	)

	items := make([]opts.BarData, len(m.Points))
	for i, p := range m.Points {
		items[i] = opts.BarData{Value: p}
	}

	bar.SetXAxis(labels).
		AddSeries("deviation_mm", items)
	return bar
}

// RenderDepthMap writes the depth-map bar chart's HTML page to w.
func RenderDepthMap(m calibrate.DepthMap, w io.Writer) error {
	return DepthMapBar(m).Render(w)
}

// RepeatabilityLine renders a repeatability test's raw samples as a line
// chart, to spot drift or outliers across the run.
func RepeatabilityLine(r calibrate.RepeatabilityResult) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Repeatability",
			Subtitle: fmt.Sprintf("mean=%.4f stddev=%.4f range=%.4f class=%s", r.Mean, r.StdDev, r.Range, r.Classification),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "probed depth (mm)"}),
	)

	xs := make([]string, len(r.Samples))
	items := make([]opts.LineData, len(r.Samples))
	for i, s := range r.Samples {
		xs[i] = fmt.Sprintf("%d", i+1)
		items[i] = opts.LineData{Value: s}
	}

	line.SetXAxis(xs).AddSeries("sample", items)
	return line
}

// RenderRepeatability writes the repeatability line chart's HTML page to w.
func RenderRepeatability(r calibrate.RepeatabilityResult, w io.Writer) error {
	return RepeatabilityLine(r).Render(w)
}
