// Package chart renders forecast and component plots as PNG
package chart

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/b3cast/internal/models"
)

const (
	width  = 1000
	height = 450
)

var (
	colorActual   = drawing.ColorFromHex("111827") // gray-900
	colorForecast = drawing.ColorFromHex("2563eb") // blue-600
	colorBand     = drawing.ColorFromHex("93c5fd") // blue-300
	colorTrend    = drawing.ColorFromHex("059669") // emerald-600
)

// Component names accepted by RenderComponent
var Components = []string{"trend", "weekly", "yearly", "daily"}

func dateFormatter(layout string) chart.ValueFormatter {
	return func(v interface{}) string {
		if t, ok := v.(float64); ok {
			return chart.TimeFromFloat64(t).Format(layout)
		}
		return ""
	}
}

func priceFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("R$%.2f", f)
	}
	return ""
}

// flatRange widens a zero-height range, which go-chart refuses to draw.
func flatRange(values ...[]float64) chart.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi-lo > 1e-9 {
		return nil
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}

func render(graph chart.Chart) ([]byte, error) {
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderForecast plots historical closes, the point forecast and its
// uncertainty band. Returns raw PNG bytes.
func RenderForecast(pred *models.Prediction) ([]byte, error) {
	if pred == nil || pred.History.Len() < 2 || pred.Forecast == nil || len(pred.Forecast.Points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points to plot")
	}

	histX := make([]time.Time, pred.History.Len())
	histY := make([]float64, pred.History.Len())
	for i, p := range pred.History.Points {
		histX[i] = p.Date
		histY[i] = p.Close
	}

	points := pred.Forecast.Points
	fx := make([]time.Time, len(points))
	yhat := make([]float64, len(points))
	lower := make([]float64, len(points))
	upper := make([]float64, len(points))
	for i, p := range points {
		fx[i] = p.Date
		yhat[i] = p.Yhat
		lower[i] = p.YhatLower
		upper[i] = p.YhatUpper
	}

	band := chart.Style{StrokeColor: colorBand, StrokeWidth: 1, StrokeDashArray: []float64{4.0, 3.0}}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (%s)", pred.Name, pred.Symbol),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{ValueFormatter: dateFormatter("Jan 06")},
		YAxis: chart.YAxis{ValueFormatter: priceFormatter, Range: flatRange(histY, lower, upper)},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Upper", Style: band, XValues: fx, YValues: upper},
			chart.TimeSeries{Name: "Lower", Style: band, XValues: fx, YValues: lower},
			chart.TimeSeries{
				Name:    "Forecast",
				Style:   chart.Style{StrokeColor: colorForecast, StrokeWidth: 2},
				XValues: fx,
				YValues: yhat,
			},
			chart.TimeSeries{
				Name:    "Close",
				Style:   chart.Style{StrokeColor: colorActual, StrokeWidth: 1},
				XValues: histX,
				YValues: histY,
			},
		},
	}

	return render(graph)
}

// RenderComponent plots one additive component: trend over the full range,
// weekly as a Monday..Sunday profile, yearly over the forecast horizon and
// daily over the last fortnight.
func RenderComponent(res *models.ForecastResult, component string) ([]byte, error) {
	if res == nil || len(res.Points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points to plot")
	}

	switch component {
	case "trend":
		return renderTimeComponent(res.Points, "Trend", func(p models.ForecastPoint) float64 { return p.Trend }, "Jan 06")
	case "yearly":
		pts := res.Future()
		if len(pts) < 2 {
			pts = res.Points
		}
		return renderTimeComponent(pts, "Yearly", func(p models.ForecastPoint) float64 { return p.Yearly }, "Jan 02")
	case "daily":
		pts := res.Points
		if len(pts) > 14 {
			pts = pts[len(pts)-14:]
		}
		return renderTimeComponent(pts, "Daily", func(p models.ForecastPoint) float64 { return p.Daily }, "Jan 02")
	case "weekly":
		return renderWeekly(res.Points)
	}
	return nil, fmt.Errorf("unknown component %q", component)
}

func renderTimeComponent(points []models.ForecastPoint, title string, value func(models.ForecastPoint) float64, layout string) ([]byte, error) {
	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Date
		ys[i] = value(p)
	}

	graph := chart.Chart{
		Title:  title,
		Width:  width,
		Height: height / 2,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{ValueFormatter: dateFormatter(layout)},
		YAxis: chart.YAxis{Range: flatRange(ys)},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				Style:   chart.Style{StrokeColor: colorTrend, StrokeWidth: 2},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	return render(graph)
}

// renderWeekly averages the weekly component per weekday
func renderWeekly(points []models.ForecastPoint) ([]byte, error) {
	var sum [7]float64
	var count [7]int
	for _, p := range points {
		wd := (int(p.Date.Weekday()) + 6) % 7 // Monday first
		sum[wd] += p.Weekly
		count[wd]++
	}

	xs := make([]float64, 7)
	ys := make([]float64, 7)
	for i := range xs {
		xs[i] = float64(i)
		if count[i] > 0 {
			ys[i] = sum[i] / float64(count[i])
		}
	}

	names := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	graph := chart.Chart{
		Title:  "Weekly",
		Width:  width,
		Height: height / 2,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{ValueFormatter: func(v interface{}) string {
			if f, ok := v.(float64); ok {
				if i := int(math.Round(f)); i >= 0 && i < len(names) {
					return names[i]
				}
			}
			return ""
		}},
		YAxis: chart.YAxis{Range: flatRange(ys)},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Weekly",
				Style:   chart.Style{StrokeColor: colorTrend, StrokeWidth: 2},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	return render(graph)
}

// WriteAll renders the forecast plot and every component plot into dir,
// returning the written paths.
func WriteAll(dir string, pred *models.Prediction) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	base := strings.ReplaceAll(pred.Symbol, ".", "_")
	var paths []string

	write := func(name string, png []byte) error {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", base, name))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
		return nil
	}

	png, err := RenderForecast(pred)
	if err != nil {
		return nil, err
	}
	if err := write("forecast", png); err != nil {
		return nil, err
	}

	for _, c := range Components {
		png, err := RenderComponent(pred.Forecast, c)
		if err != nil {
			return paths, fmt.Errorf("%s component: %w", c, err)
		}
		if err := write(c, png); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
