package monitor

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/position.report/internal/fingerprint"
)

// echartsAssetsHost serves the echarts javascript bundle referenced by the
// rendered HTML pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis is the color ramp used by the visual maps.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleSurveyScatter renders a scatter of the survey fingerprint positions
// colored by mean RSSI, with the known sources overlaid.
// Query params:
//   - survey (optional; defaults to the configured survey)
func (m *Monitor) handleSurveyScatter(w http.ResponseWriter, r *http.Request) {
	surveyName := m.surveyFor(r)

	rows, err := m.surveys.ListFingerprints(surveyName)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list fingerprints: %v", err))
		return
	}
	if len(rows) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no survey fingerprints available")
		return
	}

	data := make([]opts.ScatterData, 0, len(rows))
	minLevel, maxLevel := math.Inf(1), math.Inf(-1)
	maxAbs := 0.0
	for _, row := range rows {
		mean := 0.0
		for _, reading := range row.Readings {
			mean += reading.RSSIDbm
		}
		if len(row.Readings) > 0 {
			mean /= float64(len(row.Readings))
		}
		minLevel = math.Min(minLevel, mean)
		maxLevel = math.Max(maxLevel, mean)
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(row.X), math.Abs(row.Y)))
		data = append(data, opts.ScatterData{Value: []interface{}{row.X, row.Y, mean}})
	}

	sourceRows, err := m.sources.ListSources()
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sources: %v", err))
		return
	}
	sourceData := make([]opts.ScatterData, 0, len(sourceRows))
	for _, src := range sourceRows {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(src.X), math.Abs(src.Y)))
		sourceData = append(sourceData, opts.ScatterData{Value: []interface{}{src.X, src.Y, maxLevel}, Symbol: "triangle"})
	}

	// Pad so edge points stay visible.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if minLevel > maxLevel {
		minLevel, maxLevel = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Survey Fingerprints", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Survey Fingerprints", Subtitle: fmt.Sprintf("survey=%s fingerprints=%d sources=%d", surveyName, len(data), len(sourceData))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minLevel),
			Max:        float32(maxLevel),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("fingerprints", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("sources", sourceData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	renderChart(w, scatter, func(status int, msg string) { m.writeJSONError(w, status, msg) })
}

// handleDeviceTrack renders the recent estimates of one device as a scatter
// colored by recency.
// Query params:
//   - device_id (required)
//   - limit (optional; default 200)
func (m *Monitor) handleDeviceTrack(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		m.writeJSONError(w, http.StatusBadRequest, "missing 'device_id' parameter")
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 5000 {
			limit = parsed
		}
	}

	rows, err := m.estimates.RecentEstimates(deviceID, limit)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("recent estimates: %v", err))
		return
	}
	if len(rows) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no estimates for device")
		return
	}

	// RecentEstimates returns newest first; plot oldest to newest so the
	// color ramp reads as time.
	data := make([]opts.ScatterData, 0, len(rows))
	maxAbs := 0.0
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		seq := len(rows) - 1 - i
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(row.X), math.Abs(row.Y)))
		data = append(data, opts.ScatterData{Value: []interface{}{row.X, row.Y, seq}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Device Track", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Device Track", Subtitle: fmt.Sprintf("device=%s estimates=%d", deviceID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(len(data) - 1),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("estimates", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	renderChart(w, scatter, func(status int, msg string) { m.writeJSONError(w, status, msg) })
}

// cdfConfigs is the configuration set compared by the error-CDF chart: the
// closed-form estimator against the iterative one at each expansion order,
// all with mean removal on to match the default service configuration.
var cdfConfigs = []fingerprint.EvaluationConfig{
	{Name: "linear", Algorithm: fingerprint.AlgorithmLinear, RemoveMeanFromReadings: true},
	{Name: "nonlinear-first", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderFirst, RemoveMeanFromReadings: true},
	{Name: "nonlinear-second", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderSecond, RemoveMeanFromReadings: true},
	{Name: "nonlinear-third", Algorithm: fingerprint.AlgorithmNonlinear, Order: fingerprint.OrderThird, RemoveMeanFromReadings: true},
}

// handleErrorCDF runs hold-one-out evaluation over the survey for a fixed
// configuration set and renders the error distributions as CDF curves.
// Query params:
//   - survey (optional; defaults to the configured survey)
func (m *Monitor) handleErrorCDF(w http.ResponseWriter, r *http.Request) {
	surveyName := m.surveyFor(r)

	located, sources, err := m.loadSurvey(surveyName)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load survey: %v", err))
		return
	}
	if len(located) < 2 {
		m.writeJSONError(w, http.StatusNotFound, "survey too small for hold-one-out evaluation")
		return
	}

	results := make([]*fingerprint.HoldOutResult, 0, len(cdfConfigs))
	maxErr := 0.0
	for _, cfg := range cdfConfigs {
		res, err := fingerprint.EvaluateHoldOut(located, sources, cfg)
		if err != nil {
			m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("evaluate %s: %v", cfg.Name, err))
			return
		}
		for _, e := range res.Errors {
			maxErr = math.Max(maxErr, e)
		}
		results = append(results, res)
	}
	if maxErr == 0 {
		maxErr = 1.0
	}

	// Sample every CDF on a shared error grid so the curves share an
	// x-axis.
	const steps = 100
	xLabels := make([]string, 0, steps+1)
	for i := 0; i <= steps; i++ {
		xLabels = append(xLabels, fmt.Sprintf("%.2f", float64(i)*maxErr/steps))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hold-Out Error CDF", Theme: "dark", Width: "1100px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Hold-Out Position Error CDF", Subtitle: fmt.Sprintf("survey=%s fingerprints=%d", surveyName, len(located))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "error (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "fraction", Min: 0, Max: 1}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xLabels)

	for _, res := range results {
		sorted := append([]float64(nil), res.Errors...)
		sort.Float64s(sorted)
		series := make([]opts.LineData, 0, steps+1)
		for i := 0; i <= steps; i++ {
			threshold := float64(i) * maxErr / steps
			series = append(series, opts.LineData{Value: cdfAt(sorted, threshold)})
		}
		name := res.Config.Name
		if res.Failed > 0 {
			name = fmt.Sprintf("%s (%d failed)", name, res.Failed)
		}
		line.AddSeries(name, series)
	}

	renderChart(w, line, func(status int, msg string) { m.writeJSONError(w, status, msg) })
}

// cdfAt returns the fraction of sorted errors at or below threshold.
func cdfAt(sorted []float64, threshold float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	n := sort.SearchFloat64s(sorted, math.Nextafter(threshold, math.Inf(1)))
	return float64(n) / float64(len(sorted))
}

// renderable is satisfied by every go-echarts chart type.
type renderable interface {
	Render(w io.Writer) error
}

func renderChart(w http.ResponseWriter, chart renderable, fail func(status int, msg string)) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		fail(http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
