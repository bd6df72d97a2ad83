package monitor

import (
	"fmt"
	"image/color"
	"math"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/geo"
)

// A RadioMap renders the expected coverage of the known sources as a heat
// grid: each cell is colored by the strongest RSSI the log-distance law
// predicts at the cell center from any source.
type RadioMap struct {
	Sources []fingerprint.Source

	// DefaultTxPowerDbm substitutes for sources without calibrated
	// transmitted power.
	DefaultTxPowerDbm float64
	// PathLossExponent substitutes for sources without a calibrated
	// exponent.
	PathLossExponent float64

	// Bounds of the rendered area in metres.
	MinX, MaxX, MinY, MaxY float64
	// Cells per axis.
	Cells int
}

// rssiGrid adapts a RadioMap to the plotter heat-map grid interface.
type rssiGrid struct {
	rm RadioMap
}

func (g rssiGrid) Dims() (c, r int) { return g.rm.Cells, g.rm.Cells }

func (g rssiGrid) X(c int) float64 {
	return g.rm.MinX + (float64(c)+0.5)*(g.rm.MaxX-g.rm.MinX)/float64(g.rm.Cells)
}

func (g rssiGrid) Y(r int) float64 {
	return g.rm.MinY + (float64(r)+0.5)*(g.rm.MaxY-g.rm.MinY)/float64(g.rm.Cells)
}

func (g rssiGrid) Z(c, r int) float64 {
	at := geo.NewPoint2D(g.X(c), g.Y(r))
	// The law is undefined at zero distance; clamp to a quarter cell so a
	// source sitting exactly on a cell center stays finite.
	minDist := (g.rm.MaxX - g.rm.MinX) / float64(g.rm.Cells) / 4
	best := math.Inf(-1)
	for _, src := range g.rm.Sources {
		pos := src.Position()
		d := math.Max(at.DistanceTo(geo.NewPoint2D(pos.X(), pos.Y())), minDist)
		tx := g.rm.DefaultTxPowerDbm
		if power, ok := src.TransmittedPower(); ok {
			tx = power
		}
		n := g.rm.PathLossExponent
		if exp, ok := src.PathLossExponent(); ok {
			n = exp
		}
		if rssi := fingerprint.ExpectedRSSI(tx, d, src.Frequency(), n); rssi > best {
			best = rssi
		}
	}
	return best
}

// Plot renders the radio map, overlaying the survey positions when given.
func (rm RadioMap) Plot(surveyPositions []geo.Point) (*plot.Plot, error) {
	if len(rm.Sources) == 0 {
		return nil, fmt.Errorf("radio map needs at least one source")
	}
	if rm.Cells <= 0 || rm.MaxX <= rm.MinX || rm.MaxY <= rm.MinY {
		return nil, fmt.Errorf("invalid radio map bounds %gx%g..%gx%g cells=%d", rm.MinX, rm.MinY, rm.MaxX, rm.MaxY, rm.Cells)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Expected Coverage (%d sources)", len(rm.Sources))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	heat := plotter.NewHeatMap(rssiGrid{rm}, palette.Heat(12, 1))
	p.Add(heat)

	if len(surveyPositions) > 0 {
		pts := make(plotter.XYs, 0, len(surveyPositions))
		for _, pos := range surveyPositions {
			pts = append(pts, plotter.XY{X: pos.X(), Y: pos.Y()})
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add("survey points", scatter)
		p.Legend.Top = true
	}

	// Mark the sources.
	srcPts := make(plotter.XYs, 0, len(rm.Sources))
	for _, src := range rm.Sources {
		pos := src.Position()
		srcPts = append(srcPts, plotter.XY{X: pos.X(), Y: pos.Y()})
	}
	srcScatter, err := plotter.NewScatter(srcPts)
	if err != nil {
		return nil, err
	}
	srcScatter.GlyphStyle.Color = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	srcScatter.GlyphStyle.Radius = vg.Points(4)
	p.Add(srcScatter)
	p.Legend.Add("sources", srcScatter)

	return p, nil
}

// SavePNG renders the radio map to a PNG file.
func (rm RadioMap) SavePNG(path string, surveyPositions []geo.Point) error {
	p, err := rm.Plot(surveyPositions)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save radio map: %w", err)
	}
	return nil
}

// handleRadioMapPNG renders the radio map for the stored sources and survey.
// Query params:
//   - survey (optional; defaults to the configured survey)
//   - cells (optional; default 120)
//   - exponent (optional; default 2.0)
//   - tx_power_dbm (optional; default -30, used for uncalibrated sources)
func (m *Monitor) handleRadioMapPNG(w http.ResponseWriter, r *http.Request) {
	surveyName := m.surveyFor(r)

	located, sources, err := m.loadSurvey(surveyName)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load survey: %v", err))
		return
	}
	if len(sources) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no sources available")
		return
	}

	cells := 120
	if v := r.URL.Query().Get("cells"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 10 && parsed <= 600 {
			cells = parsed
		}
	}
	exponent := fingerprint.FreeSpacePathLossExponent
	if v := r.URL.Query().Get("exponent"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			exponent = parsed
		}
	}
	txPower := -30.0
	if v := r.URL.Query().Get("tx_power_dbm"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			txPower = parsed
		}
	}

	positions := make([]geo.Point, 0, len(located))
	for _, lf := range located {
		positions = append(positions, lf.Position())
	}

	minX, maxX, minY, maxY := bounds(sources, positions)
	rm := RadioMap{
		Sources:           sources,
		DefaultTxPowerDbm: txPower,
		PathLossExponent:  exponent,
		MinX:              minX,
		MaxX:              maxX,
		MinY:              minY,
		MaxY:              maxY,
		Cells:             cells,
	}

	p, err := rm.Plot(positions)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render radio map: %v", err))
		return
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render radio map: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

// bounds returns the bounding box of the sources and survey positions with
// 10% padding on each side.
func bounds(sources []fingerprint.Source, positions []geo.Point) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	grow := func(x, y float64) {
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}
	for _, src := range sources {
		pos := src.Position()
		grow(pos.X(), pos.Y())
	}
	for _, pos := range positions {
		grow(pos.X(), pos.Y())
	}

	padX := (maxX - minX) * 0.1
	padY := (maxY - minY) * 0.1
	if padX == 0 {
		padX = 1
	}
	if padY == 0 {
		padY = 1
	}
	return minX - padX, maxX + padX, minY - padY, maxY + padY
}
