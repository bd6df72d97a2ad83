package fingerprint

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/position.report/internal/geo"
)

// LinearEstimator produces a closed-form least-squares position estimate
// from linearized pairwise power-difference equations.
//
// For a located fingerprint and a source i heard by both it and the query,
// the path-loss law turns the RSSI difference into the squared distance
// d_qi² between the unknown position x and the source (the fingerprint's
// own distance to the source anchors the scale, so transmitted power
// cancels). Each equation ‖x-s_i‖² = d_qi² carries the quadratic term x·x;
// subtracting the equation for a second source j cancels it, leaving a
// linear row
//
//	2(s_j - s_i)·x = d_qi² - d_qj² - ‖s_i‖² + ‖s_j‖²
//
// Stacking every source pair over the working set of nearest fingerprints
// gives an overdetermined system solved by QR least squares.
type LinearEstimator struct {
	estimatorCore
}

// NewLinearEstimator returns a linear estimator with default configuration.
func NewLinearEstimator() *LinearEstimator {
	e := &LinearEstimator{estimatorCore: newEstimatorCore()}
	e.self = e
	return e
}

// Algorithm returns AlgorithmLinear.
func (e *LinearEstimator) Algorithm() Algorithm { return AlgorithmLinear }

// Estimate runs the closed-form solve. On success the result is available
// from EstimatedPosition; on failure the previous estimate is retained.
func (e *LinearEstimator) Estimate() error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	pos, err := e.solve()
	if err != nil {
		return err
	}
	e.position = pos
	return nil
}

// anchor is one source's squared distance to the unknown position, derived
// from a single fingerprint's readings.
type anchor struct {
	pos  geo.Point
	dqsq float64
}

func (e *LinearEstimator) solve() (geo.Point, error) {
	matches, err := e.workingSet()
	if err != nil {
		return nil, err
	}
	dim := e.dim()
	srcs := e.sourcesByID()
	queryLevels := e.levels(e.query)

	var rows [][]float64
	var rhs []float64
	for _, m := range matches {
		lf := m.Fingerprint
		fpLevels := e.levels(lf.fp)

		var anchors []anchor
		for _, id := range lf.fp.CommonSources(e.query) {
			src, ok := srcs[id]
			if !ok {
				continue
			}
			pos := src.Position()
			dfsq := lf.position.SquaredDistanceTo(pos)
			if dfsq == 0 {
				// law undefined where the survey point coincides with the source
				continue
			}
			ratio := DistanceRatioFromRSSIDelta(fpLevels[id], queryLevels[id], e.exponentFor(src))
			anchors = append(anchors, anchor{pos: pos, dqsq: dfsq * ratio * ratio})
		}

		for i := 0; i < len(anchors); i++ {
			for j := i + 1; j < len(anchors); j++ {
				si, sj := anchors[i].pos, anchors[j].pos
				row := make([]float64, dim)
				for d := 0; d < dim; d++ {
					row[d] = 2 * (sj.At(d) - si.At(d))
				}
				rows = append(rows, row)
				rhs = append(rhs, anchors[i].dqsq-anchors[j].dqsq-si.NormSq()+sj.NormSq())
			}
		}
	}

	if len(rows) < dim {
		return nil, fmt.Errorf("%w: %d pairwise equations cannot determine a %dD position", ErrNotReady, len(rows), dim)
	}

	a := mat.NewDense(len(rows), dim, nil)
	for r, row := range rows {
		a.SetRow(r, row)
	}
	b := mat.NewVecDense(len(rhs), rhs)

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("%w: pairwise system is singular or ill-conditioned: %v", ErrEstimation, err)
	}

	pos := make(geo.Point, dim)
	for d := 0; d < dim; d++ {
		pos[d] = x.AtVec(d)
	}
	return pos, nil
}
