package fingerprint

import (
	"fmt"

	"github.com/banshee-data/position.report/internal/fitter"
	"github.com/banshee-data/position.report/internal/geo"
)

// Nonlinear estimator defaults.
const (
	// DefaultFallbackStdDev weights observations whose reading carries no
	// measured standard deviation, in dBm.
	DefaultFallbackStdDev = 1.0
	// DefaultTaylorOrder balances accuracy against per-iteration cost.
	DefaultTaylorOrder = OrderSecond
)

// NonlinearEstimator refines a position iteratively by fitting the
// log-distance propagation model with a damped least-squares fitter.
//
// Each (nearest fingerprint, common source) pair contributes one
// observation: the query's level for that source is the target, and the
// model is the Taylor expansion of the law about the fingerprint's
// position, truncated at the configured order. The expansion anchors on the
// fingerprint's measured level rather than a model prediction, so
// transmitted powers never enter. Observations are weighted by the inverse
// of the query reading's standard deviation, falling back to a configured
// value when the reading carries none.
type NonlinearEstimator struct {
	estimatorCore
	order          Order
	initial        geo.Point
	fallbackStdDev float64
	fitterMaxIter  int
}

// NewNonlinearEstimator returns a nonlinear estimator of the given Taylor
// expansion order with default configuration.
func NewNonlinearEstimator(order Order) (*NonlinearEstimator, error) {
	if !order.Valid() {
		return nil, fmt.Errorf("%w: invalid taylor order %d", ErrConfiguration, int(order))
	}
	e := &NonlinearEstimator{
		estimatorCore:  newEstimatorCore(),
		order:          order,
		fallbackStdDev: DefaultFallbackStdDev,
	}
	e.self = e
	return e, nil
}

// Algorithm returns AlgorithmNonlinear.
func (e *NonlinearEstimator) Algorithm() Algorithm { return AlgorithmNonlinear }

// TaylorOrder returns the configured expansion order.
func (e *NonlinearEstimator) TaylorOrder() Order { return e.order }

// SetTaylorOrder selects the expansion order used to build the fitter's
// derivatives.
func (e *NonlinearEstimator) SetTaylorOrder(order Order) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if !order.Valid() {
		return fmt.Errorf("%w: invalid taylor order %d", ErrConfiguration, int(order))
	}
	e.order = order
	return nil
}

// InitialPosition returns the configured starting guess, if any.
func (e *NonlinearEstimator) InitialPosition() (geo.Point, bool) {
	if e.initial == nil {
		return nil, false
	}
	return e.initial.Clone(), true
}

// SetInitialPosition fixes the fit's starting guess. A nil position clears
// it, falling back to the nearest fingerprint's position.
func (e *NonlinearEstimator) SetInitialPosition(p geo.Point) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if p != nil {
		if d := p.Dim(); d != 2 && d != 3 {
			return fmt.Errorf("%w: initial position must be 2D or 3D, got %dD", ErrConfiguration, d)
		}
	}
	e.initial = p.Clone()
	return nil
}

// FallbackStdDev returns the standard deviation assumed for readings that
// do not carry one.
func (e *NonlinearEstimator) FallbackStdDev() float64 { return e.fallbackStdDev }

// SetFallbackStdDev sets the standard deviation assumed for readings that
// do not carry one. It must be strictly positive.
func (e *NonlinearEstimator) SetFallbackStdDev(sd float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if sd <= 0 {
		return fmt.Errorf("%w: fallback standard deviation must be positive, got %g", ErrConfiguration, sd)
	}
	e.fallbackStdDev = sd
	return nil
}

// SetFitterMaxIterations bounds the underlying fitter's accepted steps.
// Zero restores the fitter default.
func (e *NonlinearEstimator) SetFitterMaxIterations(n int) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: iteration cap must not be negative, got %d", ErrConfiguration, n)
	}
	e.fitterMaxIter = n
	return nil
}

// Estimate runs the iterative fit. On success the result is available from
// EstimatedPosition; on failure the previous estimate is retained.
func (e *NonlinearEstimator) Estimate() error {
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

func (e *NonlinearEstimator) solve() (geo.Point, error) {
	matches, err := e.workingSet()
	if err != nil {
		return nil, err
	}
	dim := e.dim()
	srcs := e.sourcesByID()
	queryLevels := e.levels(e.query)

	var (
		points  [][]float64
		targets []float64
		stddevs []float64
		models  []*taylorModel
	)
	for _, m := range matches {
		lf := m.Fingerprint
		fpLevels := e.levels(lf.fp)
		for _, id := range lf.fp.CommonSources(e.query) {
			src, ok := srcs[id]
			if !ok {
				continue
			}
			n := e.exponentFor(src)
			model, err := newTaylorModel(fpLevels[id], lf.position, src.Position(), n, e.order)
			if err != nil {
				return nil, err
			}
			models = append(models, model)
			points = append(points, packObservation(fpLevels[id], lf.position, src.Position(), n))
			targets = append(targets, queryLevels[id])

			sd := e.fallbackStdDev
			if r, ok := e.query.Reading(id); ok {
				if s, ok := r.StdDev(); ok {
					sd = s
				}
			}
			stddevs = append(stddevs, sd)
		}
	}
	if len(points) < dim {
		return nil, fmt.Errorf("%w: %d observations cannot determine a %dD position", ErrNotReady, len(points), dim)
	}

	initial := e.initial
	if initial == nil {
		initial = matches[0].Fingerprint.position
	}
	if initial.Dim() != dim {
		return nil, fmt.Errorf("%w: initial position is %dD but the survey is %dD", ErrConfiguration, initial.Dim(), dim)
	}

	problem := fitter.Problem{
		Points:        points,
		Targets:       targets,
		StdDevs:       stddevs,
		InitialParams: []float64(initial.Clone()),
		MaxIterations: e.fitterMaxIter,
	}
	eval := fitter.EvaluatorFunc(func(i int, point, params, deriv []float64) (float64, error) {
		models[i].gradient(params, deriv)
		return models[i].evaluate(params), nil
	})
	res, err := fitter.Fit(problem, eval)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	return geo.Point(res.Params).Clone(), nil
}

// packObservation lays out one observation's fixed input data for the
// fitter: anchor RSSI, anchor fingerprint position, source position,
// path-loss exponent.
func packObservation(anchorRSSI float64, anchorPos, sourcePos geo.Point, n float64) []float64 {
	point := make([]float64, 0, 2+anchorPos.Dim()+sourcePos.Dim())
	point = append(point, anchorRSSI)
	point = append(point, anchorPos...)
	point = append(point, sourcePos...)
	point = append(point, n)
	return point
}
