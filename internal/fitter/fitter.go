// Package fitter provides a weighted Levenberg-Marquardt least-squares
// fitter for small dense problems.
//
// The fitter refines a parameter vector so that a caller-supplied model
// evaluated at each observation's input data matches the observed targets in
// the weighted least-squares sense. It knows nothing about the model beyond
// the Evaluator callback, which returns the prediction for one observation
// and fills in the gradient of that prediction with respect to the
// parameters.
package fitter

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoConvergence reports that the damping or iteration limit was
	// reached before the fit converged.
	ErrNoConvergence = errors.New("fitter: no convergence")

	// ErrSingular reports that the normal matrix cannot be inverted, for
	// example when there are fewer observations than parameters.
	ErrSingular = errors.New("fitter: singular normal matrix")
)

// An Evaluator computes the model prediction for one observation and its
// gradient with respect to the parameters.
//
// i is the observation index, point is the observation's fixed input data,
// params is the current parameter vector, and deriv must be filled with
// the partial derivative of the prediction with respect to params[j],
// evaluated at params.
type Evaluator interface {
	Evaluate(i int, point, params, deriv []float64) (float64, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(i int, point, params, deriv []float64) (float64, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(i int, point, params, deriv []float64) (float64, error) {
	return f(i, point, params, deriv)
}

// Default fit limits, used when the corresponding Problem field is zero.
const (
	DefaultMaxIterations = 50
	DefaultTolerance     = 1e-10
)

// Damping schedule. Lambda grows by lambdaUp on each rejected step and
// shrinks by lambdaDown on each accepted one; a lambda above lambdaMax means
// the iteration cannot make progress.
const (
	initialLambda = 1e-3
	lambdaUp      = 10.0
	lambdaDown    = 0.3
	lambdaMax     = 1e12

	// chiSqFloor is the absolute chi-square below which a fit is accepted
	// as exact, regardless of relative improvement.
	chiSqFloor = 1e-16
)

// A Problem describes one weighted least-squares fit.
type Problem struct {
	// Points holds the fixed input data for each observation, passed
	// through to the Evaluator untouched.
	Points [][]float64
	// Targets holds the observed value for each observation.
	Targets []float64
	// StdDevs holds the per-observation standard deviation; observation i
	// is weighted by 1/StdDevs[i]. All entries must be positive.
	StdDevs []float64
	// InitialParams is the starting parameter vector.
	InitialParams []float64

	// MaxIterations bounds the number of accepted Levenberg-Marquardt
	// steps. Zero selects DefaultMaxIterations.
	MaxIterations int
	// Tolerance is the relative chi-square improvement below which the
	// fit is considered converged. Zero selects DefaultTolerance.
	Tolerance float64
}

// A Result holds the fitted parameters and fit quality.
type Result struct {
	// Params is the refined parameter vector.
	Params []float64
	// Covariance is the inverse of the normal matrix at the solution, or
	// nil when it could not be inverted.
	Covariance *mat.Dense
	// ChiSq is the weighted sum of squared residuals at the solution.
	ChiSq float64
	// Iterations is the number of accepted steps taken.
	Iterations int
}

// Fit refines the problem's parameters by damped least squares. It returns
// ErrNoConvergence when the iteration or damping limit is exhausted and
// ErrSingular when the normal matrix is structurally rank deficient.
func Fit(p Problem, eval Evaluator) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	maxIter := p.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}
	tol := p.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}

	n := len(p.InitialParams)
	params := make([]float64, n)
	copy(params, p.InitialParams)

	jac, res, chiSq, err := buildSystem(p, eval, params)
	if err != nil {
		return nil, err
	}

	lambda := initialLambda
	for iter := 1; iter <= maxIter; iter++ {
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), res)

		// Inner loop: escalate damping until a step is accepted.
		for {
			a := mat.DenseCopyOf(&jtj)
			for k := 0; k < n; k++ {
				a.Set(k, k, jtj.At(k, k)*(1+lambda))
			}
			var delta mat.VecDense
			if err := delta.SolveVec(a, &jtr); err != nil {
				lambda *= lambdaUp
				if lambda > lambdaMax {
					return nil, fmt.Errorf("%w: damped system unsolvable after %d steps", ErrSingular, iter)
				}
				continue
			}

			try := make([]float64, n)
			for k := 0; k < n; k++ {
				try[k] = params[k] + delta.AtVec(k)
			}
			jacTry, resTry, chiTry, err := buildSystem(p, eval, try)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(chiTry) || chiTry > chiSq {
				lambda *= lambdaUp
				if lambda > lambdaMax {
					return nil, fmt.Errorf("%w: no acceptable step at iteration %d (chi-square %g)", ErrNoConvergence, iter, chiSq)
				}
				continue
			}

			improvement := chiSq - chiTry
			converged := chiTry <= chiSqFloor || improvement <= tol*chiSq
			params, jac, res, chiSq = try, jacTry, resTry, chiTry
			lambda *= lambdaDown

			if converged {
				return &Result{
					Params:     params,
					Covariance: covariance(jac),
					ChiSq:      chiSq,
					Iterations: iter,
				}, nil
			}
			break
		}
	}
	return nil, fmt.Errorf("%w: chi-square %g after %d iterations", ErrNoConvergence, chiSq, maxIter)
}

func validate(p Problem) error {
	m := len(p.Points)
	n := len(p.InitialParams)
	if m == 0 {
		return errors.New("fitter: no observations")
	}
	if n == 0 {
		return errors.New("fitter: no parameters")
	}
	if len(p.Targets) != m || len(p.StdDevs) != m {
		return fmt.Errorf("fitter: %d points, %d targets, %d standard deviations", m, len(p.Targets), len(p.StdDevs))
	}
	for i, sd := range p.StdDevs {
		if sd <= 0 || math.IsNaN(sd) {
			return fmt.Errorf("fitter: standard deviation of observation %d is %g, must be positive", i, sd)
		}
	}
	if m < n {
		return fmt.Errorf("%w: %d observations cannot determine %d parameters", ErrSingular, m, n)
	}
	return nil
}

// buildSystem evaluates the model at params, returning the weighted
// Jacobian, the weighted residual vector and the chi-square.
func buildSystem(p Problem, eval Evaluator, params []float64) (*mat.Dense, *mat.VecDense, float64, error) {
	m := len(p.Points)
	n := len(params)
	jac := mat.NewDense(m, n, nil)
	res := mat.NewVecDense(m, nil)
	deriv := make([]float64, n)

	var chiSq float64
	for i := 0; i < m; i++ {
		clear(deriv)
		pred, err := eval.Evaluate(i, p.Points[i], params, deriv)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("fitter: evaluate observation %d: %w", i, err)
		}
		w := 1 / p.StdDevs[i]
		r := w * (p.Targets[i] - pred)
		res.SetVec(i, r)
		chiSq += r * r
		for j := 0; j < n; j++ {
			jac.Set(i, j, w*deriv[j])
		}
	}
	return jac, res, chiSq, nil
}

// covariance inverts the undamped normal matrix at the solution. A nil
// return means the inverse does not exist.
func covariance(jac *mat.Dense) *mat.Dense {
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	var cov mat.Dense
	if err := cov.Inverse(&jtj); err != nil {
		return nil
	}
	return &cov
}
