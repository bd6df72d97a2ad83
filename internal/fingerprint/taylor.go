package fingerprint

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/position.report/internal/geo"
)

// Order selects how many terms of the Taylor expansion of the propagation
// model around a fingerprint position are used to build the derivatives fed
// to the nonlinear fitter. Higher orders capture more curvature of the
// inverse power law and converge to a more accurate estimate, at higher
// per-iteration cost.
type Order int

const (
	// OrderFirst uses the linear term only.
	OrderFirst Order = iota + 1
	// OrderSecond adds the quadratic curvature term.
	OrderSecond
	// OrderThird adds the cubic correction term.
	OrderThird
)

// Valid reports whether o is a defined expansion order.
func (o Order) Valid() bool { return o >= OrderFirst && o <= OrderThird }

func (o Order) String() string {
	switch o {
	case OrderFirst:
		return "first"
	case OrderSecond:
		return "second"
	case OrderThird:
		return "third"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseOrder converts the textual or numeric form of an expansion order
// ("first", "2", "third", ...) into an Order.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "1":
		return OrderFirst, nil
	case "second", "2":
		return OrderSecond, nil
	case "third", "3":
		return OrderThird, nil
	default:
		return 0, fmt.Errorf("%w: unknown taylor order %q", ErrConfiguration, s)
	}
}

// taylorModel is the truncated Taylor expansion of the log-distance law
// about an anchor fingerprint position. With u = x - anchor it predicts
//
//	RSSI(x) = anchorRSSI + D·u + u'Hu/2 + Σ T_ijk u_i u_j u_k / 6
//
// where D, H and T are the first, second and third position derivatives of
// the law at the anchor. The anchor term is the fingerprint's measured
// level rather than a model prediction, so the transmitted power (which
// only shifts the law by a constant) never enters.
type taylorModel struct {
	order      Order
	anchorRSSI float64
	anchor     geo.Point
	grad       []float64
	hess       [][]float64
	third      [][][]float64
}

// newTaylorModel evaluates the law's derivatives at the anchor position.
// The derivatives follow from RSSI(x) = K - C·ln‖x-s‖ with C = 10n/ln10:
//
//	∂RSSI/∂x_i     = -C·v_i/d²
//	∂²RSSI/∂x_i∂x_j  = -C·(δ_ij/d² - 2v_i v_j/d⁴)
//	∂³RSSI/∂x_i∂x_j∂x_k = -C·(8v_i v_j v_k/d⁶ - 2(δ_ij v_k + δ_ik v_j + δ_jk v_i)/d⁴)
//
// with v = anchor - source and d = ‖v‖.
func newTaylorModel(anchorRSSI float64, anchor, source geo.Point, n float64, order Order) (*taylorModel, error) {
	if !order.Valid() {
		return nil, fmt.Errorf("%w: invalid taylor order %d", ErrConfiguration, int(order))
	}
	dim := anchor.Dim()
	if source.Dim() != dim {
		return nil, fmt.Errorf("%w: anchor is %dD but source is %dD", ErrConfiguration, dim, source.Dim())
	}
	dsq := anchor.SquaredDistanceTo(source)
	if dsq == 0 {
		return nil, fmt.Errorf("%w: fingerprint recorded at the source position, path-loss law undefined", ErrEstimation)
	}

	c := 10 * n / math.Ln10
	v := make([]float64, dim)
	for i := range v {
		v[i] = anchor.At(i) - source.At(i)
	}

	m := &taylorModel{
		order:      order,
		anchorRSSI: anchorRSSI,
		anchor:     anchor.Clone(),
		grad:       make([]float64, dim),
	}
	for i := 0; i < dim; i++ {
		m.grad[i] = -c * v[i] / dsq
	}

	if order >= OrderSecond {
		d4 := dsq * dsq
		m.hess = make([][]float64, dim)
		for i := 0; i < dim; i++ {
			m.hess[i] = make([]float64, dim)
			for j := 0; j < dim; j++ {
				h := 2 * v[i] * v[j] / d4
				if i == j {
					h -= 1 / dsq
				}
				m.hess[i][j] = c * h
			}
		}
	}

	if order >= OrderThird {
		d4 := dsq * dsq
		d6 := d4 * dsq
		m.third = make([][][]float64, dim)
		for i := 0; i < dim; i++ {
			m.third[i] = make([][]float64, dim)
			for j := 0; j < dim; j++ {
				m.third[i][j] = make([]float64, dim)
				for k := 0; k < dim; k++ {
					t := 8 * v[i] * v[j] * v[k] / d6
					if i == j {
						t -= 2 * v[k] / d4
					}
					if i == k {
						t -= 2 * v[j] / d4
					}
					if j == k {
						t -= 2 * v[i] / d4
					}
					m.third[i][j][k] = -c * t
				}
			}
		}
	}
	return m, nil
}

// evaluate returns the truncated model's predicted RSSI at params.
func (m *taylorModel) evaluate(params []float64) float64 {
	dim := len(m.grad)
	u := make([]float64, dim)
	for i := range u {
		u[i] = params[i] - m.anchor[i]
	}

	val := m.anchorRSSI
	for i := 0; i < dim; i++ {
		val += m.grad[i] * u[i]
	}
	if m.order >= OrderSecond {
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				val += m.hess[i][j] * u[i] * u[j] / 2
			}
		}
	}
	if m.order >= OrderThird {
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				for k := 0; k < dim; k++ {
					val += m.third[i][j][k] * u[i] * u[j] * u[k] / 6
				}
			}
		}
	}
	return val
}

// gradient fills out with the truncated model's position gradient at
// params.
func (m *taylorModel) gradient(params []float64, out []float64) {
	dim := len(m.grad)
	u := make([]float64, dim)
	for i := range u {
		u[i] = params[i] - m.anchor[i]
	}

	for i := 0; i < dim; i++ {
		out[i] = m.grad[i]
	}
	if m.order >= OrderSecond {
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				out[i] += m.hess[i][j] * u[j]
			}
		}
	}
	if m.order >= OrderThird {
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				for k := 0; k < dim; k++ {
					out[i] += m.third[i][j][k] * u[j] * u[k] / 2
				}
			}
		}
	}
}
