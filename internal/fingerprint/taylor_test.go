package fingerprint

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/position.report/internal/geo"
)

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"first", OrderFirst, false},
		{"1", OrderFirst, false},
		{"SECOND", OrderSecond, false},
		{"2", OrderSecond, false},
		{" third ", OrderThird, false},
		{"3", OrderThird, false},
		{"zeroth", 0, true},
		{"4", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseOrder(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("ParseOrder(%q) = %v, want ErrConfiguration", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOrder(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseOrder(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOrderStringAndValid(t *testing.T) {
	if got := OrderFirst.String(); got != "first" {
		t.Errorf("OrderFirst.String() = %q", got)
	}
	if got := OrderThird.String(); got != "third" {
		t.Errorf("OrderThird.String() = %q", got)
	}
	if Order(0).Valid() || Order(4).Valid() {
		t.Error("out-of-range orders report Valid")
	}
	if !OrderSecond.Valid() {
		t.Error("OrderSecond reports invalid")
	}
}

// lawLevelAt computes the exact log-distance level at x, referenced to the
// measured anchor level so that the transmitted power cancels.
func lawLevelAt(anchorRSSI float64, anchor, source geo.Point, n float64, x geo.Point) float64 {
	c := 10 * n / math.Ln10
	return anchorRSSI - c*math.Log(x.DistanceTo(source)/anchor.DistanceTo(source))
}

func TestTaylorModelAccuracyImprovesWithOrder(t *testing.T) {
	const (
		anchorRSSI = -70.0
		n          = 2.0
	)
	anchor := geo.NewPoint2D(3, 4)
	source := geo.NewPoint2D(0, 0)
	x := []float64{3.2, 3.9}
	truth := lawLevelAt(anchorRSSI, anchor, source, n, geo.Point(x))

	errAt := func(order Order) float64 {
		m, err := newTaylorModel(anchorRSSI, anchor, source, n, order)
		if err != nil {
			t.Fatalf("newTaylorModel(%v): %v", order, err)
		}
		return math.Abs(m.evaluate(x) - truth)
	}

	err1 := errAt(OrderFirst)
	err2 := errAt(OrderSecond)
	err3 := errAt(OrderThird)

	if !(err1 > err2 && err2 > err3) {
		t.Errorf("truncation errors not decreasing: first %v, second %v, third %v", err1, err2, err3)
	}
	if err1 < 1e-3 {
		t.Errorf("first-order error %v suspiciously small for a 0.22 m offset", err1)
	}
	if err3 > 1e-4 {
		t.Errorf("third-order error %v, want < 1e-4", err3)
	}
}

func TestTaylorModelExactAtAnchor(t *testing.T) {
	anchor := geo.NewPoint2D(6, 2)
	m, err := newTaylorModel(-58, anchor, geo.NewPoint2D(1, 1), 2.4, OrderThird)
	if err != nil {
		t.Fatalf("newTaylorModel: %v", err)
	}
	if got := m.evaluate([]float64{6, 2}); got != -58 {
		t.Errorf("evaluate(anchor) = %v, want the anchor level -58", got)
	}
}

func TestTaylorGradientMatchesFiniteDifference(t *testing.T) {
	cases := []struct {
		name   string
		anchor geo.Point
		source geo.Point
		at     []float64
	}{
		{"2d", geo.NewPoint2D(3, 4), geo.NewPoint2D(0, 0), []float64{3.7, 3.6}},
		{"3d", geo.NewPoint3D(3, 4, 1), geo.NewPoint3D(0, 0, 0), []float64{3.3, 3.8, 1.15}},
	}
	const h = 1e-6

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, order := range []Order{OrderFirst, OrderSecond, OrderThird} {
				m, err := newTaylorModel(-64, tc.anchor, tc.source, 2.7, order)
				if err != nil {
					t.Fatalf("newTaylorModel(%v): %v", order, err)
				}

				dim := len(tc.at)
				grad := make([]float64, dim)
				m.gradient(tc.at, grad)

				for i := 0; i < dim; i++ {
					up := append([]float64(nil), tc.at...)
					down := append([]float64(nil), tc.at...)
					up[i] += h
					down[i] -= h
					numeric := (m.evaluate(up) - m.evaluate(down)) / (2 * h)
					if math.Abs(numeric-grad[i]) > 1e-5 {
						t.Errorf("order %v component %d: gradient %v, finite difference %v", order, i, grad[i], numeric)
					}
				}
			}
		})
	}
}

func TestTaylorModelValidation(t *testing.T) {
	anchor := geo.NewPoint2D(1, 2)
	source := geo.NewPoint2D(4, 6)

	if _, err := newTaylorModel(-60, anchor, source, 2, Order(0)); !errors.Is(err, ErrConfiguration) {
		t.Errorf("order 0 = %v, want ErrConfiguration", err)
	}
	if _, err := newTaylorModel(-60, anchor, geo.NewPoint3D(4, 6, 1), 2, OrderFirst); !errors.Is(err, ErrConfiguration) {
		t.Errorf("dimension mismatch = %v, want ErrConfiguration", err)
	}
	if _, err := newTaylorModel(-60, anchor, anchor.Clone(), 2, OrderFirst); !errors.Is(err, ErrEstimation) {
		t.Errorf("anchor at the source = %v, want ErrEstimation", err)
	}
}
