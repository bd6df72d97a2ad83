// Package geo provides the point geometry shared by the fingerprint and
// estimation packages.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Point is an n-dimensional position in metres. The estimation engine works
// with 2D and 3D points; all points flowing through one estimator must share
// the same dimension.
type Point []float64

// NewPoint2D returns a 2D point at (x, y).
func NewPoint2D(x, y float64) Point { return Point{x, y} }

// NewPoint3D returns a 3D point at (x, y, z).
func NewPoint3D(x, y, z float64) Point { return Point{x, y, z} }

// Dim returns the number of coordinates.
func (p Point) Dim() int { return len(p) }

// At returns the i-th coordinate.
func (p Point) At(i int) float64 { return p[i] }

// X returns the first coordinate, or 0 for an empty point.
func (p Point) X() float64 {
	if len(p) < 1 {
		return 0
	}
	return p[0]
}

// Y returns the second coordinate, or 0 for a point with fewer than two
// coordinates.
func (p Point) Y() float64 {
	if len(p) < 2 {
		return 0
	}
	return p[1]
}

// Z returns the third coordinate, or 0 for a 2D point.
func (p Point) Z() float64 {
	if len(p) < 3 {
		return 0
	}
	return p[2]
}

// DistanceTo returns the Euclidean distance between p and q. Points of
// different dimension have no defined distance and yield NaN.
func (p Point) DistanceTo(q Point) float64 {
	return math.Sqrt(p.SquaredDistanceTo(q))
}

// SquaredDistanceTo returns the squared Euclidean distance between p and q,
// or NaN if the dimensions differ.
func (p Point) SquaredDistanceTo(q Point) float64 {
	if len(p) != len(q) {
		return math.NaN()
	}
	var sum float64
	for i := range p {
		d := p[i] - q[i]
		sum += d * d
	}
	return sum
}

// NormSq returns the squared Euclidean norm of p treated as a vector from
// the origin.
func (p Point) NormSq() float64 {
	var sum float64
	for _, c := range p {
		sum += c * c
	}
	return sum
}

// Equal reports whether p and q have the same dimension and coordinates.
func (p Point) Equal(q Point) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of p.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	out := make(Point, len(p))
	copy(out, p)
	return out
}

// String formats the point as "(x, y)" or "(x, y, z)".
func (p Point) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = strconv.FormatFloat(c, 'g', -1, 64)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
