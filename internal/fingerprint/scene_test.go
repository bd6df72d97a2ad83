package fingerprint

// Shared helpers for building synthetic radio scenes: access points at
// known positions and fingerprints whose readings follow the log-distance
// law exactly, so estimator accuracy can be asserted against ground truth.

import (
	"math/rand"
	"testing"

	"github.com/banshee-data/position.report/internal/geo"
	"github.com/banshee-data/position.report/internal/units"
)

const (
	testFrequency = 2437 * units.Megahertz
	testTxPower   = -60.0
	testExponent  = 2.0
)

func mustReading(t *testing.T, id string, rssi float64) Reading {
	t.Helper()
	r, err := NewReading(id, rssi)
	if err != nil {
		t.Fatalf("NewReading(%q): %v", id, err)
	}
	return r
}

func mustFingerprint(t *testing.T, readings ...Reading) *Fingerprint {
	t.Helper()
	fp, err := New(readings...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fp
}

func mustLocated(t *testing.T, fp *Fingerprint, pos geo.Point) *LocatedFingerprint {
	t.Helper()
	lf, err := NewLocated(fp, pos)
	if err != nil {
		t.Fatalf("NewLocated: %v", err)
	}
	return lf
}

// testAccessPoints places access points at the given 2D positions with the
// shared test frequency and transmitted power.
func testAccessPoints(t *testing.T, positions []geo.Point) []Source {
	t.Helper()
	sources := make([]Source, len(positions))
	for i, pos := range positions {
		ap, err := NewAccessPoint(apID(i), pos, testFrequency)
		if err != nil {
			t.Fatalf("NewAccessPoint: %v", err)
		}
		ap.SetTransmittedPower(testTxPower)
		sources[i] = ap
	}
	return sources
}

func apID(i int) string {
	return string(rune('a'+i)) + "a:bb:cc:dd:ee:ff"
}

// fiveSourceScene is the standard test scene: five non-collinear access
// points spread over a 20x20 m area. The offsets keep survey points from
// ever coinciding with a source.
func fiveSourceScene(t *testing.T) []Source {
	t.Helper()
	return testAccessPoints(t, []geo.Point{
		geo.NewPoint2D(0.3, 0.7),
		geo.NewPoint2D(19.1, 0.2),
		geo.NewPoint2D(0.1, 19.3),
		geo.NewPoint2D(19.7, 19.9),
		geo.NewPoint2D(9.8, 10.4),
	})
}

// fingerprintAt builds a fingerprint at pos with readings generated from
// the log-distance law for every source, plus a constant bias in dBm.
func fingerprintAt(t *testing.T, sources []Source, pos geo.Point, bias float64) *Fingerprint {
	t.Helper()
	readings := make([]Reading, 0, len(sources))
	for _, s := range sources {
		d := pos.DistanceTo(s.Position())
		if d == 0 {
			t.Fatalf("test scene places %v on top of source %s", pos, s.ID())
		}
		tx, _ := s.TransmittedPower()
		rssi := ExpectedRSSI(tx, d, s.Frequency(), testExponent) + bias
		readings = append(readings, mustReading(t, s.ID(), rssi))
	}
	return mustFingerprint(t, readings...)
}

// gridSurvey lays located fingerprints on a regular grid over [0,20]^2,
// excluding the border.
func gridSurvey(t *testing.T, sources []Source, perSide int) []*LocatedFingerprint {
	t.Helper()
	located := make([]*LocatedFingerprint, 0, perSide*perSide)
	step := 20.0 / float64(perSide+1)
	for i := 1; i <= perSide; i++ {
		for j := 1; j <= perSide; j++ {
			pos := geo.NewPoint2D(step*float64(i), step*float64(j))
			located = append(located, mustLocated(t, fingerprintAt(t, sources, pos, 0), pos))
		}
	}
	return located
}

// randomSurvey lays located fingerprints at n uniform random positions over
// [0,20]^2.
func randomSurvey(t *testing.T, sources []Source, rng *rand.Rand, n int) []*LocatedFingerprint {
	t.Helper()
	located := make([]*LocatedFingerprint, 0, n)
	for i := 0; i < n; i++ {
		pos := geo.NewPoint2D(rng.Float64()*20, rng.Float64()*20)
		located = append(located, mustLocated(t, fingerprintAt(t, sources, pos, 0), pos))
	}
	return located
}
