package fingerprint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/position.report/internal/units"
)

// speedOfLight is the propagation speed in vacuum, m/s.
const speedOfLight = 299792458.0

// ExpectedRSSI returns the received signal level in dBm at distance metres
// from a source transmitting txPowerDbm at frequencyHz with path-loss
// exponent n, under the log-distance path-loss law
//
//	Pr = Pt * (c / 4πf)^n / d^n
//
// computed in linear milliwatt scale. The law is undefined at zero
// distance; callers must guard against coincident positions.
func ExpectedRSSI(txPowerDbm, distance, frequencyHz, n float64) float64 {
	pt := units.DbmToMilliwatts(txPowerDbm)
	gain := math.Pow(speedOfLight/(4*math.Pi*frequencyHz), n)
	return units.MilliwattsToDbm(pt * gain / math.Pow(distance, n))
}

// DistanceFromRSSI inverts the path-loss law, returning the distance in
// metres at which a source transmitting txPowerDbm at frequencyHz with
// path-loss exponent n is received at rssiDbm.
func DistanceFromRSSI(rssiDbm, txPowerDbm, frequencyHz, n float64) float64 {
	pr := units.DbmToMilliwatts(rssiDbm)
	pt := units.DbmToMilliwatts(txPowerDbm)
	gain := math.Pow(speedOfLight/(4*math.Pi*frequencyHz), n)
	return math.Pow(pt*gain/pr, 1/n)
}

// DistanceRatioFromRSSIDelta returns the factor relating the distances at
// which one source is heard at two levels: a receiver hearing the source at
// rssiB dBm is
//
//	10^((rssiA-rssiB) / (10n))
//
// times as far from it as a receiver hearing rssiA dBm. Transmitted power
// and antenna gain cancel in the ratio, so neither needs to be known. This
// is what lets the estimators work from survey fingerprints alone.
func DistanceRatioFromRSSIDelta(rssiA, rssiB, n float64) float64 {
	return math.Pow(10, (rssiA-rssiB)/(10*n))
}

// pathGainDb returns the fixed 1-metre gain term of the law in dB,
// 10n·log10(c/4πf).
func pathGainDb(frequencyHz, n float64) float64 {
	return 10 * n * math.Log10(speedOfLight/(4*math.Pi*frequencyHz))
}

// CalibrateFromSurvey fits the path-loss exponent and equivalent
// transmitted power of one source against located fingerprints that
// observed it. Under the log-distance law the received level is linear in
// the log of the distance,
//
//	RSSI = Pt + 10n·log10(c/4πf) - 10n·log10(d)
//
// so ordinary least squares over (log10 d, RSSI) pairs recovers n from the
// slope and Pt from the intercept. At least two fingerprints at distinct
// distances from the source are required.
func CalibrateFromSurvey(source Source, located []*LocatedFingerprint) (n, txPowerDbm float64, err error) {
	if source == nil {
		return 0, 0, fmt.Errorf("%w: nil source", ErrConfiguration)
	}
	pos := source.Position()
	var xs, ys []float64
	for _, lf := range located {
		r, ok := lf.fp.Reading(source.ID())
		if !ok {
			continue
		}
		d := lf.position.DistanceTo(pos)
		if d <= 0 || math.IsNaN(d) {
			continue
		}
		xs = append(xs, math.Log10(d))
		ys = append(ys, r.RSSI())
	}
	if len(xs) < 2 {
		return 0, 0, fmt.Errorf("%w: calibration needs at least two fingerprints observing source %q, got %d", ErrConfiguration, source.ID(), len(xs))
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	n = -slope / 10
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, 0, fmt.Errorf("%w: survey for source %q does not follow a decaying path-loss law (fitted exponent %g)", ErrEstimation, source.ID(), n)
	}
	txPowerDbm = intercept - pathGainDb(source.Frequency(), n)
	return n, txPowerDbm, nil
}
