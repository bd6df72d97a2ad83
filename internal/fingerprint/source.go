package fingerprint

import (
	"fmt"

	"github.com/banshee-data/position.report/internal/geo"
)

// A Source is a radio transmitter at a known position. Source values are
// owned by the caller; estimators only read them. Transmitted power and
// path-loss exponent are optional: implementations report ok=false when a
// value is unknown and the estimators fall back to configured defaults.
type Source interface {
	// ID returns the identity used to match readings to sources.
	ID() string
	// Position returns the transmitter position.
	Position() geo.Point
	// Frequency returns the carrier frequency in Hz.
	Frequency() float64
	// TransmittedPower returns the equivalent transmitted power in dBm,
	// when known.
	TransmittedPower() (float64, bool)
	// PathLossExponent returns the source-specific path-loss exponent,
	// when known.
	PathLossExponent() (float64, bool)
}

// An AccessPoint is a WiFi access point with a surveyed position. It is the
// Source implementation used by the service and the command-line tools; the
// identity is conventionally the BSSID.
type AccessPoint struct {
	id        string
	position  geo.Point
	frequency float64
	txPower   *float64
	pathLoss  *float64
}

// NewAccessPoint returns an access point with the given identity, position
// and carrier frequency in Hz.
func NewAccessPoint(id string, position geo.Point, frequencyHz float64) (*AccessPoint, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: access point needs an id", ErrConfiguration)
	}
	if d := position.Dim(); d != 2 && d != 3 {
		return nil, fmt.Errorf("%w: access point position must be 2D or 3D, got %dD", ErrConfiguration, d)
	}
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("%w: frequency must be positive, got %g", ErrConfiguration, frequencyHz)
	}
	return &AccessPoint{id: id, position: position.Clone(), frequency: frequencyHz}, nil
}

// ID returns the access point identity.
func (ap *AccessPoint) ID() string { return ap.id }

// Position returns a copy of the access point position.
func (ap *AccessPoint) Position() geo.Point { return ap.position.Clone() }

// Frequency returns the carrier frequency in Hz.
func (ap *AccessPoint) Frequency() float64 { return ap.frequency }

// TransmittedPower returns the equivalent transmitted power in dBm, when
// set.
func (ap *AccessPoint) TransmittedPower() (float64, bool) {
	if ap.txPower == nil {
		return 0, false
	}
	return *ap.txPower, true
}

// PathLossExponent returns the calibrated path-loss exponent for this
// access point, when set.
func (ap *AccessPoint) PathLossExponent() (float64, bool) {
	if ap.pathLoss == nil {
		return 0, false
	}
	return *ap.pathLoss, true
}

// SetTransmittedPower records the equivalent transmitted power in dBm.
func (ap *AccessPoint) SetTransmittedPower(dbm float64) {
	ap.txPower = &dbm
}

// SetPathLossExponent records a calibrated path-loss exponent. The exponent
// must be positive.
func (ap *AccessPoint) SetPathLossExponent(n float64) error {
	if n <= 0 {
		return fmt.Errorf("%w: path-loss exponent must be positive, got %g", ErrConfiguration, n)
	}
	ap.pathLoss = &n
	return nil
}
