package fingerprint

import "fmt"

// A Reading is one received-signal-strength observation of a radio source.
// Readings are immutable once constructed.
type Reading struct {
	sourceID  string
	rssi      float64
	stddev    float64
	hasStddev bool
}

// NewReading returns a reading of the source with the given identity at
// signal level rssi in dBm.
func NewReading(sourceID string, rssi float64) (Reading, error) {
	if sourceID == "" {
		return Reading{}, fmt.Errorf("%w: reading needs a source id", ErrConfiguration)
	}
	return Reading{sourceID: sourceID, rssi: rssi}, nil
}

// NewReadingWithStdDev returns a reading that also carries the measured
// standard deviation of the signal level in dBm. The standard deviation
// must be strictly positive.
func NewReadingWithStdDev(sourceID string, rssi, stddev float64) (Reading, error) {
	if stddev <= 0 {
		return Reading{}, fmt.Errorf("%w: standard deviation must be positive, got %g", ErrConfiguration, stddev)
	}
	r, err := NewReading(sourceID, rssi)
	if err != nil {
		return Reading{}, err
	}
	r.stddev = stddev
	r.hasStddev = true
	return r, nil
}

// SourceID returns the identity of the observed source.
func (r Reading) SourceID() string { return r.sourceID }

// RSSI returns the received signal level in dBm.
func (r Reading) RSSI() float64 { return r.rssi }

// StdDev returns the standard deviation of the signal level in dBm and
// whether one was recorded.
func (r Reading) StdDev() (float64, bool) { return r.stddev, r.hasStddev }

// SameSource reports whether r and other observe the same source.
func (r Reading) SameSource(other Reading) bool { return r.sourceID == other.sourceID }
