package fingerprint

import (
	"fmt"
	"sort"

	"github.com/banshee-data/position.report/internal/geo"
)

// A Fingerprint is an unordered collection of readings to distinct radio
// sources, keyed by source identity. Insertion order is irrelevant and each
// source may appear at most once.
type Fingerprint struct {
	readings map[string]Reading
}

// New returns a fingerprint over the given readings.
func New(readings ...Reading) (*Fingerprint, error) {
	m := make(map[string]Reading, len(readings))
	for _, r := range readings {
		if r.sourceID == "" {
			return nil, fmt.Errorf("%w: zero-value reading", ErrConfiguration)
		}
		if _, dup := m[r.sourceID]; dup {
			return nil, fmt.Errorf("%w: duplicate reading for source %q", ErrConfiguration, r.sourceID)
		}
		m[r.sourceID] = r
	}
	return &Fingerprint{readings: m}, nil
}

// Len returns the number of readings.
func (f *Fingerprint) Len() int { return len(f.readings) }

// Reading returns the reading for the given source and whether one exists.
func (f *Fingerprint) Reading(sourceID string) (Reading, bool) {
	r, ok := f.readings[sourceID]
	return r, ok
}

// Readings returns the readings sorted by source identity. The slice is a
// copy; mutating it does not affect the fingerprint.
func (f *Fingerprint) Readings() []Reading {
	out := make([]Reading, 0, len(f.readings))
	for _, r := range f.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sourceID < out[j].sourceID })
	return out
}

// SourceIDs returns the observed source identities sorted ascending.
func (f *Fingerprint) SourceIDs() []string {
	ids := make([]string, 0, len(f.readings))
	for id := range f.readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MeanRSSI returns the mean signal level across all readings in dBm, or 0
// for an empty fingerprint. Subtracting this mean from each reading cancels
// a constant receiver calibration offset when comparing fingerprints taken
// by different devices.
func (f *Fingerprint) MeanRSSI() float64 {
	if len(f.readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range f.readings {
		sum += r.rssi
	}
	return sum / float64(len(f.readings))
}

// CommonSources returns the identities of sources observed by both f and
// other, sorted ascending.
func (f *Fingerprint) CommonSources(other *Fingerprint) []string {
	ids := make([]string, 0)
	for id := range f.readings {
		if _, ok := other.readings[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// A LocatedFingerprint is a fingerprint recorded at a known position. It is
// created once when a survey point is captured and never mutated afterward.
type LocatedFingerprint struct {
	fp       *Fingerprint
	position geo.Point
}

// NewLocated ties a fingerprint to the position it was recorded at. The
// position must be 2D or 3D.
func NewLocated(fp *Fingerprint, position geo.Point) (*LocatedFingerprint, error) {
	if fp == nil {
		return nil, fmt.Errorf("%w: nil fingerprint", ErrConfiguration)
	}
	if d := position.Dim(); d != 2 && d != 3 {
		return nil, fmt.Errorf("%w: position must be 2D or 3D, got %dD", ErrConfiguration, d)
	}
	return &LocatedFingerprint{fp: fp, position: position.Clone()}, nil
}

// Fingerprint returns the signal readings recorded at the survey position.
func (lf *LocatedFingerprint) Fingerprint() *Fingerprint { return lf.fp }

// Position returns a copy of the surveyed position.
func (lf *LocatedFingerprint) Position() geo.Point { return lf.position.Clone() }
