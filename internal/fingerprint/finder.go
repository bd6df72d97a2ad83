package fingerprint

import (
	"fmt"
	"math"
	"sort"
)

// A Comparator selects the signal-distance metric used to rank located
// fingerprints against a query.
type Comparator int

const (
	// CompareRawRSSI ranks by the Euclidean norm over the raw RSSI
	// differences of sources present in both fingerprints.
	CompareRawRSSI Comparator = iota
	// CompareMeanRemoved subtracts each fingerprint's own mean RSSI from
	// its readings before taking the norm, so a constant per-device
	// calibration offset cancels instead of dominating the distance.
	CompareMeanRemoved
)

// Valid reports whether c is a defined comparator.
func (c Comparator) Valid() bool {
	return c == CompareRawRSSI || c == CompareMeanRemoved
}

func (c Comparator) String() string {
	switch c {
	case CompareRawRSSI:
		return "raw-rssi"
	case CompareMeanRemoved:
		return "mean-removed"
	default:
		return fmt.Sprintf("comparator(%d)", int(c))
	}
}

// A Match pairs a located fingerprint with its signal distance from a
// query.
type Match struct {
	Fingerprint *LocatedFingerprint
	Distance    float64
}

// SignalDistance returns the distance between two fingerprints under the
// given comparator: the Euclidean norm of their RSSI differences over
// sources present in both. ok is false when the fingerprints share no
// source, in which case the distance is undefined.
func SignalDistance(a, b *Fingerprint, compare Comparator) (float64, bool) {
	common := a.CommonSources(b)
	if len(common) == 0 {
		return 0, false
	}
	var meanA, meanB float64
	if compare == CompareMeanRemoved {
		meanA = a.MeanRSSI()
		meanB = b.MeanRSSI()
	}
	var sum float64
	for _, id := range common {
		ra := a.readings[id]
		rb := b.readings[id]
		d := (ra.rssi - meanA) - (rb.rssi - meanB)
		sum += d * d
	}
	return math.Sqrt(sum), true
}

// A Finder ranks a fixed collection of located fingerprints by signal
// similarity to query fingerprints.
type Finder struct {
	located []*LocatedFingerprint
	compare Comparator
}

// NewFinder returns a finder over the given non-empty collection using the
// given comparator.
func NewFinder(located []*LocatedFingerprint, compare Comparator) (*Finder, error) {
	if len(located) == 0 {
		return nil, fmt.Errorf("%w: finder needs at least one located fingerprint", ErrConfiguration)
	}
	for i, lf := range located {
		if lf == nil {
			return nil, fmt.Errorf("%w: located fingerprint %d is nil", ErrConfiguration, i)
		}
	}
	if !compare.Valid() {
		return nil, fmt.Errorf("%w: unknown comparator %d", ErrConfiguration, int(compare))
	}
	cp := make([]*LocatedFingerprint, len(located))
	copy(cp, located)
	return &Finder{located: cp, compare: compare}, nil
}

// Comparator returns the metric this finder ranks with.
func (f *Finder) Comparator() Comparator { return f.compare }

// KNearest returns the k located fingerprints closest to the query in
// ascending distance order. Fingerprints sharing no source with the query
// are excluded from the ranking, so fewer than k matches may be returned.
// Equal distances retain the collection order. k must be at least 1.
func (f *Finder) KNearest(query *Fingerprint, k int) ([]Match, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: nil query fingerprint", ErrConfiguration)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrConfiguration, k)
	}
	matches := make([]Match, 0, len(f.located))
	for _, lf := range f.located {
		if d, ok := SignalDistance(lf.fp, query, f.compare); ok {
			matches = append(matches, Match{Fingerprint: lf, Distance: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Nearest returns the located fingerprint closest to the query. ok is false
// when no located fingerprint shares a source with the query.
func (f *Finder) Nearest(query *Fingerprint) (Match, bool, error) {
	matches, err := f.KNearest(query, 1)
	if err != nil {
		return Match{}, false, err
	}
	if len(matches) == 0 {
		return Match{}, false, nil
	}
	return matches[0], true, nil
}
