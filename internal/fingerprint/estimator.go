package fingerprint

import (
	"fmt"

	"github.com/banshee-data/position.report/internal/geo"
)

// Algorithm names an estimator family.
type Algorithm string

const (
	// AlgorithmLinear is the closed-form least-squares estimator.
	AlgorithmLinear Algorithm = "linear"
	// AlgorithmNonlinear is the iterative damped least-squares estimator.
	AlgorithmNonlinear Algorithm = "nonlinear"
)

// Valid reports whether a names a known estimator family.
func (a Algorithm) Valid() bool {
	return a == AlgorithmLinear || a == AlgorithmNonlinear
}

// Defaults applied to a fresh estimator.
const (
	// DefaultMinNearestFingerprints requires a single usable fingerprint.
	DefaultMinNearestFingerprints = 1
	// MaxNearestUnset disables the upper bound on the working set, using
	// every located fingerprint that shares a source with the query.
	MaxNearestUnset = -1
	// FreeSpacePathLossExponent is the default path-loss exponent, the
	// theoretical value for unobstructed propagation.
	FreeSpacePathLossExponent = 2.0
)

// A Listener observes estimate lifecycle events. Both callbacks run
// synchronously inside Estimate with the estimator locked, so configuration
// changes attempted from a callback fail with ErrLocked.
type Listener interface {
	OnEstimateStart(e Estimator)
	OnEstimateEnd(e Estimator)
}

// Estimator is the configuration and lifecycle surface shared by
// LinearEstimator and NonlinearEstimator.
//
// An estimator is ready once located fingerprints, the query fingerprint
// and the source list are all set. Estimate refuses to run while another
// estimate is in flight (ErrLocked) or while not ready (ErrNotReady), and
// every setter refuses mutation while locked.
type Estimator interface {
	SetLocatedFingerprints(located []*LocatedFingerprint) error
	SetQueryFingerprint(query *Fingerprint) error
	SetSources(sources []Source) error
	SetMinMaxNearestFingerprints(minNearest, maxNearest int) error
	SetDefaultPathLossExponent(n float64) error
	SetUseSourcePathLossExponent(use bool) error
	SetUseRawSignalFinder(use bool) error
	SetRemoveMeanFromReadings(remove bool) error
	SetListener(l Listener) error

	LocatedFingerprints() []*LocatedFingerprint
	QueryFingerprint() *Fingerprint
	Sources() []Source
	MinNearestFingerprints() int
	MaxNearestFingerprints() int
	DefaultPathLossExponent() float64
	UseSourcePathLossExponent() bool
	UseRawSignalFinder() bool
	RemoveMeanFromReadings() bool

	Algorithm() Algorithm
	Ready() bool
	Locked() bool
	Estimate() error
	EstimatedPosition() (geo.Point, bool)
}

// NewEstimator returns an estimator of the requested family. The order
// applies to the nonlinear family and is ignored by the linear one.
func NewEstimator(algorithm Algorithm, order Order) (Estimator, error) {
	switch algorithm {
	case AlgorithmLinear:
		return NewLinearEstimator(), nil
	case AlgorithmNonlinear:
		e, err := NewNonlinearEstimator(order)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrConfiguration, string(algorithm))
	}
}

// estimatorCore carries the configuration, lock discipline and listener
// plumbing shared by both estimator families.
type estimatorCore struct {
	located []*LocatedFingerprint
	query   *Fingerprint
	sources []Source

	minNearest        int
	maxNearest        int
	defaultExponent   float64
	useSourceExponent bool
	useRawFinder      bool
	removeMean        bool

	listener Listener
	locked   bool
	position geo.Point

	// self is the concrete estimator handed to listener callbacks.
	self Estimator
}

func newEstimatorCore() estimatorCore {
	return estimatorCore{
		minNearest:        DefaultMinNearestFingerprints,
		maxNearest:        MaxNearestUnset,
		defaultExponent:   FreeSpacePathLossExponent,
		useSourceExponent: true,
		useRawFinder:      true,
	}
}

func (c *estimatorCore) checkUnlocked() error {
	if c.locked {
		return fmt.Errorf("%w: configuration is frozen during an estimate", ErrLocked)
	}
	return nil
}

// SetLocatedFingerprints replaces the survey collection. It must be
// non-empty with every position of the same dimension.
func (c *estimatorCore) SetLocatedFingerprints(located []*LocatedFingerprint) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	if len(located) == 0 {
		return fmt.Errorf("%w: located fingerprints must not be empty", ErrConfiguration)
	}
	dim := 0
	for i, lf := range located {
		if lf == nil {
			return fmt.Errorf("%w: located fingerprint %d is nil", ErrConfiguration, i)
		}
		if dim == 0 {
			dim = lf.position.Dim()
		} else if lf.position.Dim() != dim {
			return fmt.Errorf("%w: located fingerprints mix %dD and %dD positions", ErrConfiguration, dim, lf.position.Dim())
		}
	}
	if err := checkSourceDims(c.sources, dim); err != nil {
		return err
	}
	cp := make([]*LocatedFingerprint, len(located))
	copy(cp, located)
	c.located = cp
	return nil
}

// SetQueryFingerprint replaces the fingerprint whose position is being
// estimated.
func (c *estimatorCore) SetQueryFingerprint(query *Fingerprint) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	if query == nil {
		return fmt.Errorf("%w: nil query fingerprint", ErrConfiguration)
	}
	c.query = query
	return nil
}

// SetSources replaces the known radio sources. Identities must be unique
// and positions must match the survey's dimension.
func (c *estimatorCore) SetSources(sources []Source) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: sources must not be empty", ErrConfiguration)
	}
	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		if s == nil {
			return fmt.Errorf("%w: source %d is nil", ErrConfiguration, i)
		}
		id := s.ID()
		if id == "" {
			return fmt.Errorf("%w: source %d has an empty id", ErrConfiguration, i)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate source id %q", ErrConfiguration, id)
		}
		seen[id] = true
		if d := s.Position().Dim(); d != 2 && d != 3 {
			return fmt.Errorf("%w: source %q position must be 2D or 3D, got %dD", ErrConfiguration, id, d)
		}
	}
	if err := checkSourceDims(sources, c.dim()); err != nil {
		return err
	}
	cp := make([]Source, len(sources))
	copy(cp, sources)
	c.sources = cp
	return nil
}

// checkSourceDims verifies every source position matches the survey
// dimension. A zero dim (survey unset) or empty source list passes.
func checkSourceDims(sources []Source, dim int) error {
	if dim == 0 {
		return nil
	}
	for _, s := range sources {
		if d := s.Position().Dim(); d != dim {
			return fmt.Errorf("%w: source %q is %dD but the survey is %dD", ErrConfiguration, s.ID(), d, dim)
		}
	}
	return nil
}

// SetMinMaxNearestFingerprints bounds the working set of nearest
// fingerprints: maxNearest caps how many the finder contributes
// (MaxNearestUnset for no cap) and minNearest is the floor of usable
// matches below which Estimate refuses to solve. minNearest must be at
// least 1 and maxNearest, when set, at least minNearest.
func (c *estimatorCore) SetMinMaxNearestFingerprints(minNearest, maxNearest int) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	if minNearest < 1 {
		return fmt.Errorf("%w: min nearest fingerprints must be at least 1, got %d", ErrConfiguration, minNearest)
	}
	if maxNearest != MaxNearestUnset && maxNearest < minNearest {
		return fmt.Errorf("%w: max nearest fingerprints %d below min %d", ErrConfiguration, maxNearest, minNearest)
	}
	c.minNearest = minNearest
	c.maxNearest = maxNearest
	return nil
}

// SetDefaultPathLossExponent sets the exponent used for sources without
// their own calibrated value. It must be positive.
func (c *estimatorCore) SetDefaultPathLossExponent(n float64) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("%w: path-loss exponent must be positive, got %g", ErrConfiguration, n)
	}
	c.defaultExponent = n
	return nil
}

// SetUseSourcePathLossExponent selects whether a source's own calibrated
// exponent overrides the default when available.
func (c *estimatorCore) SetUseSourcePathLossExponent(use bool) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	c.useSourceExponent = use
	return nil
}

// SetUseRawSignalFinder selects the finder variant that picks the working
// set: raw RSSI distance when true, mean-removed distance when false.
func (c *estimatorCore) SetUseRawSignalFinder(use bool) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	c.useRawFinder = use
	return nil
}

// SetRemoveMeanFromReadings selects whether signal levels are de-meaned per
// fingerprint before entering the propagation equations. Independent of the
// finder's own mean removal.
func (c *estimatorCore) SetRemoveMeanFromReadings(remove bool) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	c.removeMean = remove
	return nil
}

// SetListener registers a lifecycle listener. A nil listener clears it.
func (c *estimatorCore) SetListener(l Listener) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}
	c.listener = l
	return nil
}

// LocatedFingerprints returns a copy of the survey collection.
func (c *estimatorCore) LocatedFingerprints() []*LocatedFingerprint {
	out := make([]*LocatedFingerprint, len(c.located))
	copy(out, c.located)
	return out
}

// QueryFingerprint returns the fingerprint whose position is being
// estimated.
func (c *estimatorCore) QueryFingerprint() *Fingerprint { return c.query }

// Sources returns a copy of the known sources.
func (c *estimatorCore) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// MinNearestFingerprints returns the working-set floor.
func (c *estimatorCore) MinNearestFingerprints() int { return c.minNearest }

// MaxNearestFingerprints returns the working-set cap, or MaxNearestUnset.
func (c *estimatorCore) MaxNearestFingerprints() int { return c.maxNearest }

// DefaultPathLossExponent returns the exponent used for sources without
// their own calibrated value.
func (c *estimatorCore) DefaultPathLossExponent() float64 { return c.defaultExponent }

// UseSourcePathLossExponent reports whether per-source exponents override
// the default.
func (c *estimatorCore) UseSourcePathLossExponent() bool { return c.useSourceExponent }

// UseRawSignalFinder reports which finder variant picks the working set.
func (c *estimatorCore) UseRawSignalFinder() bool { return c.useRawFinder }

// RemoveMeanFromReadings reports whether levels are de-meaned before
// entering the propagation equations.
func (c *estimatorCore) RemoveMeanFromReadings() bool { return c.removeMean }

// Listener returns the registered lifecycle listener, if any.
func (c *estimatorCore) Listener() Listener { return c.listener }

// Ready reports whether all required configuration is present.
func (c *estimatorCore) Ready() bool {
	return len(c.located) > 0 && c.query != nil && len(c.sources) > 0
}

// Locked reports whether an estimate is in progress.
func (c *estimatorCore) Locked() bool { return c.locked }

// EstimatedPosition returns a copy of the most recent successful estimate.
// ok is false before the first success. A failed Estimate call retains the
// previous value.
func (c *estimatorCore) EstimatedPosition() (geo.Point, bool) {
	if c.position == nil {
		return nil, false
	}
	return c.position.Clone(), true
}

// begin validates lifecycle preconditions, takes the lock and notifies the
// listener. The caller must invoke end exactly once afterwards.
func (c *estimatorCore) begin() error {
	if c.locked {
		return fmt.Errorf("%w: estimate already in progress", ErrLocked)
	}
	if !c.Ready() {
		return fmt.Errorf("%w: located fingerprints, query fingerprint and sources must all be set", ErrNotReady)
	}
	c.locked = true
	if c.listener != nil {
		c.listener.OnEstimateStart(c.self)
	}
	return nil
}

// end notifies the listener and releases the lock. The listener runs while
// still locked so that mutation attempts from the callback fail the same
// way they would mid-solve.
func (c *estimatorCore) end() {
	if c.listener != nil {
		c.listener.OnEstimateEnd(c.self)
	}
	c.locked = false
}

// dim returns the survey position dimension, or 0 before the survey is set.
func (c *estimatorCore) dim() int {
	if len(c.located) == 0 {
		return 0
	}
	return c.located[0].position.Dim()
}

// workingSet ranks the survey against the query with the configured finder
// variant and applies the nearest-fingerprint bounds: the max setting caps
// how many matches are requested, the min setting is the readiness floor on
// what qualifies.
func (c *estimatorCore) workingSet() ([]Match, error) {
	compare := CompareMeanRemoved
	if c.useRawFinder {
		compare = CompareRawRSSI
	}
	finder, err := NewFinder(c.located, compare)
	if err != nil {
		return nil, err
	}
	k := len(c.located)
	if c.maxNearest != MaxNearestUnset && c.maxNearest < k {
		k = c.maxNearest
	}
	matches, err := finder.KNearest(c.query, k)
	if err != nil {
		return nil, err
	}
	if len(matches) < c.minNearest {
		return nil, fmt.Errorf("%w: %d usable nearest fingerprints, need at least %d", ErrNotReady, len(matches), c.minNearest)
	}
	return matches, nil
}

// sourcesByID indexes the configured sources by identity.
func (c *estimatorCore) sourcesByID() map[string]Source {
	m := make(map[string]Source, len(c.sources))
	for _, s := range c.sources {
		m[s.ID()] = s
	}
	return m
}

// exponentFor returns the path-loss exponent for one source, honouring the
// per-source value when configured and available.
func (c *estimatorCore) exponentFor(s Source) float64 {
	if c.useSourceExponent {
		if n, ok := s.PathLossExponent(); ok {
			return n
		}
	}
	return c.defaultExponent
}

// levels returns the signal level to use for each source of fp, de-meaned
// when the remove-mean flag is set.
func (c *estimatorCore) levels(fp *Fingerprint) map[string]float64 {
	var mean float64
	if c.removeMean {
		mean = fp.MeanRSSI()
	}
	out := make(map[string]float64, len(fp.readings))
	for id, r := range fp.readings {
		out[id] = r.rssi - mean
	}
	return out
}
