package fingerprint

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// An EvaluationConfig names one estimator configuration for accuracy
// comparison.
type EvaluationConfig struct {
	Name                   string
	Algorithm              Algorithm
	Order                  Order // nonlinear only; 0 selects DefaultTaylorOrder
	UseRawSignalFinder     bool
	RemoveMeanFromReadings bool
	MinNearest             int // 0 selects DefaultMinNearestFingerprints
	MaxNearest             int // 0 selects MaxNearestUnset
}

// NewConfiguredEstimator builds the estimator an EvaluationConfig names.
func NewConfiguredEstimator(cfg EvaluationConfig) (Estimator, error) {
	order := cfg.Order
	if order == 0 {
		order = DefaultTaylorOrder
	}
	est, err := NewEstimator(cfg.Algorithm, order)
	if err != nil {
		return nil, err
	}
	if err := est.SetUseRawSignalFinder(cfg.UseRawSignalFinder); err != nil {
		return nil, err
	}
	if err := est.SetRemoveMeanFromReadings(cfg.RemoveMeanFromReadings); err != nil {
		return nil, err
	}
	minNearest := cfg.MinNearest
	if minNearest == 0 {
		minNearest = DefaultMinNearestFingerprints
	}
	maxNearest := cfg.MaxNearest
	if maxNearest == 0 {
		maxNearest = MaxNearestUnset
	}
	if err := est.SetMinMaxNearestFingerprints(minNearest, maxNearest); err != nil {
		return nil, err
	}
	return est, nil
}

// A HoldOutResult summarizes hold-one-out accuracy for one configuration.
type HoldOutResult struct {
	Config EvaluationConfig
	// Errors holds the position error in metres for each successfully
	// estimated held-out fingerprint, in survey order.
	Errors []float64
	// Failed counts held-out fingerprints whose estimate was refused or
	// failed numerically.
	Failed int
	Mean   float64
	Median float64
	P95    float64
}

// EvaluateHoldOut measures a configuration against a survey by leaving each
// located fingerprint out in turn: the held-out fingerprint's readings act
// as the query, the remaining survey estimates its position, and the error
// is the distance to where it was actually recorded.
func EvaluateHoldOut(located []*LocatedFingerprint, sources []Source, cfg EvaluationConfig) (*HoldOutResult, error) {
	if len(located) < 2 {
		return nil, fmt.Errorf("%w: hold-one-out needs at least two located fingerprints", ErrConfiguration)
	}

	res := &HoldOutResult{Config: cfg}
	for i, held := range located {
		rest := make([]*LocatedFingerprint, 0, len(located)-1)
		rest = append(rest, located[:i]...)
		rest = append(rest, located[i+1:]...)

		est, err := NewConfiguredEstimator(cfg)
		if err != nil {
			return nil, err
		}
		if err := est.SetLocatedFingerprints(rest); err != nil {
			return nil, err
		}
		if err := est.SetSources(sources); err != nil {
			return nil, err
		}
		if err := est.SetQueryFingerprint(held.Fingerprint()); err != nil {
			return nil, err
		}

		if err := est.Estimate(); err != nil {
			if errors.Is(err, ErrNotReady) || errors.Is(err, ErrEstimation) {
				res.Failed++
				continue
			}
			return nil, err
		}
		pos, ok := est.EstimatedPosition()
		if !ok {
			res.Failed++
			continue
		}
		res.Errors = append(res.Errors, pos.DistanceTo(held.Position()))
	}

	if len(res.Errors) > 0 {
		sorted := append([]float64(nil), res.Errors...)
		sort.Float64s(sorted)
		res.Mean = stat.Mean(sorted, nil)
		res.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		res.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return res, nil
}
