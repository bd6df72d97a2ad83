// Package fingerprint implements RSSI fingerprint position estimation.
//
// A survey produces located fingerprints: sets of received-signal-strength
// readings recorded at known positions. To locate a receiver later, its
// unlocated query fingerprint is compared against the survey: a Finder ranks
// the survey by signal-vector distance, and an estimator converts the
// nearest fingerprints plus the log-distance path-loss model into a position
// estimate. Two estimator families are provided: LinearEstimator solves the
// linearized pairwise power-difference system in closed form, and
// NonlinearEstimator iteratively refines a position by fitting the
// propagation model with a damped least-squares fitter, with a configurable
// Taylor expansion order trading accuracy against per-iteration cost.
//
// Estimators are synchronous and single-threaded. The locked flag guards
// against re-entrant mutation from listener callbacks during an estimate; it
// is not a cross-goroutine mutex.
package fingerprint
