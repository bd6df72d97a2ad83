package fingerprint

import "errors"

// Error kinds returned by the estimation engine, matched with errors.Is.
// Configuration errors indicate a call-site bug, locked and not-ready errors
// indicate misuse of the estimator lifecycle, and estimation errors indicate
// a numerical failure that may succeed on retry with a relaxed
// configuration.
var (
	// ErrConfiguration reports an invalid argument to a constructor or
	// setter. The offending call performs no mutation.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrLocked reports a mutating call made while an estimate is in
	// progress.
	ErrLocked = errors.New("estimator locked")

	// ErrNotReady reports an Estimate call made before all required
	// configuration is present, or with too few usable fingerprints or
	// equations to attempt a solve.
	ErrNotReady = errors.New("estimator not ready")

	// ErrEstimation reports a numerical failure during solving, such as a
	// singular linear system or a non-converging fit.
	ErrEstimation = errors.New("estimation failed")
)
