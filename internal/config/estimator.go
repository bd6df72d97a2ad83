package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/position.report/internal/fingerprint"
)

// DefaultConfigPath is the path to the canonical estimator defaults file.
// This is the single source of truth for all default estimator values.
const DefaultConfigPath = "config/estimator.defaults.json"

// EstimatorConfig represents the root configuration for the position
// estimator. The schema matches the /api/config endpoint so the same JSON
// can be used for both startup configuration and runtime inspection.
type EstimatorConfig struct {
	// Estimator selection
	Algorithm   *string `json:"algorithm,omitempty"`    // "linear" or "nonlinear"
	TaylorOrder *string `json:"taylor_order,omitempty"` // "first", "second" or "third"

	// Working-set bounds
	MinNearestFingerprints *int `json:"min_nearest_fingerprints,omitempty"`
	MaxNearestFingerprints *int `json:"max_nearest_fingerprints,omitempty"` // 0 disables the cap

	// Signal model
	DefaultPathLossExponent   *float64 `json:"default_path_loss_exponent,omitempty"`
	UseSourcePathLossExponent *bool    `json:"use_source_path_loss_exponent,omitempty"`
	UseRawSignalFinder        *bool    `json:"use_raw_signal_finder,omitempty"`
	RemoveMeanFromReadings    *bool    `json:"remove_mean_from_readings,omitempty"`

	// Nonlinear solver
	FallbackRSSIStdDev  *float64 `json:"fallback_rssi_stddev,omitempty"`
	FitterMaxIterations *int     `json:"fitter_max_iterations,omitempty"` // 0 keeps the solver default
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEstimatorConfig returns an EstimatorConfig with all fields set to nil.
// Use LoadEstimatorConfig to load actual values from the defaults file.
func EmptyEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{}
}

// LoadEstimatorConfig loads an EstimatorConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadEstimatorConfig(path string) (*EstimatorConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyEstimatorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical estimator defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *EstimatorConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fingerprint/storage/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadEstimatorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *EstimatorConfig) Validate() error {
	if c.Algorithm != nil {
		if !fingerprint.Algorithm(normalize(*c.Algorithm)).Valid() {
			return fmt.Errorf("algorithm must be %q or %q, got %q",
				fingerprint.AlgorithmLinear, fingerprint.AlgorithmNonlinear, *c.Algorithm)
		}
	}

	if c.TaylorOrder != nil {
		if _, err := fingerprint.ParseOrder(*c.TaylorOrder); err != nil {
			return fmt.Errorf("invalid taylor_order %q: %w", *c.TaylorOrder, err)
		}
	}

	if c.MinNearestFingerprints != nil && *c.MinNearestFingerprints < 1 {
		return fmt.Errorf("min_nearest_fingerprints must be at least 1, got %d", *c.MinNearestFingerprints)
	}

	// 0 means "no cap"; anything else must be a usable upper bound.
	if c.MaxNearestFingerprints != nil && *c.MaxNearestFingerprints != 0 {
		if *c.MaxNearestFingerprints < 0 {
			return fmt.Errorf("max_nearest_fingerprints must be positive or 0 for no cap, got %d", *c.MaxNearestFingerprints)
		}
		minNearest := fingerprint.DefaultMinNearestFingerprints
		if c.MinNearestFingerprints != nil {
			minNearest = *c.MinNearestFingerprints
		}
		if *c.MaxNearestFingerprints < minNearest {
			return fmt.Errorf("max_nearest_fingerprints %d below min_nearest_fingerprints %d",
				*c.MaxNearestFingerprints, minNearest)
		}
	}

	if c.DefaultPathLossExponent != nil && *c.DefaultPathLossExponent <= 0 {
		return fmt.Errorf("default_path_loss_exponent must be positive, got %f", *c.DefaultPathLossExponent)
	}

	if c.FallbackRSSIStdDev != nil && *c.FallbackRSSIStdDev <= 0 {
		return fmt.Errorf("fallback_rssi_stddev must be positive, got %f", *c.FallbackRSSIStdDev)
	}

	if c.FitterMaxIterations != nil && *c.FitterMaxIterations < 0 {
		return fmt.Errorf("fitter_max_iterations must not be negative, got %d", *c.FitterMaxIterations)
	}

	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GetAlgorithm returns the selected estimator family or the default.
func (c *EstimatorConfig) GetAlgorithm() fingerprint.Algorithm {
	if c.Algorithm == nil {
		return fingerprint.AlgorithmNonlinear // default
	}
	return fingerprint.Algorithm(normalize(*c.Algorithm))
}

// GetTaylorOrder returns the taylor_order value or the default.
func (c *EstimatorConfig) GetTaylorOrder() fingerprint.Order {
	if c.TaylorOrder == nil {
		return fingerprint.DefaultTaylorOrder
	}
	order, err := fingerprint.ParseOrder(*c.TaylorOrder)
	if err != nil {
		return fingerprint.DefaultTaylorOrder // default on parse error
	}
	return order
}

// GetMinNearestFingerprints returns the min_nearest_fingerprints value or the default.
func (c *EstimatorConfig) GetMinNearestFingerprints() int {
	if c.MinNearestFingerprints == nil {
		return fingerprint.DefaultMinNearestFingerprints
	}
	return *c.MinNearestFingerprints
}

// GetMaxNearestFingerprints returns the working-set cap, with unset or 0
// meaning no cap.
func (c *EstimatorConfig) GetMaxNearestFingerprints() int {
	if c.MaxNearestFingerprints == nil || *c.MaxNearestFingerprints == 0 {
		return fingerprint.MaxNearestUnset
	}
	return *c.MaxNearestFingerprints
}

// GetDefaultPathLossExponent returns the default_path_loss_exponent value or the default.
func (c *EstimatorConfig) GetDefaultPathLossExponent() float64 {
	if c.DefaultPathLossExponent == nil {
		return fingerprint.FreeSpacePathLossExponent
	}
	return *c.DefaultPathLossExponent
}

// GetUseSourcePathLossExponent returns the use_source_path_loss_exponent value or the default.
func (c *EstimatorConfig) GetUseSourcePathLossExponent() bool {
	if c.UseSourcePathLossExponent == nil {
		return true // default: calibrated sources override the default exponent
	}
	return *c.UseSourcePathLossExponent
}

// GetUseRawSignalFinder returns the use_raw_signal_finder value or the default.
func (c *EstimatorConfig) GetUseRawSignalFinder() bool {
	if c.UseRawSignalFinder == nil {
		return true // default: rank by raw signal distance
	}
	return *c.UseRawSignalFinder
}

// GetRemoveMeanFromReadings returns the remove_mean_from_readings value or the default.
func (c *EstimatorConfig) GetRemoveMeanFromReadings() bool {
	if c.RemoveMeanFromReadings == nil {
		return false // default: feed raw levels to the propagation model
	}
	return *c.RemoveMeanFromReadings
}

// GetFallbackRSSIStdDev returns the fallback_rssi_stddev value or the default.
func (c *EstimatorConfig) GetFallbackRSSIStdDev() float64 {
	if c.FallbackRSSIStdDev == nil {
		return fingerprint.DefaultFallbackStdDev
	}
	return *c.FallbackRSSIStdDev
}

// GetFitterMaxIterations returns the fitter_max_iterations value or 0 for
// the solver default.
func (c *EstimatorConfig) GetFitterMaxIterations() int {
	if c.FitterMaxIterations == nil {
		return 0
	}
	return *c.FitterMaxIterations
}

// BuildEstimator constructs an estimator configured from c. Survey data,
// sources and the query fingerprint are supplied by the caller.
func (c *EstimatorConfig) BuildEstimator() (fingerprint.Estimator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	est, err := fingerprint.NewEstimator(c.GetAlgorithm(), c.GetTaylorOrder())
	if err != nil {
		return nil, err
	}
	if err := est.SetMinMaxNearestFingerprints(c.GetMinNearestFingerprints(), c.GetMaxNearestFingerprints()); err != nil {
		return nil, err
	}
	if err := est.SetDefaultPathLossExponent(c.GetDefaultPathLossExponent()); err != nil {
		return nil, err
	}
	if err := est.SetUseSourcePathLossExponent(c.GetUseSourcePathLossExponent()); err != nil {
		return nil, err
	}
	if err := est.SetUseRawSignalFinder(c.GetUseRawSignalFinder()); err != nil {
		return nil, err
	}
	if err := est.SetRemoveMeanFromReadings(c.GetRemoveMeanFromReadings()); err != nil {
		return nil, err
	}

	if nl, ok := est.(*fingerprint.NonlinearEstimator); ok {
		if err := nl.SetFallbackStdDev(c.GetFallbackRSSIStdDev()); err != nil {
			return nil, err
		}
		if err := nl.SetFitterMaxIterations(c.GetFitterMaxIterations()); err != nil {
			return nil, err
		}
	}

	return est, nil
}
