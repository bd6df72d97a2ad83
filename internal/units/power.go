// Package units provides shared constants and conversion helpers for radio
// power levels and carrier frequencies
package units

import "math"

// Power unit constants
const (
	DBM = "dbm"
	MW  = "mw"
	W   = "w"
)

// ValidPowerUnits contains all valid power unit values
var ValidPowerUnits = []string{DBM, MW, W}

// IsValidPowerUnit checks if the given unit is in the list of valid units
func IsValidPowerUnit(unit string) bool {
	for _, validUnit := range ValidPowerUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidPowerUnitsString returns a comma-separated string of valid units for error messages
func GetValidPowerUnitsString() string {
	return "dbm, mw, w"
}

// DbmToMilliwatts converts a power level in dBm to milliwatts.
// dBm is a logarithmic scale referenced to 1 mW: 0 dBm = 1 mW and every
// +10 dBm multiplies the power by 10.
func DbmToMilliwatts(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MilliwattsToDbm converts a power in milliwatts to dBm.
// Zero power has no finite dBm representation and yields -Inf.
func MilliwattsToDbm(mw float64) float64 {
	return 10 * math.Log10(mw)
}

// DbmToWatts converts a power level in dBm to watts.
func DbmToWatts(dbm float64) float64 {
	return DbmToMilliwatts(dbm) / 1000
}

// WattsToDbm converts a power in watts to dBm.
func WattsToDbm(w float64) float64 {
	return MilliwattsToDbm(w * 1000)
}

// ConvertPower converts a signal level from dBm to the target units
// Database stores signal levels in dBm
func ConvertPower(levelDbm float64, targetUnits string) float64 {
	switch targetUnits {
	case MW:
		return DbmToMilliwatts(levelDbm)
	case W:
		return DbmToWatts(levelDbm)
	case DBM:
		return levelDbm // no conversion needed
	default:
		return levelDbm // default to dBm if unknown unit
	}
}
