package units

// Frequency constants in Hz
const (
	Megahertz = 1e6
	Gigahertz = 1e9
)

// Channel24GHzFrequency returns the center frequency in Hz for a 2.4 GHz
// WiFi channel (1-14), or 0 for channels outside that range. Channels 1-13
// are spaced 5 MHz apart from 2412 MHz; channel 14 sits apart at 2484 MHz.
func Channel24GHzFrequency(channel int) float64 {
	switch {
	case channel >= 1 && channel <= 13:
		return (2407 + 5*float64(channel)) * Megahertz
	case channel == 14:
		return 2484 * Megahertz
	default:
		return 0
	}
}

// Channel5GHzFrequency returns the center frequency in Hz for a 5 GHz WiFi
// channel (7-196), or 0 for channels outside that range.
func Channel5GHzFrequency(channel int) float64 {
	if channel < 7 || channel > 196 {
		return 0
	}
	return (5000 + 5*float64(channel)) * Megahertz
}
