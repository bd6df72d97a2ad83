package scanmux

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/banshee-data/position.report/internal/fingerprint"
)

const (
	EventTypeReading = "reading"
	EventTypeEndScan = "end_scan"
	EventTypeConfig  = "config"
	EventTypeUnknown = "unknown"
)

// Scan line protocol tokens. The scanner firmware emits one reading per
// line during a sweep and a bare ENDSCAN line when the sweep completes:
//
//	SCAN,<bssid>,<rssi_dbm>[,<stddev_db>]
//	ENDSCAN
//
// Responses to configuration queries arrive as single-line JSON objects.
const (
	scanPrefix   = "SCAN"
	endScanToken = "ENDSCAN"
)

// ClassifyLine inspects a scanner line and returns a simple event type token.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == endScanToken:
		return EventTypeEndScan
	case strings.HasPrefix(line, scanPrefix+","):
		return EventTypeReading
	case strings.HasPrefix(line, "{"):
		return EventTypeConfig
	default:
		return EventTypeUnknown
	}
}

// ParseReading parses a SCAN line into a signal reading. The BSSID is
// normalized to canonical lowercase colon-separated form so that readings
// match sources regardless of how the firmware cases them.
func ParseReading(line string) (fingerprint.Reading, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 && len(fields) != 4 {
		return fingerprint.Reading{}, fmt.Errorf("scan line has %d fields, want 3 or 4", len(fields))
	}
	if fields[0] != scanPrefix {
		return fingerprint.Reading{}, fmt.Errorf("scan line starts with %q, want %q", fields[0], scanPrefix)
	}

	hw, err := net.ParseMAC(strings.TrimSpace(fields[1]))
	if err != nil {
		return fingerprint.Reading{}, fmt.Errorf("invalid bssid %q: %w", fields[1], err)
	}

	rssi, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return fingerprint.Reading{}, fmt.Errorf("invalid rssi %q: %w", fields[2], err)
	}

	if len(fields) == 4 {
		stddev, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if err != nil {
			return fingerprint.Reading{}, fmt.Errorf("invalid stddev %q: %w", fields[3], err)
		}
		return fingerprint.NewReadingWithStdDev(hw.String(), rssi, stddev)
	}

	return fingerprint.NewReading(hw.String(), rssi)
}
