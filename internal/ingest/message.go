package ingest

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/banshee-data/position.report/internal/fingerprint"
)

// ReadingMessage is the wire shape scanners publish on their reading topic.
type ReadingMessage struct {
	DeviceID string          `json:"device_id"`
	Readings []ReadingRecord `json:"readings"`
}

// ReadingRecord is a single observed source within a reading message.
type ReadingRecord struct {
	BSSID      string   `json:"bssid"`
	RSSIDbm    float64  `json:"rssi_dbm"`
	RSSIStdDev *float64 `json:"rssi_stddev,omitempty"`
}

// DecodeMessage parses a reading message into a query fingerprint. The
// device identity comes from the payload when present, otherwise from the
// topic. Unlike serial scan lines, a reading message is one producer batch:
// any malformed record rejects the whole message.
func DecodeMessage(topic string, payload []byte) (string, *fingerprint.Fingerprint, error) {
	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal reading message: %w", err)
	}

	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = DeviceFromTopic(topic)
	}
	if deviceID == "" {
		return "", nil, fmt.Errorf("reading message carries no device id")
	}

	if len(msg.Readings) == 0 {
		return "", nil, fmt.Errorf("reading message from %s has no readings", deviceID)
	}

	readings := make([]fingerprint.Reading, 0, len(msg.Readings))
	for i, rec := range msg.Readings {
		hw, err := net.ParseMAC(strings.TrimSpace(rec.BSSID))
		if err != nil {
			return "", nil, fmt.Errorf("reading %d: invalid bssid %q: %w", i, rec.BSSID, err)
		}

		var r fingerprint.Reading
		if rec.RSSIStdDev != nil {
			r, err = fingerprint.NewReadingWithStdDev(hw.String(), rec.RSSIDbm, *rec.RSSIStdDev)
		} else {
			r, err = fingerprint.NewReading(hw.String(), rec.RSSIDbm)
		}
		if err != nil {
			return "", nil, fmt.Errorf("reading %d: %w", i, err)
		}
		readings = append(readings, r)
	}

	fp, err := fingerprint.New(readings...)
	if err != nil {
		return "", nil, fmt.Errorf("reading message from %s: %w", deviceID, err)
	}
	return deviceID, fp, nil
}

// DeviceFromTopic extracts the device segment from a scanners/<id>/readings
// topic. It returns "" when the topic has a different shape.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "scanners" || parts[2] != "readings" {
		return ""
	}
	return parts[1]
}
