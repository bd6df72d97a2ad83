package sqlite

import (
	"fmt"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/geo"
)

// Source is a stored radio source with its surveyed position and optional
// calibration. SourceID is the natural key; for WiFi access points it is
// the BSSID.
type Source struct {
	SourceID         string   `json:"source_id"`
	Name             string   `json:"name,omitempty"`
	X                float64  `json:"x"`
	Y                float64  `json:"y"`
	Z                *float64 `json:"z,omitempty"`
	FrequencyHz      float64  `json:"frequency_hz"`
	TxPowerDbm       *float64 `json:"tx_power_dbm,omitempty"`
	PathLossExponent *float64 `json:"path_loss_exponent,omitempty"`
	CreatedAtNs      int64    `json:"created_at_ns"`
	UpdatedAtNs      *int64   `json:"updated_at_ns,omitempty"`
}

// Position returns the stored position, 3D when a z coordinate is present.
func (s *Source) Position() geo.Point {
	if s.Z != nil {
		return geo.NewPoint3D(s.X, s.Y, *s.Z)
	}
	return geo.NewPoint2D(s.X, s.Y)
}

// AccessPoint materializes the row as an access point usable by the
// estimators.
func (s *Source) AccessPoint() (*fingerprint.AccessPoint, error) {
	ap, err := fingerprint.NewAccessPoint(s.SourceID, s.Position(), s.FrequencyHz)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.SourceID, err)
	}
	if s.TxPowerDbm != nil {
		ap.SetTransmittedPower(*s.TxPowerDbm)
	}
	if s.PathLossExponent != nil {
		if err := ap.SetPathLossExponent(*s.PathLossExponent); err != nil {
			return nil, fmt.Errorf("source %s: %w", s.SourceID, err)
		}
	}
	return ap, nil
}

// AccessPoints materializes a list of source rows for estimator
// configuration.
func AccessPoints(rows []*Source) ([]fingerprint.Source, error) {
	sources := make([]fingerprint.Source, 0, len(rows))
	for _, row := range rows {
		ap, err := row.AccessPoint()
		if err != nil {
			return nil, err
		}
		sources = append(sources, ap)
	}
	return sources, nil
}

// SurveyReading is one stored RSSI observation inside a survey fingerprint.
type SurveyReading struct {
	SourceID   string   `json:"source_id"`
	RSSIDbm    float64  `json:"rssi_dbm"`
	RSSIStdDev *float64 `json:"rssi_stddev,omitempty"`
}

// SurveyFingerprint is a stored fingerprint together with the position it
// was recorded at.
type SurveyFingerprint struct {
	FingerprintID string          `json:"fingerprint_id"`
	SurveyName    string          `json:"survey_name,omitempty"`
	X             float64         `json:"x"`
	Y             float64         `json:"y"`
	Z             *float64        `json:"z,omitempty"`
	RecordedAtNs  int64           `json:"recorded_at_ns"`
	Readings      []SurveyReading `json:"readings"`
}

// Position returns the surveyed position, 3D when a z coordinate is
// present.
func (f *SurveyFingerprint) Position() geo.Point {
	if f.Z != nil {
		return geo.NewPoint3D(f.X, f.Y, *f.Z)
	}
	return geo.NewPoint2D(f.X, f.Y)
}

// Located materializes the row as a located fingerprint usable by the
// estimators.
func (f *SurveyFingerprint) Located() (*fingerprint.LocatedFingerprint, error) {
	readings := make([]fingerprint.Reading, 0, len(f.Readings))
	for _, r := range f.Readings {
		var (
			reading fingerprint.Reading
			err     error
		)
		if r.RSSIStdDev != nil {
			reading, err = fingerprint.NewReadingWithStdDev(r.SourceID, r.RSSIDbm, *r.RSSIStdDev)
		} else {
			reading, err = fingerprint.NewReading(r.SourceID, r.RSSIDbm)
		}
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", f.FingerprintID, err)
		}
		readings = append(readings, reading)
	}
	fp, err := fingerprint.New(readings...)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", f.FingerprintID, err)
	}
	located, err := fingerprint.NewLocated(fp, f.Position())
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", f.FingerprintID, err)
	}
	return located, nil
}

// LocatedFingerprints materializes survey rows for estimator configuration.
func LocatedFingerprints(rows []*SurveyFingerprint) ([]*fingerprint.LocatedFingerprint, error) {
	located := make([]*fingerprint.LocatedFingerprint, 0, len(rows))
	for _, row := range rows {
		lf, err := row.Located()
		if err != nil {
			return nil, err
		}
		located = append(located, lf)
	}
	return located, nil
}

// Estimate is a stored position estimate for a tracked device.
type Estimate struct {
	EstimateID   string   `json:"estimate_id"`
	DeviceID     string   `json:"device_id"`
	Algorithm    string   `json:"algorithm"`
	TaylorOrder  *int64   `json:"taylor_order,omitempty"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Z            *float64 `json:"z,omitempty"`
	ReadingCount int      `json:"reading_count"`
	CreatedAtNs  int64    `json:"created_at_ns"`
}

// Position returns the estimated position, 3D when a z coordinate is
// present.
func (e *Estimate) Position() geo.Point {
	if e.Z != nil {
		return geo.NewPoint3D(e.X, e.Y, *e.Z)
	}
	return geo.NewPoint2D(e.X, e.Y)
}
