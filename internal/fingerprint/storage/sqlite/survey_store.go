package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SurveyStore provides persistence for survey fingerprints and their
// readings.
type SurveyStore struct {
	db *sql.DB
}

// NewSurveyStore creates a new SurveyStore.
func NewSurveyStore(db *sql.DB) *SurveyStore {
	return &SurveyStore{db: db}
}

// InsertFingerprint stores a surveyed fingerprint and its readings in one
// transaction. If FingerprintID is empty a new UUID is generated.
func (s *SurveyStore) InsertFingerprint(fp *SurveyFingerprint) error {
	if len(fp.Readings) == 0 {
		return fmt.Errorf("fingerprint needs at least one reading")
	}
	if fp.FingerprintID == "" {
		fp.FingerprintID = uuid.New().String()
	}
	if fp.RecordedAtNs == 0 {
		fp.RecordedAtNs = time.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert fingerprint tx: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO survey_fingerprints (
			fingerprint_id, survey_name, x, y, z, recorded_at_ns
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		fp.FingerprintID,
		fp.SurveyName,
		fp.X,
		fp.Y,
		nullFloat64(fp.Z),
		fp.RecordedAtNs,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert fingerprint: %w", err)
	}

	for _, r := range fp.Readings {
		_, err := tx.Exec(`
			INSERT INTO survey_readings (
				fingerprint_id, source_id, rssi_dbm, rssi_stddev
			) VALUES (?, ?, ?, ?)
		`,
			fp.FingerprintID,
			r.SourceID,
			r.RSSIDbm,
			nullFloat64(r.RSSIStdDev),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert reading for source %s: %w", r.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert fingerprint tx: %w", err)
	}

	return nil
}

// GetFingerprint retrieves a fingerprint and its readings by ID.
func (s *SurveyStore) GetFingerprint(fingerprintID string) (*SurveyFingerprint, error) {
	query := `
		SELECT fingerprint_id, survey_name, x, y, z, recorded_at_ns
		FROM survey_fingerprints
		WHERE fingerprint_id = ?
	`

	var fp SurveyFingerprint
	var z sql.NullFloat64

	err := s.db.QueryRow(query, fingerprintID).Scan(
		&fp.FingerprintID,
		&fp.SurveyName,
		&fp.X,
		&fp.Y,
		&z,
		&fp.RecordedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fingerprint not found: %s", fingerprintID)
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}

	if z.Valid {
		v := z.Float64
		fp.Z = &v
	}

	readings, err := s.readingsFor(fingerprintID)
	if err != nil {
		return nil, err
	}
	fp.Readings = readings

	return &fp, nil
}

func (s *SurveyStore) readingsFor(fingerprintID string) ([]SurveyReading, error) {
	query := `
		SELECT source_id, rssi_dbm, rssi_stddev
		FROM survey_readings
		WHERE fingerprint_id = ?
		ORDER BY source_id ASC
	`

	rows, err := s.db.Query(query, fingerprintID)
	if err != nil {
		return nil, fmt.Errorf("get readings: %w", err)
	}
	defer rows.Close()

	var readings []SurveyReading
	for rows.Next() {
		var r SurveyReading
		var stddev sql.NullFloat64

		if err := rows.Scan(&r.SourceID, &r.RSSIDbm, &stddev); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		if stddev.Valid {
			v := stddev.Float64
			r.RSSIStdDev = &v
		}

		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get readings rows: %w", err)
	}

	return readings, nil
}

// ListFingerprints retrieves fingerprints with their readings, oldest
// first. If surveyName is non-empty only that survey is returned.
func (s *SurveyStore) ListFingerprints(surveyName string) ([]*SurveyFingerprint, error) {
	var query string
	var args []interface{}

	if surveyName != "" {
		query = `
			SELECT fingerprint_id, survey_name, x, y, z, recorded_at_ns
			FROM survey_fingerprints
			WHERE survey_name = ?
			ORDER BY recorded_at_ns ASC, fingerprint_id ASC
		`
		args = append(args, surveyName)
	} else {
		query = `
			SELECT fingerprint_id, survey_name, x, y, z, recorded_at_ns
			FROM survey_fingerprints
			ORDER BY recorded_at_ns ASC, fingerprint_id ASC
		`
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []*SurveyFingerprint
	byID := make(map[string]*SurveyFingerprint)
	for rows.Next() {
		var fp SurveyFingerprint
		var z sql.NullFloat64

		err := rows.Scan(
			&fp.FingerprintID,
			&fp.SurveyName,
			&fp.X,
			&fp.Y,
			&z,
			&fp.RecordedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}

		if z.Valid {
			v := z.Float64
			fp.Z = &v
		}

		fingerprints = append(fingerprints, &fp)
		byID[fp.FingerprintID] = &fp
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fingerprints rows: %w", err)
	}

	if len(fingerprints) == 0 {
		return fingerprints, nil
	}

	// One pass over the readings table instead of a query per fingerprint.
	var readingQuery string
	var readingArgs []interface{}

	if surveyName != "" {
		readingQuery = `
			SELECT r.fingerprint_id, r.source_id, r.rssi_dbm, r.rssi_stddev
			FROM survey_readings r
			JOIN survey_fingerprints f ON f.fingerprint_id = r.fingerprint_id
			WHERE f.survey_name = ?
			ORDER BY r.fingerprint_id ASC, r.source_id ASC
		`
		readingArgs = append(readingArgs, surveyName)
	} else {
		readingQuery = `
			SELECT fingerprint_id, source_id, rssi_dbm, rssi_stddev
			FROM survey_readings
			ORDER BY fingerprint_id ASC, source_id ASC
		`
	}

	readingRows, err := s.db.Query(readingQuery, readingArgs...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer readingRows.Close()

	for readingRows.Next() {
		var fingerprintID string
		var r SurveyReading
		var stddev sql.NullFloat64

		if err := readingRows.Scan(&fingerprintID, &r.SourceID, &r.RSSIDbm, &stddev); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		if stddev.Valid {
			v := stddev.Float64
			r.RSSIStdDev = &v
		}

		if fp, ok := byID[fingerprintID]; ok {
			fp.Readings = append(fp.Readings, r)
		}
	}

	if err := readingRows.Err(); err != nil {
		return nil, fmt.Errorf("list readings rows: %w", err)
	}

	return fingerprints, nil
}

// ListSurveyNames returns the distinct survey names in the store, sorted.
func (s *SurveyStore) ListSurveyNames() ([]string, error) {
	query := `SELECT DISTINCT survey_name FROM survey_fingerprints ORDER BY survey_name ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list survey names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan survey name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list survey names rows: %w", err)
	}

	return names, nil
}

// DeleteFingerprint deletes a fingerprint by ID. Its readings are removed
// by the foreign-key cascade.
func (s *SurveyStore) DeleteFingerprint(fingerprintID string) error {
	query := `DELETE FROM survey_fingerprints WHERE fingerprint_id = ?`

	result, err := s.db.Exec(query, fingerprintID)
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("fingerprint not found: %s", fingerprintID)
	}

	return nil
}
