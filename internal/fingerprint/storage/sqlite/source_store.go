package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// SourceStore provides persistence for surveyed radio sources.
type SourceStore struct {
	db *sql.DB
}

// NewSourceStore creates a new SourceStore.
func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{db: db}
}

// UpsertSource inserts a source or, when a row with the same source_id
// already exists, updates it in place. The original created_at_ns is kept
// on update and updated_at_ns records the change.
func (s *SourceStore) UpsertSource(src *Source) error {
	if src.SourceID == "" {
		return fmt.Errorf("source needs a source_id")
	}

	now := time.Now().UnixNano()
	if src.CreatedAtNs == 0 {
		src.CreatedAtNs = now
	}

	query := `
		INSERT INTO sources (
			source_id, name, x, y, z, frequency_hz,
			tx_power_dbm, path_loss_exponent, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			name = excluded.name,
			x = excluded.x,
			y = excluded.y,
			z = excluded.z,
			frequency_hz = excluded.frequency_hz,
			tx_power_dbm = excluded.tx_power_dbm,
			path_loss_exponent = excluded.path_loss_exponent,
			updated_at_ns = ?
	`

	_, err := s.db.Exec(query,
		src.SourceID,
		nullString(src.Name),
		src.X,
		src.Y,
		nullFloat64(src.Z),
		src.FrequencyHz,
		nullFloat64(src.TxPowerDbm),
		nullFloat64(src.PathLossExponent),
		src.CreatedAtNs,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	return nil
}

// GetSource retrieves a source by ID.
func (s *SourceStore) GetSource(sourceID string) (*Source, error) {
	query := `
		SELECT source_id, name, x, y, z, frequency_hz,
		       tx_power_dbm, path_loss_exponent, created_at_ns, updated_at_ns
		FROM sources
		WHERE source_id = ?
	`

	var src Source
	var name sql.NullString
	var z, txPowerDbm, pathLossExponent sql.NullFloat64
	var updatedAtNs sql.NullInt64

	err := s.db.QueryRow(query, sourceID).Scan(
		&src.SourceID,
		&name,
		&src.X,
		&src.Y,
		&z,
		&src.FrequencyHz,
		&txPowerDbm,
		&pathLossExponent,
		&src.CreatedAtNs,
		&updatedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source not found: %s", sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	// Map nullable fields
	if name.Valid {
		src.Name = name.String
	}
	if z.Valid {
		v := z.Float64
		src.Z = &v
	}
	if txPowerDbm.Valid {
		v := txPowerDbm.Float64
		src.TxPowerDbm = &v
	}
	if pathLossExponent.Valid {
		v := pathLossExponent.Float64
		src.PathLossExponent = &v
	}
	if updatedAtNs.Valid {
		v := updatedAtNs.Int64
		src.UpdatedAtNs = &v
	}

	return &src, nil
}

// ListSources retrieves all sources ordered by ID.
func (s *SourceStore) ListSources() ([]*Source, error) {
	query := `
		SELECT source_id, name, x, y, z, frequency_hz,
		       tx_power_dbm, path_loss_exponent, created_at_ns, updated_at_ns
		FROM sources
		ORDER BY source_id ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var src Source
		var name sql.NullString
		var z, txPowerDbm, pathLossExponent sql.NullFloat64
		var updatedAtNs sql.NullInt64

		err := rows.Scan(
			&src.SourceID,
			&name,
			&src.X,
			&src.Y,
			&z,
			&src.FrequencyHz,
			&txPowerDbm,
			&pathLossExponent,
			&src.CreatedAtNs,
			&updatedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}

		if name.Valid {
			src.Name = name.String
		}
		if z.Valid {
			v := z.Float64
			src.Z = &v
		}
		if txPowerDbm.Valid {
			v := txPowerDbm.Float64
			src.TxPowerDbm = &v
		}
		if pathLossExponent.Valid {
			v := pathLossExponent.Float64
			src.PathLossExponent = &v
		}
		if updatedAtNs.Valid {
			v := updatedAtNs.Int64
			src.UpdatedAtNs = &v
		}

		sources = append(sources, &src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources rows: %w", err)
	}

	return sources, nil
}

// SetCalibration records a fitted transmit power and path-loss exponent for
// an existing source.
func (s *SourceStore) SetCalibration(sourceID string, txPowerDbm, pathLossExponent float64) error {
	query := `
		UPDATE sources
		SET tx_power_dbm = ?,
		    path_loss_exponent = ?,
		    updated_at_ns = ?
		WHERE source_id = ?
	`

	updatedAtNs := time.Now().UnixNano()
	result, err := s.db.Exec(query, txPowerDbm, pathLossExponent, updatedAtNs, sourceID)
	if err != nil {
		return fmt.Errorf("set calibration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("source not found: %s", sourceID)
	}

	return nil
}

// DeleteSource deletes a source by ID.
func (s *SourceStore) DeleteSource(sourceID string) error {
	query := `DELETE FROM sources WHERE source_id = ?`

	result, err := s.db.Exec(query, sourceID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("source not found: %s", sourceID)
	}

	return nil
}
