package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EstimateStore provides persistence for computed position estimates.
type EstimateStore struct {
	db *sql.DB
}

// NewEstimateStore creates a new EstimateStore.
func NewEstimateStore(db *sql.DB) *EstimateStore {
	return &EstimateStore{db: db}
}

// InsertEstimate stores a position estimate. If EstimateID is empty a new
// UUID is generated.
func (s *EstimateStore) InsertEstimate(est *Estimate) error {
	if est.DeviceID == "" {
		return fmt.Errorf("estimate needs a device_id")
	}
	if est.EstimateID == "" {
		est.EstimateID = uuid.New().String()
	}
	if est.CreatedAtNs == 0 {
		est.CreatedAtNs = time.Now().UnixNano()
	}

	query := `
		INSERT INTO estimates (
			estimate_id, device_id, algorithm, taylor_order,
			x, y, z, reading_count, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		est.EstimateID,
		est.DeviceID,
		est.Algorithm,
		nullInt64(est.TaylorOrder),
		est.X,
		est.Y,
		nullFloat64(est.Z),
		est.ReadingCount,
		est.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}

	return nil
}

// RecentEstimates returns the newest estimates first, optionally scoped to
// one device. A non-positive limit defaults to 100.
func (s *EstimateStore) RecentEstimates(deviceID string, limit int) ([]*Estimate, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT estimate_id, device_id, algorithm, taylor_order,
		       x, y, z, reading_count, created_at_ns
		FROM estimates
	`
	var args []interface{}

	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}

	query += " ORDER BY created_at_ns DESC, estimate_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var estimates []*Estimate
	for rows.Next() {
		var est Estimate
		var taylorOrder sql.NullInt64
		var z sql.NullFloat64

		err := rows.Scan(
			&est.EstimateID,
			&est.DeviceID,
			&est.Algorithm,
			&taylorOrder,
			&est.X,
			&est.Y,
			&z,
			&est.ReadingCount,
			&est.CreatedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan estimate row: %w", err)
		}

		if taylorOrder.Valid {
			v := taylorOrder.Int64
			est.TaylorOrder = &v
		}
		if z.Valid {
			v := z.Float64
			est.Z = &v
		}

		estimates = append(estimates, &est)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list estimates rows: %w", err)
	}

	return estimates, nil
}

// LatestEstimate returns the most recent estimate for a device.
func (s *EstimateStore) LatestEstimate(deviceID string) (*Estimate, error) {
	estimates, err := s.RecentEstimates(deviceID, 1)
	if err != nil {
		return nil, err
	}
	if len(estimates) == 0 {
		return nil, fmt.Errorf("no estimates for device: %s", deviceID)
	}
	return estimates[0], nil
}

// ListDevices returns the distinct device IDs with stored estimates,
// sorted.
func (s *EstimateStore) ListDevices() ([]string, error) {
	query := `SELECT DISTINCT device_id FROM estimates ORDER BY device_id ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var device string
		if err := rows.Scan(&device); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices rows: %w", err)
	}

	return devices, nil
}
