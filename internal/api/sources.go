package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/units"
)

// SourceRequest represents the request body for creating/updating sources
type SourceRequest struct {
	SourceID         string   `json:"source_id"`
	Name             string   `json:"name"`
	X                float64  `json:"x"`
	Y                float64  `json:"y"`
	Z                *float64 `json:"z"`
	FrequencyHz      float64  `json:"frequency_hz"`
	TxPowerDbm       *float64 `json:"tx_power_dbm"`
	PathLossExponent *float64 `json:"path_loss_exponent"`
}

// CalibrationRequest selects the survey a source is calibrated against.
type CalibrationRequest struct {
	SurveyName string `json:"survey_name"`
}

// handleSourcesOrCreate handles GET and POST to /api/sources
func (s *Server) handleSourcesOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSources(w, r)
	case http.MethodPost:
		s.handleCreateSource(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// sourceView wraps a source row with its transmit power converted to the
// requested unit.
type sourceView struct {
	*sqlite.Source
	TxPower      *float64 `json:"tx_power,omitempty"`
	TxPowerUnits string   `json:"tx_power_units,omitempty"`
}

// powerUnits reads and validates the optional units query parameter. The
// empty string keeps the stored dBm representation.
func powerUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	unit := r.URL.Query().Get("units")
	if unit == "" || unit == units.DBM {
		return "", true
	}
	if !units.IsValidPowerUnit(unit) {
		http.Error(w, "Invalid units, must be one of: "+units.GetValidPowerUnitsString(), http.StatusBadRequest)
		return "", false
	}
	return unit, true
}

// convertSourcePower renders a source row at the requested power unit.
func convertSourcePower(row *sqlite.Source, unit string) sourceView {
	view := sourceView{Source: row}
	if unit != "" && row.TxPowerDbm != nil {
		converted := units.ConvertPower(*row.TxPowerDbm, unit)
		view.TxPower = &converted
		view.TxPowerUnits = unit
	}
	return view
}

// listSources handles GET /api/sources - List all surveyed sources
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	unit, ok := powerUnits(w, r)
	if !ok {
		return
	}

	rows, err := s.sources.ListSources()
	if err != nil {
		log.Printf("Error fetching sources: %v", err)
		http.Error(w, "Failed to fetch sources", http.StatusInternalServerError)
		return
	}

	views := make([]sourceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, convertSourcePower(row, unit))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// handleSourceByID handles GET/DELETE /api/sources/:bssid and
// POST /api/sources/:bssid/calibrate
func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sources/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Missing source ID", http.StatusBadRequest)
		return
	}

	hw, err := net.ParseMAC(pathParts[0])
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}
	sourceID := hw.String()

	if len(pathParts) == 2 && pathParts[1] == "calibrate" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCalibrateSource(w, r, sourceID)
		return
	}
	if len(pathParts) != 1 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSource(w, r, sourceID)
	case http.MethodDelete:
		s.handleDeleteSource(w, r, sourceID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetSource handles GET /api/sources/:bssid
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request, sourceID string) {
	unit, ok := powerUnits(w, r)
	if !ok {
		return
	}

	row, err := s.sources.GetSource(sourceID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		log.Printf("Error fetching source %s: %v", sourceID, err)
		http.Error(w, "Failed to fetch source", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(convertSourcePower(row, unit))
}

// handleCreateSource handles POST /api/sources
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if req.SourceID == "" {
		http.Error(w, "Source ID is required", http.StatusBadRequest)
		return
	}
	hw, err := net.ParseMAC(strings.TrimSpace(req.SourceID))
	if err != nil {
		http.Error(w, "Source ID must be a BSSID", http.StatusBadRequest)
		return
	}
	if req.FrequencyHz <= 0 {
		http.Error(w, "Frequency is required", http.StatusBadRequest)
		return
	}
	if req.PathLossExponent != nil && *req.PathLossExponent <= 0 {
		http.Error(w, "Path-loss exponent must be positive", http.StatusBadRequest)
		return
	}

	row := &sqlite.Source{
		SourceID:         hw.String(),
		Name:             req.Name,
		X:                req.X,
		Y:                req.Y,
		Z:                req.Z,
		FrequencyHz:      req.FrequencyHz,
		TxPowerDbm:       req.TxPowerDbm,
		PathLossExponent: req.PathLossExponent,
	}

	if err := s.sources.UpsertSource(row); err != nil {
		log.Printf("Error upserting source %s: %v", row.SourceID, err)
		http.Error(w, "Failed to store source", http.StatusInternalServerError)
		return
	}

	// Fetch the stored row to return it with timestamps populated
	created, err := s.sources.GetSource(row.SourceID)
	if err != nil {
		log.Printf("Error fetching stored source: %v", err)
		http.Error(w, "Source stored but failed to fetch", http.StatusInternalServerError)
		return
	}

	s.reloadSurvey()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// handleDeleteSource handles DELETE /api/sources/:bssid
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request, sourceID string) {
	err := s.sources.DeleteSource(sourceID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		log.Printf("Error deleting source %s: %v", sourceID, err)
		http.Error(w, "Failed to delete source", http.StatusInternalServerError)
		return
	}

	s.reloadSurvey()

	w.WriteHeader(http.StatusNoContent)
}

// handleCalibrateSource handles POST /api/sources/:bssid/calibrate - fit the
// path-loss exponent and transmitted power of one source against a stored
// survey and record the result on the source row.
func (s *Server) handleCalibrateSource(w http.ResponseWriter, r *http.Request, sourceID string) {
	var req CalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	row, err := s.sources.GetSource(sourceID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		log.Printf("Error fetching source %s: %v", sourceID, err)
		http.Error(w, "Failed to fetch source", http.StatusInternalServerError)
		return
	}
	ap, err := row.AccessPoint()
	if err != nil {
		log.Printf("Error materializing source %s: %v", sourceID, err)
		http.Error(w, "Failed to load source", http.StatusInternalServerError)
		return
	}

	fpRows, err := s.surveys.ListFingerprints(req.SurveyName)
	if err != nil {
		log.Printf("Error fetching fingerprints for calibration: %v", err)
		http.Error(w, "Failed to fetch survey fingerprints", http.StatusInternalServerError)
		return
	}
	located, err := sqlite.LocatedFingerprints(fpRows)
	if err != nil {
		log.Printf("Error materializing fingerprints for calibration: %v", err)
		http.Error(w, "Failed to load survey fingerprints", http.StatusInternalServerError)
		return
	}

	n, txPowerDbm, err := fingerprint.CalibrateFromSurvey(ap, located)
	if err != nil {
		s.writeJSONError(w, estimateStatus(err), err.Error())
		return
	}

	if err := s.sources.SetCalibration(sourceID, txPowerDbm, n); err != nil {
		log.Printf("Error storing calibration for %s: %v", sourceID, err)
		http.Error(w, "Failed to store calibration", http.StatusInternalServerError)
		return
	}

	s.reloadSurvey()

	updated, err := s.sources.GetSource(sourceID)
	if err != nil {
		log.Printf("Error fetching calibrated source: %v", err)
		http.Error(w, "Calibration stored but failed to fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}
