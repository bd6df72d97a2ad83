package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/ingest"
)

// maxEstimateBody bounds the estimate request body; a reading batch is a
// few hundred bytes even for a crowded channel.
const maxEstimateBody = 1 << 20

// estimateStatus maps the estimation error kinds onto HTTP statuses: bad
// input is the client's fault, a missing survey is server state the client
// can wait out, and a degenerate solve is a valid request the survey cannot
// answer.
func estimateStatus(err error) int {
	switch {
	case errors.Is(err, fingerprint.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, fingerprint.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, fingerprint.ErrEstimation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleEstimate handles POST /api/estimate. The body is the same reading
// message scanners publish over MQTT, so a device can switch transports
// without reshaping its payload.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEstimateBody))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	deviceID, query, err := ingest.DecodeMessage("", body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, err := s.svc.Locate(deviceID, query)
	if err != nil {
		s.writeJSONError(w, estimateStatus(err), err.Error())
		return
	}

	if err := json.NewEncoder(w).Encode(row); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write estimate")
		return
	}
}

// listRecentEstimates handles GET /api/estimates/recent with optional
// device and limit query parameters.
func (s *Server) listRecentEstimates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0 // store default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.estimates.RecentEstimates(r.URL.Query().Get("device"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve estimates: %v", err))
		return
	}
	if rows == nil {
		rows = []*sqlite.Estimate{}
	}

	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write estimates")
		return
	}
}

// listDevices handles GET /api/devices, the distinct devices with stored
// estimates.
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	devices, err := s.estimates.ListDevices()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve devices: %v", err))
		return
	}
	if devices == nil {
		devices = []string{}
	}

	if err := json.NewEncoder(w).Encode(devices); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write devices")
		return
	}
}
