package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
)

// handleFingerprintsOrCreate handles GET and POST to /api/fingerprints
func (s *Server) handleFingerprintsOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listFingerprints(w, r)
	case http.MethodPost:
		s.handleCreateFingerprint(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// listFingerprints handles GET /api/fingerprints with an optional survey
// query parameter.
func (s *Server) listFingerprints(w http.ResponseWriter, r *http.Request) {
	rows, err := s.surveys.ListFingerprints(r.URL.Query().Get("survey"))
	if err != nil {
		log.Printf("Error fetching fingerprints: %v", err)
		http.Error(w, "Failed to fetch fingerprints", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []*sqlite.SurveyFingerprint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// handleCreateFingerprint handles POST /api/fingerprints. The body is the
// stored row shape; fingerprint_id and recorded_at_ns are assigned when
// omitted.
func (s *Server) handleCreateFingerprint(w http.ResponseWriter, r *http.Request) {
	var row sqlite.SurveyFingerprint
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if row.SurveyName == "" {
		http.Error(w, "Survey name is required", http.StatusBadRequest)
		return
	}
	if len(row.Readings) == 0 {
		http.Error(w, "At least one reading is required", http.StatusBadRequest)
		return
	}
	for i := range row.Readings {
		hw, err := net.ParseMAC(strings.TrimSpace(row.Readings[i].SourceID))
		if err != nil {
			http.Error(w, "Reading source IDs must be BSSIDs", http.StatusBadRequest)
			return
		}
		row.Readings[i].SourceID = hw.String()
	}
	// Materialization runs the domain validation: positive stddevs, no
	// duplicate sources.
	if _, err := row.Located(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.surveys.InsertFingerprint(&row); err != nil {
		log.Printf("Error inserting fingerprint: %v", err)
		http.Error(w, "Failed to store fingerprint", http.StatusInternalServerError)
		return
	}

	s.reloadSurvey()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(&row)
}

// handleFingerprintByID handles GET/DELETE /api/fingerprints/:id
func (s *Server) handleFingerprintByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/fingerprints/"), "/")
	if len(pathParts) != 1 || pathParts[0] == "" {
		http.Error(w, "Missing fingerprint ID", http.StatusBadRequest)
		return
	}
	id := pathParts[0]

	switch r.Method {
	case http.MethodGet:
		s.handleGetFingerprint(w, r, id)
	case http.MethodDelete:
		s.handleDeleteFingerprint(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetFingerprint handles GET /api/fingerprints/:id
func (s *Server) handleGetFingerprint(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.surveys.GetFingerprint(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Fingerprint not found", http.StatusNotFound)
			return
		}
		log.Printf("Error fetching fingerprint %s: %v", id, err)
		http.Error(w, "Failed to fetch fingerprint", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(row)
}

// handleDeleteFingerprint handles DELETE /api/fingerprints/:id
func (s *Server) handleDeleteFingerprint(w http.ResponseWriter, r *http.Request, id string) {
	err := s.surveys.DeleteFingerprint(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Fingerprint not found", http.StatusNotFound)
			return
		}
		log.Printf("Error deleting fingerprint %s: %v", id, err)
		http.Error(w, "Failed to delete fingerprint", http.StatusInternalServerError)
		return
	}

	s.reloadSurvey()

	w.WriteHeader(http.StatusNoContent)
}

// listSurveys handles GET /api/surveys - the distinct stored survey names
func (s *Server) listSurveys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names, err := s.surveys.ListSurveyNames()
	if err != nil {
		log.Printf("Error fetching survey names: %v", err)
		http.Error(w, "Failed to fetch surveys", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}
