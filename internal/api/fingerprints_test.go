package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
)

// TestListFingerprints tests the fingerprint listing endpoint
func TestListFingerprints(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/fingerprints", nil)
	w := httptest.NewRecorder()

	server.handleFingerprintsOrCreate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}

	seedScene(t, server)

	// One fingerprint in another survey
	err := server.surveys.InsertFingerprint(&sqlite.SurveyFingerprint{
		SurveyName: "warehouse",
		X:          50,
		Y:          50,
		Readings:   []sqlite.SurveyReading{{SourceID: sourceID(0), RSSIDbm: -80}},
	})
	if err != nil {
		t.Fatalf("InsertFingerprint: %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?survey=" + testSurvey, 9},
		{"?survey=warehouse", 1},
		{"?survey=nowhere", 0},
	}

	for _, tt := range tests {
		t.Run("/api/fingerprints"+tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/fingerprints"+tt.query, nil)
			w := httptest.NewRecorder()
			server.handleFingerprintsOrCreate(w, req)

			var rows []*sqlite.SurveyFingerprint
			if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("Expected %d fingerprints, got %d", tt.want, len(rows))
			}
		})
	}
}

// TestCreateFingerprint tests fingerprint creation and the survey reload
// that follows it
func TestCreateFingerprint(t *testing.T) {
	server := setupTestServer(t)
	seedScene(t, server)

	body := `{
		"survey_name": "floor-2",
		"x": 6.5, "y": 3.5,
		"readings": [
			{"source_id": "AA:BB:CC:DD:EE:01", "rssi_dbm": -52.5},
			{"source_id": "aa:bb:cc:dd:ee:02", "rssi_dbm": -61, "rssi_stddev": 2.5}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/fingerprints", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	server.handleFingerprintsOrCreate(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	var created sqlite.SurveyFingerprint
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if created.FingerprintID == "" {
		t.Error("Expected an assigned fingerprint_id")
	}
	if created.RecordedAtNs == 0 {
		t.Error("Expected recorded_at_ns to be set")
	}
	if created.Readings[0].SourceID != "aa:bb:cc:dd:ee:01" {
		t.Errorf("Expected normalized reading source_id, got %q", created.Readings[0].SourceID)
	}

	// The write reloaded the locator cache
	fingerprints, _ := server.svc.Counts()
	if fingerprints != 10 {
		t.Errorf("Expected 10 cached fingerprints after create, got %d", fingerprints)
	}
}

// TestCreateFingerprint_Validation tests request validation
func TestCreateFingerprint_Validation(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"survey_name": `},
		{"missing survey name", `{"x":1,"y":2,"readings":[{"source_id":"aa:bb:cc:dd:ee:01","rssi_dbm":-50}]}`},
		{"no readings", `{"survey_name":"floor-2","x":1,"y":2,"readings":[]}`},
		{"reading not a bssid", `{"survey_name":"floor-2","readings":[{"source_id":"hallway","rssi_dbm":-50}]}`},
		{"duplicate sources", `{"survey_name":"floor-2","readings":[{"source_id":"aa:bb:cc:dd:ee:01","rssi_dbm":-50},{"source_id":"AA:BB:CC:DD:EE:01","rssi_dbm":-55}]}`},
		{"negative stddev", `{"survey_name":"floor-2","readings":[{"source_id":"aa:bb:cc:dd:ee:01","rssi_dbm":-50,"rssi_stddev":-1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/fingerprints", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()

			server.handleFingerprintsOrCreate(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d. Body: %s", w.Code, w.Body.String())
			}
		})
	}
}

// TestGetFingerprint tests fetching a single fingerprint
func TestGetFingerprint(t *testing.T) {
	server := setupTestServer(t)

	row := &sqlite.SurveyFingerprint{
		SurveyName: testSurvey,
		X:          4,
		Y:          2,
		Readings:   []sqlite.SurveyReading{{SourceID: sourceID(0), RSSIDbm: -55}},
	}
	if err := server.surveys.InsertFingerprint(row); err != nil {
		t.Fatalf("InsertFingerprint: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/fingerprints/"+row.FingerprintID, nil)
	w := httptest.NewRecorder()

	server.handleFingerprintByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var got sqlite.SurveyFingerprint
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.FingerprintID != row.FingerprintID {
		t.Errorf("Expected fingerprint %q, got %q", row.FingerprintID, got.FingerprintID)
	}
	if len(got.Readings) != 1 || got.Readings[0].RSSIDbm != -55 {
		t.Errorf("Expected the stored reading back, got %+v", got.Readings)
	}
}

// TestGetFingerprint_NotFound tests the missing-fingerprint response
func TestGetFingerprint_NotFound(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/fingerprints/no-such-id", nil)
	w := httptest.NewRecorder()

	server.handleFingerprintByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

// TestGetFingerprint_MissingID tests the bare collection path
func TestGetFingerprint_MissingID(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/fingerprints/", nil)
	w := httptest.NewRecorder()

	server.handleFingerprintByID(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestDeleteFingerprint tests fingerprint deletion and the reload after it
func TestDeleteFingerprint(t *testing.T) {
	server := setupTestServer(t)
	seedScene(t, server)

	row := &sqlite.SurveyFingerprint{
		SurveyName: testSurvey,
		X:          4,
		Y:          2,
		Readings:   []sqlite.SurveyReading{{SourceID: sourceID(0), RSSIDbm: -55}},
	}
	if err := server.surveys.InsertFingerprint(row); err != nil {
		t.Fatalf("InsertFingerprint: %v", err)
	}
	if err := server.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if fingerprints, _ := server.svc.Counts(); fingerprints != 10 {
		t.Fatalf("Expected 10 cached fingerprints before delete, got %d", fingerprints)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/fingerprints/"+row.FingerprintID, nil)
	w := httptest.NewRecorder()

	server.handleFingerprintByID(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d. Body: %s", w.Code, w.Body.String())
	}

	fingerprints, _ := server.svc.Counts()
	if fingerprints != 9 {
		t.Errorf("Expected 9 cached fingerprints after delete, got %d", fingerprints)
	}

	// Deleting again is a 404
	req = httptest.NewRequest(http.MethodDelete, "/api/fingerprints/"+row.FingerprintID, nil)
	w = httptest.NewRecorder()
	server.handleFingerprintByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

// TestListSurveys tests the survey name listing
func TestListSurveys(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/surveys", nil)
	w := httptest.NewRecorder()

	server.listSurveys(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty JSON array, got %q", body)
	}

	for _, survey := range []string{"warehouse", "floor-2"} {
		err := server.surveys.InsertFingerprint(&sqlite.SurveyFingerprint{
			SurveyName: survey,
			X:          1,
			Y:          1,
			Readings:   []sqlite.SurveyReading{{SourceID: sourceID(0), RSSIDbm: -60}},
		})
		if err != nil {
			t.Fatalf("InsertFingerprint: %v", err)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/surveys", nil)
	w = httptest.NewRecorder()
	server.listSurveys(w, req)

	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(names) != 2 || names[0] != "floor-2" || names[1] != "warehouse" {
		t.Errorf("Expected sorted survey names [floor-2 warehouse], got %v", names)
	}

	// Only GET is allowed
	req = httptest.NewRequest(http.MethodPost, "/api/surveys", nil)
	w = httptest.NewRecorder()
	server.listSurveys(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}
