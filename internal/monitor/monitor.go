// Package monitor serves debugging charts over the survey and estimate
// stores: HTML charts rendered with go-echarts and a PNG radio map rendered
// with gonum/plot. The routes are unauthenticated debug surfaces mounted
// under /debug/charts/ by the server binary.
package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/position.report/internal/fingerprint"
	sqlite "github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
)

// Monitor renders debugging charts from the stored survey and estimates.
type Monitor struct {
	sources   *sqlite.SourceStore
	surveys   *sqlite.SurveyStore
	estimates *sqlite.EstimateStore

	// surveyName scopes the charts when the request carries no survey
	// parameter; empty means all surveys.
	surveyName string
}

// Config contains the stores and defaults for a Monitor.
type Config struct {
	Sources    *sqlite.SourceStore
	Surveys    *sqlite.SurveyStore
	Estimates  *sqlite.EstimateStore
	SurveyName string
}

// New creates a Monitor over the provided stores.
func New(config Config) *Monitor {
	return &Monitor{
		sources:    config.Sources,
		surveys:    config.Surveys,
		estimates:  config.Estimates,
		surveyName: config.SurveyName,
	}
}

// AttachDebugRoutes mounts the chart endpoints on mux under /debug/charts/.
func (m *Monitor) AttachDebugRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/survey", m.handleSurveyScatter)
	mux.HandleFunc("/debug/charts/track", m.handleDeviceTrack)
	mux.HandleFunc("/debug/charts/error-cdf", m.handleErrorCDF)
	mux.HandleFunc("/debug/charts/radiomap.png", m.handleRadioMapPNG)
}

func (m *Monitor) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// surveyFor resolves the survey name a request addresses.
func (m *Monitor) surveyFor(r *http.Request) string {
	if name := r.URL.Query().Get("survey"); name != "" {
		return name
	}
	return m.surveyName
}

// loadSurvey materializes the survey rows and source rows into the types
// the estimators consume.
func (m *Monitor) loadSurvey(surveyName string) ([]*fingerprint.LocatedFingerprint, []fingerprint.Source, error) {
	rows, err := m.surveys.ListFingerprints(surveyName)
	if err != nil {
		return nil, nil, err
	}
	located, err := sqlite.LocatedFingerprints(rows)
	if err != nil {
		return nil, nil, err
	}
	sourceRows, err := m.sources.ListSources()
	if err != nil {
		return nil, nil, err
	}
	sources, err := sqlite.AccessPoints(sourceRows)
	if err != nil {
		return nil, nil, err
	}
	return located, sources, nil
}
