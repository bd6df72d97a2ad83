// Package api serves the position.report HTTP surface: estimate requests,
// survey and source management, the estimate log and the live websocket
// feed.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/locator"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type Server struct {
	svc       *locator.Service
	sources   *sqlite.SourceStore
	surveys   *sqlite.SurveyStore
	estimates *sqlite.EstimateStore

	// Hub fans stored estimates out to websocket clients. The caller runs
	// it (go srv.Hub.Run(ctx)) and wires it to the locator notifier.
	Hub *Hub
}

func NewServer(svc *locator.Service, sources *sqlite.SourceStore, surveys *sqlite.SurveyStore, estimates *sqlite.EstimateStore) *Server {
	return &Server{
		svc:       svc,
		sources:   sources,
		surveys:   surveys,
		estimates: estimates,
		Hub:       NewHub(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode < 200:
		return code
	case statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode < 400:
		return colorYellow + code + colorReset
	default:
		return colorBoldRed + code + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Microseconds())/1e3)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/estimate", s.handleEstimate)
	mux.HandleFunc("/api/estimates/recent", s.listRecentEstimates)
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/sources", s.handleSourcesOrCreate)
	mux.HandleFunc("/api/sources/", s.handleSourceByID)
	mux.HandleFunc("/api/fingerprints", s.handleFingerprintsOrCreate)
	mux.HandleFunc("/api/fingerprints/", s.handleFingerprintByID)
	mux.HandleFunc("/api/surveys", s.listSurveys)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/healthz", s.healthz)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// reloadSurvey refreshes the locator cache after a survey or source write.
// The write has already committed, so a reload failure only logs.
func (s *Server) reloadSurvey() {
	if err := s.svc.Reload(s.svc.SurveyName()); err != nil {
		log.Printf("Error reloading survey after write: %v", err)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.svc.Config()
	fingerprints, sources := s.svc.Counts()

	// Effective values rather than the raw file: unset fields report the
	// default the estimator will actually run with.
	config := map[string]interface{}{
		"algorithm":                     string(cfg.GetAlgorithm()),
		"taylor_order":                  cfg.GetTaylorOrder().String(),
		"min_nearest_fingerprints":      cfg.GetMinNearestFingerprints(),
		"max_nearest_fingerprints":      cfg.GetMaxNearestFingerprints(),
		"default_path_loss_exponent":    cfg.GetDefaultPathLossExponent(),
		"use_source_path_loss_exponent": cfg.GetUseSourcePathLossExponent(),
		"use_raw_signal_finder":         cfg.GetUseRawSignalFinder(),
		"remove_mean_from_readings":     cfg.GetRemoveMeanFromReadings(),
		"fallback_rssi_stddev":          cfg.GetFallbackRSSIStdDev(),
		"fitter_max_iterations":         cfg.GetFitterMaxIterations(),
		"survey": map[string]interface{}{
			"name":         s.svc.SurveyName(),
			"fingerprints": fingerprints,
			"sources":      sources,
		},
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fingerprints, sources := s.svc.Counts()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"fingerprints": fingerprints,
		"sources":      sources,
	})
}
