// Package locator turns query fingerprints into stored position estimates.
// It sits between the ingest paths (MQTT, serial scanner, HTTP) and the
// fingerprint estimators: survey data and estimator configuration come in,
// estimate rows and notifications come out.
package locator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/position.report/internal/config"
	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
)

// Notifier receives each estimate after it has been stored. It runs on the
// Locate caller's goroutine, so implementations should hand off quickly.
type Notifier func(*sqlite.Estimate)

// Service estimates device positions from query fingerprints. The survey
// fingerprints and source list are cached in memory; call Reload after
// writing to the survey or source tables to pick the changes up. Locate is
// safe for concurrent use: each call builds its own estimator from the
// shared configuration.
type Service struct {
	cfg       *config.EstimatorConfig
	sources   *sqlite.SourceStore
	surveys   *sqlite.SurveyStore
	estimates *sqlite.EstimateStore

	mu         sync.Mutex
	surveyName string
	located    []*fingerprint.LocatedFingerprint
	sourceList []fingerprint.Source
	notify     Notifier
}

// NewService creates a locator service over the given stores. The cache
// starts empty; call Reload before the first Locate.
func NewService(cfg *config.EstimatorConfig, sources *sqlite.SourceStore, surveys *sqlite.SurveyStore, estimates *sqlite.EstimateStore) *Service {
	return &Service{
		cfg:       cfg,
		sources:   sources,
		surveys:   surveys,
		estimates: estimates,
	}
}

// SetNotifier registers a callback invoked with each stored estimate.
func (s *Service) SetNotifier(fn Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Reload replaces the cached survey fingerprints and source list from the
// database. An empty survey name loads every stored fingerprint.
func (s *Service) Reload(surveyName string) error {
	srcRows, err := s.sources.ListSources()
	if err != nil {
		return fmt.Errorf("reload sources: %w", err)
	}
	sourceList, err := sqlite.AccessPoints(srcRows)
	if err != nil {
		return fmt.Errorf("reload sources: %w", err)
	}

	fpRows, err := s.surveys.ListFingerprints(surveyName)
	if err != nil {
		return fmt.Errorf("reload fingerprints: %w", err)
	}
	located, err := sqlite.LocatedFingerprints(fpRows)
	if err != nil {
		return fmt.Errorf("reload fingerprints: %w", err)
	}

	s.mu.Lock()
	s.surveyName = surveyName
	s.located = located
	s.sourceList = sourceList
	s.mu.Unlock()

	log.Printf("locator loaded %d fingerprints and %d sources (survey %q)", len(located), len(sourceList), surveyName)
	return nil
}

// SurveyName returns the survey name the cache was last loaded from.
func (s *Service) SurveyName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surveyName
}

// Counts reports the cached survey size for health reporting.
func (s *Service) Counts() (fingerprints, sources int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.located), len(s.sourceList)
}

// Config returns the estimator configuration the service was built with.
func (s *Service) Config() *config.EstimatorConfig {
	return s.cfg
}

// estimateTimer measures the span between the estimator lifecycle callbacks.
type estimateTimer struct {
	start time.Time
	took  time.Duration
}

func (t *estimateTimer) OnEstimateStart(fingerprint.Estimator) { t.start = time.Now() }
func (t *estimateTimer) OnEstimateEnd(fingerprint.Estimator)   { t.took = time.Since(t.start) }

// Locate estimates the position of deviceID from a query fingerprint,
// stores the estimate and hands the stored row to the notifier. Estimation
// failures carry the fingerprint error sentinels, so callers can
// distinguish a half-loaded survey (ErrNotReady) from a degenerate solve
// (ErrEstimation).
func (s *Service) Locate(deviceID string, query *fingerprint.Fingerprint) (*sqlite.Estimate, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: locate needs a device id", fingerprint.ErrConfiguration)
	}
	if query == nil || query.Len() == 0 {
		return nil, fmt.Errorf("%w: locate needs a query fingerprint with readings", fingerprint.ErrConfiguration)
	}

	s.mu.Lock()
	located := s.located
	sourceList := s.sourceList
	notify := s.notify
	s.mu.Unlock()

	if len(located) == 0 {
		return nil, fmt.Errorf("%w: no survey fingerprints loaded", fingerprint.ErrNotReady)
	}

	est, err := s.cfg.BuildEstimator()
	if err != nil {
		return nil, err
	}
	timer := &estimateTimer{}
	if err := est.SetListener(timer); err != nil {
		return nil, err
	}
	if err := est.SetLocatedFingerprints(located); err != nil {
		return nil, err
	}
	if err := est.SetSources(sourceList); err != nil {
		return nil, err
	}
	if err := est.SetQueryFingerprint(query); err != nil {
		return nil, err
	}

	if err := est.Estimate(); err != nil {
		return nil, err
	}
	pos, ok := est.EstimatedPosition()
	if !ok {
		return nil, fmt.Errorf("%w: estimator finished without a position", fingerprint.ErrEstimation)
	}

	row := &sqlite.Estimate{
		DeviceID:     deviceID,
		Algorithm:    string(est.Algorithm()),
		X:            pos.X(),
		Y:            pos.Y(),
		ReadingCount: query.Len(),
	}
	if pos.Dim() > 2 {
		z := pos.Z()
		row.Z = &z
	}
	if est.Algorithm() == fingerprint.AlgorithmNonlinear {
		order := int64(s.cfg.GetTaylorOrder())
		row.TaylorOrder = &order
	}

	if err := s.estimates.InsertEstimate(row); err != nil {
		return nil, fmt.Errorf("store estimate: %w", err)
	}

	log.Printf("located %s at %s (%s, %d readings, %s)", deviceID, pos, row.Algorithm, row.ReadingCount, timer.took)

	if notify != nil {
		notify(row)
	}
	return row, nil
}
