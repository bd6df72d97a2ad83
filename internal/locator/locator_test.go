package locator

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/banshee-data/position.report/internal/config"
	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
	"github.com/banshee-data/position.report/internal/geo"
	"github.com/banshee-data/position.report/internal/units"
)

// The test scene is a 10x10 m floor with an access point in each corner.
// Readings follow the log-distance law exactly, so estimates can be checked
// against the position the query was generated at.
const (
	testFrequency = 2437 * units.Megahertz
	testTxPower   = -40.0
	testExponent  = 2.0
	testSurvey    = "floor-2"
)

var testSourcePositions = []geo.Point{
	geo.NewPoint2D(0, 0),
	geo.NewPoint2D(10, 0),
	geo.NewPoint2D(0, 10),
	geo.NewPoint2D(10, 10),
}

func sourceID(i int) string {
	return fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i+1)
}

func rssiAt(pos, source geo.Point) float64 {
	return fingerprint.ExpectedRSSI(testTxPower, pos.DistanceTo(source), testFrequency, testExponent)
}

type testEnv struct {
	svc       *Service
	sources   *sqlite.SourceStore
	surveys   *sqlite.SurveyStore
	estimates *sqlite.EstimateStore
}

func newTestEnv(t *testing.T, cfg *config.EstimatorConfig) *testEnv {
	t.Helper()

	d, err := db.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	migrations, err := db.Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if err := d.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	env := &testEnv{
		sources:   sqlite.NewSourceStore(d.DB),
		surveys:   sqlite.NewSurveyStore(d.DB),
		estimates: sqlite.NewEstimateStore(d.DB),
	}
	env.svc = NewService(cfg, env.sources, env.surveys, env.estimates)
	return env
}

// seedScene stores the corner sources and a 3x3 grid of survey fingerprints
// with model-exact readings.
func (env *testEnv) seedScene(t *testing.T) {
	t.Helper()

	for i, pos := range testSourcePositions {
		err := env.sources.UpsertSource(&sqlite.Source{
			SourceID:    sourceID(i),
			X:           pos.X(),
			Y:           pos.Y(),
			FrequencyHz: testFrequency,
		})
		if err != nil {
			t.Fatalf("UpsertSource: %v", err)
		}
	}

	for _, x := range []float64{2, 5, 8} {
		for _, y := range []float64{2, 5, 8} {
			env.insertSurveyFingerprint(t, testSurvey, geo.NewPoint2D(x, y))
		}
	}
}

func (env *testEnv) insertSurveyFingerprint(t *testing.T, survey string, pos geo.Point) {
	t.Helper()

	readings := make([]sqlite.SurveyReading, len(testSourcePositions))
	for i, src := range testSourcePositions {
		readings[i] = sqlite.SurveyReading{
			SourceID: sourceID(i),
			RSSIDbm:  rssiAt(pos, src),
		}
	}
	err := env.surveys.InsertFingerprint(&sqlite.SurveyFingerprint{
		SurveyName: survey,
		X:          pos.X(),
		Y:          pos.Y(),
		Readings:   readings,
	})
	if err != nil {
		t.Fatalf("InsertFingerprint: %v", err)
	}
}

// queryAt builds a query fingerprint with model-exact readings at pos.
func queryAt(t *testing.T, pos geo.Point) *fingerprint.Fingerprint {
	t.Helper()

	readings := make([]fingerprint.Reading, len(testSourcePositions))
	for i, src := range testSourcePositions {
		r, err := fingerprint.NewReading(sourceID(i), rssiAt(pos, src))
		if err != nil {
			t.Fatalf("NewReading: %v", err)
		}
		readings[i] = r
	}
	fp, err := fingerprint.New(readings...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fp
}

func strPtr(s string) *string { return &s }

func TestLocateStoresEstimate(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})
	env.seedScene(t)
	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	truth := geo.NewPoint2D(4, 6)
	row, err := env.svc.Locate("asset-tag-17", queryAt(t, truth))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	if row.EstimateID == "" {
		t.Error("expected a generated estimate_id")
	}
	if row.DeviceID != "asset-tag-17" {
		t.Errorf("DeviceID = %q, want %q", row.DeviceID, "asset-tag-17")
	}
	if row.Algorithm != string(fingerprint.AlgorithmNonlinear) {
		t.Errorf("Algorithm = %q, want %q", row.Algorithm, fingerprint.AlgorithmNonlinear)
	}
	if row.TaylorOrder == nil || *row.TaylorOrder != int64(fingerprint.DefaultTaylorOrder) {
		t.Errorf("TaylorOrder = %v, want %d", row.TaylorOrder, int64(fingerprint.DefaultTaylorOrder))
	}
	if row.ReadingCount != len(testSourcePositions) {
		t.Errorf("ReadingCount = %d, want %d", row.ReadingCount, len(testSourcePositions))
	}
	if row.CreatedAtNs == 0 {
		t.Error("expected a populated created_at_ns")
	}
	if d := row.Position().DistanceTo(truth); d > 1.0 {
		t.Errorf("estimate %s is %.2f m from %s", row.Position(), d, truth)
	}

	stored, err := env.estimates.LatestEstimate("asset-tag-17")
	if err != nil {
		t.Fatalf("LatestEstimate: %v", err)
	}
	if stored.EstimateID != row.EstimateID {
		t.Errorf("stored estimate_id = %q, want %q", stored.EstimateID, row.EstimateID)
	}
}

func TestLocateLinearAlgorithm(t *testing.T) {
	cfg := &config.EstimatorConfig{Algorithm: strPtr("linear")}
	env := newTestEnv(t, cfg)
	env.seedScene(t)
	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	truth := geo.NewPoint2D(4, 6)
	row, err := env.svc.Locate("asset-tag-17", queryAt(t, truth))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	if row.Algorithm != string(fingerprint.AlgorithmLinear) {
		t.Errorf("Algorithm = %q, want %q", row.Algorithm, fingerprint.AlgorithmLinear)
	}
	if row.TaylorOrder != nil {
		t.Errorf("TaylorOrder = %d, want nil for the linear estimator", *row.TaylorOrder)
	}
	// The closed-form solve is exact on noise-free readings.
	if d := row.Position().DistanceTo(truth); d > 0.05 {
		t.Errorf("estimate %s is %.4f m from %s", row.Position(), d, truth)
	}
}

func TestLocateNotifies(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})
	env.seedScene(t)
	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	var got []*sqlite.Estimate
	env.svc.SetNotifier(func(e *sqlite.Estimate) { got = append(got, e) })

	row, err := env.svc.Locate("asset-tag-17", queryAt(t, geo.NewPoint2D(5, 5)))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("notifier ran %d times, want 1", len(got))
	}
	if got[0].EstimateID != row.EstimateID {
		t.Errorf("notified estimate_id = %q, want %q", got[0].EstimateID, row.EstimateID)
	}
}

func TestLocateNotReadyBeforeReload(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})
	env.seedScene(t)
	// No Reload: the cache is still empty even though the database is not.

	_, err := env.svc.Locate("asset-tag-17", queryAt(t, geo.NewPoint2D(5, 5)))
	if !errors.Is(err, fingerprint.ErrNotReady) {
		t.Fatalf("Locate error = %v, want ErrNotReady", err)
	}

	rows, err := env.estimates.RecentEstimates("", 0)
	if err != nil {
		t.Fatalf("RecentEstimates: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("found %d stored estimates after a failed locate, want 0", len(rows))
	}
}

func TestLocateValidation(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})

	if _, err := env.svc.Locate("", queryAt(t, geo.NewPoint2D(5, 5))); !errors.Is(err, fingerprint.ErrConfiguration) {
		t.Errorf("Locate with empty device id: error = %v, want ErrConfiguration", err)
	}
	if _, err := env.svc.Locate("asset-tag-17", nil); !errors.Is(err, fingerprint.ErrConfiguration) {
		t.Errorf("Locate with nil query: error = %v, want ErrConfiguration", err)
	}
	if _, err := env.svc.Locate("asset-tag-17", &fingerprint.Fingerprint{}); !errors.Is(err, fingerprint.ErrConfiguration) {
		t.Errorf("Locate with empty query: error = %v, want ErrConfiguration", err)
	}
}

func TestReloadPicksUpNewData(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})

	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload on empty database: %v", err)
	}
	if fps, srcs := env.svc.Counts(); fps != 0 || srcs != 0 {
		t.Fatalf("Counts = (%d, %d), want (0, 0)", fps, srcs)
	}

	env.seedScene(t)

	// Writes are not visible until the cache is reloaded.
	if _, err := env.svc.Locate("asset-tag-17", queryAt(t, geo.NewPoint2D(5, 5))); !errors.Is(err, fingerprint.ErrNotReady) {
		t.Fatalf("Locate before reload: error = %v, want ErrNotReady", err)
	}

	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if fps, srcs := env.svc.Counts(); fps != 9 || srcs != 4 {
		t.Errorf("Counts = (%d, %d), want (9, 4)", fps, srcs)
	}
	if _, err := env.svc.Locate("asset-tag-17", queryAt(t, geo.NewPoint2D(5, 5))); err != nil {
		t.Errorf("Locate after reload: %v", err)
	}
}

func TestReloadScopesToSurvey(t *testing.T) {
	env := newTestEnv(t, &config.EstimatorConfig{})
	env.seedScene(t)
	env.insertSurveyFingerprint(t, "warehouse", geo.NewPoint2D(3, 3))

	if err := env.svc.Reload(testSurvey); err != nil {
		t.Fatalf("Reload(%q): %v", testSurvey, err)
	}
	if fps, _ := env.svc.Counts(); fps != 9 {
		t.Errorf("Counts fingerprints = %d, want 9 for survey %q", fps, testSurvey)
	}
	if name := env.svc.SurveyName(); name != testSurvey {
		t.Errorf("SurveyName = %q, want %q", name, testSurvey)
	}

	if err := env.svc.Reload(""); err != nil {
		t.Fatalf("Reload(\"\"): %v", err)
	}
	if fps, _ := env.svc.Counts(); fps != 10 {
		t.Errorf("Counts fingerprints = %d, want 10 across all surveys", fps)
	}
}
