package fingerprint

import (
	"errors"
	"testing"

	"github.com/banshee-data/position.report/internal/geo"
)

// lifecycleRecorder exercises the lock discipline from inside the
// listener callbacks.
type lifecycleRecorder struct {
	est Estimator

	starts, ends  int
	lockedAtStart bool
	lockedAtEnd   bool
	passedStart   Estimator
	setterErr     error
	reentryErr    error
}

func (l *lifecycleRecorder) OnEstimateStart(e Estimator) {
	l.starts++
	l.passedStart = e
	l.lockedAtStart = e.Locked()
	l.setterErr = l.est.SetDefaultPathLossExponent(3.0)
	l.reentryErr = l.est.Estimate()
}

func (l *lifecycleRecorder) OnEstimateEnd(e Estimator) {
	l.ends++
	l.lockedAtEnd = e.Locked()
}

func TestNewEstimatorFactory(t *testing.T) {
	tests := []struct {
		name      string
		algorithm Algorithm
		order     Order
		wantErr   bool
		wantAlg   Algorithm
	}{
		{"linear ignores order", AlgorithmLinear, 0, false, AlgorithmLinear},
		{"nonlinear second order", AlgorithmNonlinear, OrderSecond, false, AlgorithmNonlinear},
		{"nonlinear bad order", AlgorithmNonlinear, Order(9), true, ""},
		{"unknown algorithm", Algorithm("quadratic"), OrderFirst, true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			est, err := NewEstimator(tc.algorithm, tc.order)
			if tc.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("NewEstimator = %v, want ErrConfiguration", err)
				}
				if est != nil {
					t.Fatal("NewEstimator returned a non-nil estimator with an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEstimator: %v", err)
			}
			if got := est.Algorithm(); got != tc.wantAlg {
				t.Errorf("Algorithm() = %q, want %q", got, tc.wantAlg)
			}
		})
	}
}

func TestEstimatorDefaults(t *testing.T) {
	est := NewLinearEstimator()

	if got := est.MinNearestFingerprints(); got != DefaultMinNearestFingerprints {
		t.Errorf("MinNearestFingerprints() = %d, want %d", got, DefaultMinNearestFingerprints)
	}
	if got := est.MaxNearestFingerprints(); got != MaxNearestUnset {
		t.Errorf("MaxNearestFingerprints() = %d, want unset", got)
	}
	if got := est.DefaultPathLossExponent(); got != FreeSpacePathLossExponent {
		t.Errorf("DefaultPathLossExponent() = %v, want %v", got, FreeSpacePathLossExponent)
	}
	if !est.UseSourcePathLossExponent() {
		t.Error("UseSourcePathLossExponent() = false, want true by default")
	}
	if !est.UseRawSignalFinder() {
		t.Error("UseRawSignalFinder() = false, want true by default")
	}
	if est.RemoveMeanFromReadings() {
		t.Error("RemoveMeanFromReadings() = true, want false by default")
	}
	if est.Ready() {
		t.Error("fresh estimator reports Ready")
	}
	if est.Locked() {
		t.Error("fresh estimator reports Locked")
	}
	if _, ok := est.EstimatedPosition(); ok {
		t.Error("fresh estimator reports an estimated position")
	}
}

func TestSetMinMaxNearestFingerprints(t *testing.T) {
	tests := []struct {
		name             string
		minNear, maxNear int
		wantErr          bool
	}{
		{"max below min", 2, 1, true},
		{"zero min", 0, 3, true},
		{"negative min", -2, MaxNearestUnset, true},
		{"max equals min", 3, 3, false},
		{"max above min", 2, 3, false},
		{"unset max", 5, MaxNearestUnset, false},
		{"negative max other than unset", 1, -3, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			est := NewLinearEstimator()
			err := est.SetMinMaxNearestFingerprints(tc.minNear, tc.maxNear)
			if tc.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("SetMinMaxNearestFingerprints(%d, %d) = %v, want ErrConfiguration", tc.minNear, tc.maxNear, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetMinMaxNearestFingerprints(%d, %d): %v", tc.minNear, tc.maxNear, err)
			}
			if got := est.MinNearestFingerprints(); got != tc.minNear {
				t.Errorf("MinNearestFingerprints() = %d, want %d", got, tc.minNear)
			}
			if got := est.MaxNearestFingerprints(); got != tc.maxNear {
				t.Errorf("MaxNearestFingerprints() = %d, want %d", got, tc.maxNear)
			}
		})
	}
}

func TestSetDefaultPathLossExponentValidation(t *testing.T) {
	est := NewLinearEstimator()
	for _, n := range []float64{0, -1.5} {
		if err := est.SetDefaultPathLossExponent(n); !errors.Is(err, ErrConfiguration) {
			t.Errorf("SetDefaultPathLossExponent(%v) = %v, want ErrConfiguration", n, err)
		}
	}
	if err := est.SetDefaultPathLossExponent(3.2); err != nil {
		t.Fatalf("SetDefaultPathLossExponent(3.2): %v", err)
	}
	if got := est.DefaultPathLossExponent(); got != 3.2 {
		t.Errorf("DefaultPathLossExponent() = %v, want 3.2", got)
	}
}

func TestSetLocatedFingerprintsValidation(t *testing.T) {
	twoD := mustLocated(t, mustFingerprint(t, mustReading(t, "ap-1", -50)), geo.NewPoint2D(1, 2))
	threeD := mustLocated(t, mustFingerprint(t, mustReading(t, "ap-1", -55)), geo.NewPoint3D(1, 2, 3))

	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLocatedFingerprints(nil) = %v, want ErrConfiguration", err)
	}
	if err := est.SetLocatedFingerprints([]*LocatedFingerprint{twoD, nil}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLocatedFingerprints with nil entry = %v, want ErrConfiguration", err)
	}
	if err := est.SetLocatedFingerprints([]*LocatedFingerprint{twoD, threeD}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLocatedFingerprints with mixed dimensions = %v, want ErrConfiguration", err)
	}
	if err := est.SetLocatedFingerprints([]*LocatedFingerprint{twoD}); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if got := est.LocatedFingerprints(); len(got) != 1 || got[0] != twoD {
		t.Errorf("LocatedFingerprints() = %v, want the single survey point", got)
	}
}

func TestSetSourcesValidation(t *testing.T) {
	ap1, err := NewAccessPoint("aa:bb:cc:dd:ee:01", geo.NewPoint2D(0, 0), testFrequency)
	if err != nil {
		t.Fatalf("NewAccessPoint: %v", err)
	}
	ap1Dup, err := NewAccessPoint("aa:bb:cc:dd:ee:01", geo.NewPoint2D(5, 5), testFrequency)
	if err != nil {
		t.Fatalf("NewAccessPoint: %v", err)
	}

	est := NewLinearEstimator()
	if err := est.SetSources(nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetSources(nil) = %v, want ErrConfiguration", err)
	}
	if err := est.SetSources([]Source{ap1, nil}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetSources with nil entry = %v, want ErrConfiguration", err)
	}
	if err := est.SetSources([]Source{ap1, ap1Dup}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetSources with duplicate id = %v, want ErrConfiguration", err)
	}
	if err := est.SetSources([]Source{ap1}); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
}

func TestDimensionAgreementBetweenSurveyAndSources(t *testing.T) {
	survey2D := []*LocatedFingerprint{
		mustLocated(t, mustFingerprint(t, mustReading(t, "ap-1", -50)), geo.NewPoint2D(1, 2)),
	}
	source3D, err := NewAccessPoint("aa:bb:cc:dd:ee:02", geo.NewPoint3D(0, 0, 2.5), testFrequency)
	if err != nil {
		t.Fatalf("NewAccessPoint: %v", err)
	}

	// Survey first, then a source of the wrong dimension.
	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(survey2D); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetSources([]Source{source3D}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetSources(3D) against 2D survey = %v, want ErrConfiguration", err)
	}

	// Sources first, then a survey of the wrong dimension.
	est = NewLinearEstimator()
	if err := est.SetSources([]Source{source3D}); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
	if err := est.SetLocatedFingerprints(survey2D); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLocatedFingerprints(2D) against 3D sources = %v, want ErrConfiguration", err)
	}
}

func TestEstimateRequiresFullConfiguration(t *testing.T) {
	sources := fiveSourceScene(t)
	located := gridSurvey(t, sources, 3)
	query := fingerprintAt(t, sources, geo.NewPoint2D(7.5, 5.0), 0)

	est := NewLinearEstimator()
	if err := est.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Estimate on empty estimator = %v, want ErrNotReady", err)
	}

	if err := est.SetLocatedFingerprints(located); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetQueryFingerprint(query); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if est.Ready() {
		t.Error("Ready without sources")
	}
	if err := est.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Estimate without sources = %v, want ErrNotReady", err)
	}

	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
	if !est.Ready() {
		t.Fatal("estimator not Ready after full configuration")
	}
	if err := est.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if _, ok := est.EstimatedPosition(); !ok {
		t.Error("no estimated position after a successful Estimate")
	}
}

func TestEstimateLocksConfiguration(t *testing.T) {
	sources := fiveSourceScene(t)
	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(gridSurvey(t, sources, 3)); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetQueryFingerprint(fingerprintAt(t, sources, geo.NewPoint2D(9, 11), 0)); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}

	rec := &lifecycleRecorder{est: est}
	if err := est.SetListener(rec); err != nil {
		t.Fatalf("SetListener: %v", err)
	}

	if err := est.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if rec.starts != 1 || rec.ends != 1 {
		t.Errorf("listener saw %d starts and %d ends, want 1 and 1", rec.starts, rec.ends)
	}
	if rec.passedStart != Estimator(est) {
		t.Error("listener callback received a different estimator")
	}
	if !rec.lockedAtStart || !rec.lockedAtEnd {
		t.Errorf("Locked() during callbacks = start %v end %v, want true for both", rec.lockedAtStart, rec.lockedAtEnd)
	}
	if !errors.Is(rec.setterErr, ErrLocked) {
		t.Errorf("setter during estimate = %v, want ErrLocked", rec.setterErr)
	}
	if !errors.Is(rec.reentryErr, ErrLocked) {
		t.Errorf("Estimate during estimate = %v, want ErrLocked", rec.reentryErr)
	}
	if est.Locked() {
		t.Error("estimator still locked after Estimate returned")
	}
	if got := est.DefaultPathLossExponent(); got != FreeSpacePathLossExponent {
		t.Errorf("rejected setter changed the exponent to %v", got)
	}
}

func TestListenerNotifiedOnFailedEstimate(t *testing.T) {
	sources := fiveSourceScene(t)
	located := gridSurvey(t, sources, 2)

	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(located); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetQueryFingerprint(fingerprintAt(t, sources, geo.NewPoint2D(3, 4), 0)); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
	// Demand more matches than the survey holds.
	if err := est.SetMinMaxNearestFingerprints(len(located)+1, MaxNearestUnset); err != nil {
		t.Fatalf("SetMinMaxNearestFingerprints: %v", err)
	}

	rec := &lifecycleRecorder{est: est}
	if err := est.SetListener(rec); err != nil {
		t.Fatalf("SetListener: %v", err)
	}

	if err := est.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Estimate = %v, want ErrNotReady", err)
	}
	if rec.starts != 1 || rec.ends != 1 {
		t.Errorf("listener saw %d starts and %d ends on failure, want 1 and 1", rec.starts, rec.ends)
	}
	if est.Locked() {
		t.Error("estimator still locked after failed Estimate")
	}
}

func TestFailedEstimateRetainsPreviousPosition(t *testing.T) {
	sources := fiveSourceScene(t)
	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(gridSurvey(t, sources, 3)); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetQueryFingerprint(fingerprintAt(t, sources, geo.NewPoint2D(12, 6), 0)); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
	if err := est.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	before, ok := est.EstimatedPosition()
	if !ok {
		t.Fatal("no estimated position after success")
	}

	// A query that shares no sources with the survey cannot be matched.
	disjoint := mustFingerprint(t, mustReading(t, "99:99:99:99:99:99", -40))
	if err := est.SetQueryFingerprint(disjoint); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if err := est.Estimate(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Estimate with disjoint query = %v, want ErrNotReady", err)
	}

	after, ok := est.EstimatedPosition()
	if !ok {
		t.Fatal("failed Estimate cleared the previous position")
	}
	if !after.Equal(before) {
		t.Errorf("failed Estimate changed the position from %v to %v", before, after)
	}
}

func TestEstimatedPositionIsACopy(t *testing.T) {
	sources := fiveSourceScene(t)
	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(gridSurvey(t, sources, 3)); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetQueryFingerprint(fingerprintAt(t, sources, geo.NewPoint2D(4, 14), 0)); err != nil {
		t.Fatalf("SetQueryFingerprint: %v", err)
	}
	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}
	if err := est.Estimate(); err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	first, _ := est.EstimatedPosition()
	first[0] += 1000
	second, _ := est.EstimatedPosition()
	if second[0] == first[0] {
		t.Error("mutating the returned position leaked into the estimator")
	}
}

func TestGettersReturnCopies(t *testing.T) {
	sources := fiveSourceScene(t)
	located := gridSurvey(t, sources, 2)

	est := NewLinearEstimator()
	if err := est.SetLocatedFingerprints(located); err != nil {
		t.Fatalf("SetLocatedFingerprints: %v", err)
	}
	if err := est.SetSources(sources); err != nil {
		t.Fatalf("SetSources: %v", err)
	}

	est.LocatedFingerprints()[0] = nil
	if got := est.LocatedFingerprints(); got[0] == nil {
		t.Error("mutating the returned survey slice leaked into the estimator")
	}
	est.Sources()[0] = nil
	if got := est.Sources(); got[0] == nil {
		t.Error("mutating the returned sources slice leaked into the estimator")
	}
}
