package estimator

import (
	"math"
	"testing"
)

func defaultConfig() Config {
	return Config{
		Dt:    0.1,
		Q0:    0.1,
		R0:    0.5,
		Alpha: 0.20,
		Beta:  0.0,
		Tau:   4.0,
		Eps:   1e-12,
	}
}

func TestConvergesToZeroVelocityOnStationaryInput(t *testing.T) {
	f := New(defaultConfig())
	for i := 0; i < 500; i++ {
		f.Predict()
		f.Update(0.0)
	}
	st := f.State()
	if math.Abs(st.Velocity) >= 0.5 {
		t.Fatalf("converged velocity = %v, want |v| < 0.5 m/s", st.Velocity)
	}
}

func TestCovarianceStaysSymmetricPSD(t *testing.T) {
	f := New(defaultConfig())
	z := 0.0
	for i := 0; i < 1000; i++ {
		f.Predict()
		// Inject noisy/out-of-profile bursts.
		if i%50 < 10 {
			z += 40
		} else {
			z = 0
		}
		f.Update(z)
		if !f.IsSymmetricPSD(1e-6) {
			t.Fatalf("P not symmetric PSD at step %d", i)
		}
	}
}

func TestRStaysAboveEpsilon(t *testing.T) {
	cfg := defaultConfig()
	f := New(cfg)
	for i := 0; i < 2000; i++ {
		f.Predict()
		f.Update(float64(i%7) * 1000) // wild measurements
	}
	if f.R() < cfg.Eps {
		t.Fatalf("R() = %v, want >= eps = %v", f.R(), cfg.Eps)
	}
}

func TestNonFiniteMeasurementDroppedSilently(t *testing.T) {
	f := New(defaultConfig())
	f.Predict()
	f.Update(10.0)
	before := f.State()

	f.Predict()
	f.Update(math.NaN())
	afterPredictOnly := f.State()

	// The update should have been skipped; state reflects only the
	// predict step, not a NaN propagation.
	if math.IsNaN(afterPredictOnly.Altitude) {
		t.Fatalf("state became NaN after a non-finite measurement")
	}
	_ = before
}

func TestNonFinitePredictReseedsCovarianceButKeepsState(t *testing.T) {
	f := New(defaultConfig())
	f.Predict()
	f.Update(50.0)
	last := f.State()

	// Corrupt the transition matrix so the next predicted state is NaN.
	f.f.Set(0, 0, math.NaN())
	f.Predict()
	pxx, pvv, paa := f.Covariance()
	if pxx != 1000 || pvv != 1000 || paa != 1000 {
		t.Fatalf("non-finite Predict() diag = (%v,%v,%v), want (1000,1000,1000)", pxx, pvv, paa)
	}
	if f.State() != last {
		t.Fatalf("non-finite Predict() must not alter the state vector")
	}
}

func TestAdaptationWidensRDuringNoiseBurst(t *testing.T) {
	f := New(defaultConfig())
	for i := 0; i < 50; i++ {
		f.Predict()
		f.Update(0)
	}
	quietR := f.R()

	for i := 0; i < 50; i++ {
		f.Predict()
		f.Update(float64(50 + i%20 - 10))
	}
	noisyR := f.R()

	if !(noisyR > quietR) {
		t.Fatalf("R should widen during a noise burst: quiet=%v noisy=%v", quietR, noisyR)
	}
}
