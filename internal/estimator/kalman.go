// Package estimator implements the altitude estimator: a three-state
// (altitude, velocity, acceleration) Kalman filter with Innovation-based
// Adaptive Estimation (IAE) of the scalar measurement noise R, fed by
// barometric altitude samples. Matrix algebra is done with
// gonum.org/v1/gonum/mat, grounded on the teacher's
// internal/fusion/ekf.go — generalized here from its 15-state constant-
// velocity body model down to a constant-jerk 3-state altitude model
// with an added IAE adaptation loop.
package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Config tunes the adaptive filter.
type Config struct {
	Dt    float64 // timestep, seconds (the altimeter task period)
	Q0    float64 // initial process-noise diagonal
	R0    float64 // initial measurement-noise scalar
	Alpha float64 // R-adaptation gain
	Beta  float64 // Q-adaptation gain (0 disables Q adaptation)
	Tau   float64 // innovation gate (multiples of sigma)
	Eps   float64 // numerical floor for R
}

// State is the posterior (altitude, velocity, acceleration).
type State struct {
	Altitude     float64
	Velocity     float64
	Acceleration float64
}

// Filter is the altitude estimator. It is not safe for concurrent use; the
// core runs it from a single altimeter task.
type Filter struct {
	cfg Config

	x *mat.VecDense  // 3x1 state
	p *mat.SymDense   // 3x3 covariance
	f *mat.Dense      // 3x3 constant-jerk transition
	q *mat.SymDense   // 3x3 process noise
	h *mat.Dense       // 1x3 observation, H = [1 0 0]

	r     float64 // scalar measurement noise, adapted online
	cHat  float64 // exponentially-weighted innovation-covariance estimate
}

// New constructs a filter seeded at zero state with a large initial
// covariance (P0 = diag(1000)), matching
// original_source/include/custom_kalman.h's Filter1T.
func New(cfg Config) *Filter {
	f := &Filter{
		cfg: cfg,
		x:   mat.NewVecDense(3, nil),
		p:   mat.NewSymDense(3, nil),
		f:   buildTransition(cfg.Dt),
		q:   mat.NewSymDense(3, []float64{cfg.Q0, 0, 0, 0, cfg.Q0, 0, 0, 0, cfg.Q0}),
		h:   mat.NewDense(1, 3, []float64{1, 0, 0}),
		r:   cfg.R0,
	}
	for i := 0; i < 3; i++ {
		f.p.SetSym(i, i, 1000.0)
	}
	return f
}

// buildTransition builds the constant-jerk discretized transition matrix F
// for timestep dt:
//
//	altitude' = altitude + velocity*dt + 0.5*acceleration*dt^2
//	velocity' = velocity + acceleration*dt
//	acceleration' = acceleration
func buildTransition(dt float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, dt, 0.5 * dt * dt,
		0, 1, dt,
		0, 0, 1,
	})
}

// State returns the current posterior.
func (f *Filter) State() State {
	return State{
		Altitude:     f.x.AtVec(0),
		Velocity:     f.x.AtVec(1),
		Acceleration: f.x.AtVec(2),
	}
}

// Predict runs the predict half-cycle: x = Fx, P = FPF' + Q.
//
// If the result is non-finite, the covariance is reseeded to a large
// diagonal but the last finite state vector is preserved.
func (f *Filter) Predict() {
	var xNext mat.VecDense
	xNext.MulVec(f.f, f.x)

	if !finiteVec(&xNext) {
		f.reseedCovariance()
		return
	}
	f.x.CopyVec(&xNext)

	var fp mat.Dense
	fp.Mul(f.f, f.p)
	var fpft mat.Dense
	fpft.Mul(&fp, f.f.T())

	var pNext mat.Dense
	pNext.Add(&fpft, f.q)

	if !finiteDense(&pNext) {
		f.reseedCovariance()
		return
	}
	f.setSymFrom(&pNext)
}

// Update runs the update half-cycle against barometric altitude measurement
// z (meters), with IAE adaptation of R. Non-finite measurements are dropped
// silently; the filter state is left unchanged.
func (f *Filter) Update(z float64) {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return
	}

	var hx mat.VecDense
	hx.MulVec(f.h, f.x)
	y := z - hx.AtVec(0) // innovation

	var hp mat.Dense
	hp.Mul(f.h, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, f.h.T())
	s := hpht.At(0, 0) + f.r // innovation covariance (scalar)
	if s <= 0 {
		s = f.cfg.Eps
	}

	r := f.r
	// Innovation gate: inflate R for this step only when the normalized
	// innovation exceeds tau, rather than skipping the update outright,
	// preserving responsiveness.
	normalized := math.Abs(y) / math.Sqrt(s)
	if f.cfg.Tau > 0 && normalized > f.cfg.Tau {
		r = s * normalized // inflate in proportion to how far outside the gate
		s = hpht.At(0, 0) + r
	}

	var pht mat.Dense
	pht.Mul(f.p, f.h.T())
	// Kalman gain K = P*H'*S^-1, S is scalar here.
	k := mat.NewVecDense(3, []float64{pht.At(0, 0) / s, pht.At(1, 0) / s, pht.At(2, 0) / s})

	var correction mat.VecDense
	correction.ScaleVec(y, k)
	f.x.AddVec(f.x, &correction)

	// P <- (I - K*H) * P
	var kh mat.Dense
	kh.Mul(k, f.h)
	var iMinusKH mat.Dense
	iMinusKH.Sub(identity3(), &kh)
	var pNext mat.Dense
	pNext.Mul(&iMinusKH, f.p)
	f.setSymFrom(&pNext)

	f.adapt(y, s)
}

// adapt implements the IAE loop:
//  1. Ĉ <- (1-alpha)*Ĉ + alpha*y*y'
//  2. R <- (1-alpha)*R + alpha*(Ĉ - H*P*H'), clamped to >= eps
//  3. optionally adapt Q symmetrically with weight beta.
func (f *Filter) adapt(y, sPrior float64) {
	a := f.cfg.Alpha
	if a <= 0 {
		return
	}

	f.cHat = (1-a)*f.cHat + a*y*y

	var hp mat.Dense
	hp.Mul(f.h, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, f.h.T())

	rNext := (1-a)*f.r + a*(f.cHat-hpht.At(0, 0))
	if rNext < f.cfg.Eps {
		rNext = f.cfg.Eps
	}
	f.r = rNext

	if f.cfg.Beta > 0 {
		b := f.cfg.Beta
		delta := b * (f.cHat - sPrior)
		for i := 0; i < 3; i++ {
			v := f.q.At(i, i) + delta
			if v < f.cfg.Eps {
				v = f.cfg.Eps
			}
			f.q.SetSym(i, i, v)
		}
	}
}

func (f *Filter) reseedCovariance() {
	p := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		p.SetSym(i, i, 1000.0)
	}
	f.p = p
}

// setSymFrom copies a general (possibly only numerically symmetric) 3x3
// Dense into the filter's covariance, symmetrizing by averaging off-
// diagonal pairs so P remains exactly symmetric despite floating point
// round-off. Positive-semidefiniteness is not enforced here.
func (f *Filter) setSymFrom(d *mat.Dense) {
	if !finiteDense(d) {
		f.reseedCovariance()
		return
	}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			v := d.At(i, j)
			if i != j {
				v = (v + d.At(j, i)) / 2
			}
			f.p.SetSym(i, j, v)
		}
	}
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func finiteDense(d *mat.Dense) bool {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if x := d.At(i, j); math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// Covariance returns the diagonal of P, useful for diagnostics/tests.
func (f *Filter) Covariance() (pxx, pvv, paa float64) {
	return f.p.At(0, 0), f.p.At(1, 1), f.p.At(2, 2)
}

// R returns the current adapted measurement noise.
func (f *Filter) R() float64 {
	return f.r
}

// IsSymmetricPSD reports whether P is (numerically) symmetric and has a
// non-negative diagonal.
func (f *Filter) IsSymmetricPSD(tol float64) bool {
	for i := 0; i < 3; i++ {
		if f.p.At(i, i) < -tol {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(f.p.At(i, j)-f.p.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}
