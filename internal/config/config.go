// Package config holds the immutable set of periods, thresholds and
// geometry constants that parameterize the flight-control core. A single
// Config value is built once at startup and passed by value into every
// subsystem constructor; nothing in this module reads a package-level
// global for tuning.
package config

import "time"

// Config is the complete set of tunables for one flight.
type Config struct {
	// Sensor counts.
	NumIMU       int
	NumAltimeter int
	NumGNSS      int

	// Task periods.
	IMUPeriod       time.Duration
	AltimeterPeriod time.Duration
	GNSSPeriod      time.Duration
	FSMPeriod       time.Duration
	RetainPeriod    time.Duration
	FlushPeriod     time.Duration

	// Launch detection: PAD_PREOP -> POWERED.
	LaunchAcc float64       // m/s^2, threshold (GT)
	LaunchTon time.Duration // sustained-above duration feeding the sampler capacity

	// Burnout detection: POWERED -> COASTING.
	BurnoutAcc float64 // m/s^2, threshold (LT)
	BurnoutTon time.Duration
	BurnoutMin time.Duration
	BurnoutMax time.Duration

	// Apogee detection: COASTING -> DROGUE_DEPLOY.
	ApogeeVel time.Duration // velocity-sample window length, sampler capacity input
	ApogeeMin time.Duration
	ApogeeMax time.Duration

	// Velocity threshold for the apogee detector (m/s, LT).
	ApogeeVelThreshold float64

	// Descent / recovery geometry.
	DrogueVel           float64 // m/s, theoretical drogue descent velocity
	MainAlt             float64 // m, raw main deployment altitude (LT)
	MainTon             time.Duration
	MainCompensationMul float64

	LandedVel float64 // m/s, threshold (LT)
	LandedTon time.Duration

	// Sampler true-to-false ratio used by every FSM detector.
	SamplerRatio float64

	// Kalman filter tuning (altitude estimator).
	KalmanAlpha float64 // R-adaptation gain
	KalmanBeta  float64 // Q-adaptation gain
	KalmanTau   float64 // innovation gate
	KalmanEps   float64 // numerical floor
	KalmanQ0    float64 // initial process noise diagonal

	// Barometric altitude reference.
	QNHHpa float64

	// Logger.
	LogFilePrefix string
	LogFileExt    string

	// Ground-station uplink.
	UplinkAddr      string
	UplinkJWTSecret []byte

	// DefaultCPUTempC is the cpu_temp_c value the logger reports when no
	// real TemperatureSensor is wired in.
	DefaultCPUTempC float64
}

// Default returns the configuration matching original_source/UserConfig.h,
// re-tuned for the mathematically correct acc_magnitude formula (the
// original firmware tuned LAUNCH_ACC/BURNOUT_ACC against a buggy formula;
// the values below are a reasonable starting point, not a flight-certified
// tuning).
func Default() Config {
	return Config{
		NumIMU:       1,
		NumAltimeter: 1,
		NumGNSS:      1,

		IMUPeriod:       10 * time.Millisecond,
		AltimeterPeriod: 100 * time.Millisecond,
		GNSSPeriod:      500 * time.Millisecond,
		FSMPeriod:       5 * time.Millisecond,
		RetainPeriod:    100 * time.Millisecond,
		FlushPeriod:     1 * time.Second,

		LaunchAcc: 10 * 9.80665, // 10 g
		LaunchTon: 150 * time.Millisecond,

		BurnoutAcc: 6 * 9.80665, // 6 g
		BurnoutTon: 500 * time.Millisecond,
		BurnoutMin: 1 * time.Second,
		BurnoutMax: 1 * time.Second,

		ApogeeVel:          500 * time.Millisecond,
		ApogeeMin:          1 * time.Second,
		ApogeeMax:          3 * time.Second,
		ApogeeVelThreshold: 10.0,

		DrogueVel:           15.0,
		MainAlt:             300.0,
		MainTon:             1 * time.Second,
		MainCompensationMul: 2.0,

		LandedVel: 0.5,
		LandedTon: 5 * time.Second,

		SamplerRatio: 1.0,

		KalmanAlpha: 0.20,
		KalmanBeta:  0.00,
		KalmanTau:   4.0,
		KalmanEps:   1e-12,
		KalmanQ0:    0.5,

		QNHHpa: 1013.25,

		LogFilePrefix: "MFC_LOGGER_",
		LogFileExt:    "CSV",

		UplinkAddr: ":8420",

		DefaultCPUTempC: 25.0,
	}
}

// MainAltCompensated computes the detection-window-latency-compensated main
// deployment altitude threshold:
//
//	MAIN_ALT_COMPENSATED = MAIN_ALT_RAW + k * v_drogue * (T_MAIN / 1000)
//
// Recomputed from MainTon/DrogueVel/MainAlt so that changing MainTon
// recomputes the compensated threshold.
func (c Config) MainAltCompensated() float64 {
	return c.MainAlt + c.MainCompensationMul*c.DrogueVel*c.MainTon.Seconds()
}
