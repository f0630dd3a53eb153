// Package telemetry defines the process-wide SharedTelemetry record and the
// per-field mutex discipline that lets the sensor-acquisition tasks, the
// altitude estimator, the FSM and the logger all read and write it safely.
//
// Go does not guarantee atomic load/store of a float64 on every platform
// this module might be cross-compiled for, so every field group here is
// guarded by its own small mutex rather than relying on native 8-byte
// atomics. Fields are grouped by natural
// single-writer boundary (one task per sensor, one task for the fused
// Kalman output, one group for sensor health) rather than behind one giant
// lock, so a slow reader of one group never blocks a writer of another.
package telemetry

import (
	"math"
	"sync"
)

// IMUSample is the latest raw IMU reading, m/s^2 for acceleration and
// rad/s for gyro rates.
type IMUSample struct {
	AccX, AccY, AccZ float64
	GyrX, GyrY, GyrZ float64
}

// BaroSample is the latest raw barometric reading.
type BaroSample struct {
	PressureHPa float64
	AltitudeM   float64 // MSL, derived via ISA-76 at the configured QNH
}

// GNSSSample is the latest raw GNSS fix. Carried but not consumed by the
// core FSM.
type GNSSSample struct {
	Epoch      uint32
	SatsInView uint8
	Lat, Lon   float64
	AltMSL     float64
}

// SensorStatus mirrors SensorStatus in original_source/lib/LibAvionics/Sensors.h.
type SensorStatus uint8

const (
	SensorUnknown SensorStatus = iota
	SensorOK
	SensorErr
	SensorAbsent
)

func (s SensorStatus) String() string {
	switch s {
	case SensorOK:
		return "OK"
	case SensorErr:
		return "ERR"
	case SensorAbsent:
		return "ABSENT"
	default:
		return "UNKNOWN"
	}
}

// KalmanState is the posterior of the altitude estimator's 3-state kinematic
// model: altitude (m), velocity (m/s), acceleration (m/s^2).
type KalmanState struct {
	Altitude     float64
	Velocity     float64
	Acceleration float64
}

// Shared is the process-wide telemetry record. One instance is
// constructed at boot and lent to every task for the life of the process.
type Shared struct {
	imuMu  sync.RWMutex
	imu    []IMUSample
	accMag float64 // accMag is guarded by imuMu; it is derived from imu[0..n)

	baroMu sync.RWMutex
	baro   []BaroSample

	gnssMu sync.RWMutex
	gnss   []GNSSSample

	kalmanMu sync.RWMutex
	kalman   KalmanState

	healthMu sync.RWMutex
	imuHealth       []SensorStatus
	altimeterHealth []SensorStatus
	gnssHealth      []SensorStatus
}

// New allocates a Shared record sized for the given sensor counts, with
// every health slot starting UNKNOWN until the boot sequence runs Begin()
// on each driver.
func New(numIMU, numAltimeter, numGNSS int) *Shared {
	s := &Shared{
		imu:             make([]IMUSample, numIMU),
		baro:            make([]BaroSample, numAltimeter),
		gnss:            make([]GNSSSample, numGNSS),
		imuHealth:       make([]SensorStatus, numIMU),
		altimeterHealth: make([]SensorStatus, numAltimeter),
		gnssHealth:      make([]SensorStatus, numGNSS),
	}
	return s
}

// SetIMU publishes a new IMU sample for slot i and recomputes acc_magnitude
// from it. acc_magnitude uses the mathematically correct
// sqrt(ax^2+ay^2+az^2), not the original firmware's `az+az` bug.
func (s *Shared) SetIMU(i int, sample IMUSample) {
	s.imuMu.Lock()
	defer s.imuMu.Unlock()
	s.imu[i] = sample
	s.accMag = accMagnitude(sample)
}

// IMU returns a copy of the latest IMU sample for slot i.
func (s *Shared) IMU(i int) IMUSample {
	s.imuMu.RLock()
	defer s.imuMu.RUnlock()
	return s.imu[i]
}

// AccMagnitude returns the scalar magnitude derived from the most recently
// written IMU sample across any slot.
func (s *Shared) AccMagnitude() float64 {
	s.imuMu.RLock()
	defer s.imuMu.RUnlock()
	return s.accMag
}

func accMagnitude(sample IMUSample) float64 {
	return math.Sqrt(sample.AccX*sample.AccX + sample.AccY*sample.AccY + sample.AccZ*sample.AccZ)
}

// SetBaro publishes a new barometric sample for slot i.
func (s *Shared) SetBaro(i int, sample BaroSample) {
	s.baroMu.Lock()
	defer s.baroMu.Unlock()
	s.baro[i] = sample
}

// Baro returns a copy of the latest barometric sample for slot i.
func (s *Shared) Baro(i int) BaroSample {
	s.baroMu.RLock()
	defer s.baroMu.RUnlock()
	return s.baro[i]
}

// SetGNSS publishes a new GNSS fix for slot i.
func (s *Shared) SetGNSS(i int, sample GNSSSample) {
	s.gnssMu.Lock()
	defer s.gnssMu.Unlock()
	s.gnss[i] = sample
}

// GNSS returns a copy of the latest GNSS fix for slot i.
func (s *Shared) GNSS(i int) GNSSSample {
	s.gnssMu.RLock()
	defer s.gnssMu.RUnlock()
	return s.gnss[i]
}

// SetKalman publishes the altitude estimator's posterior atomically. It is
// written only by the altimeter task.
func (s *Shared) SetKalman(state KalmanState) {
	s.kalmanMu.Lock()
	defer s.kalmanMu.Unlock()
	s.kalman = state
}

// Kalman returns a copy of the latest fused altitude/velocity/acceleration.
func (s *Shared) Kalman() KalmanState {
	s.kalmanMu.RLock()
	defer s.kalmanMu.RUnlock()
	return s.kalman
}

// SetIMUHealth records the health of IMU slot i.
func (s *Shared) SetIMUHealth(i int, status SensorStatus) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.imuHealth[i] = status
}

// IMUHealth returns the health of IMU slot i.
func (s *Shared) IMUHealth(i int) SensorStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.imuHealth[i]
}

// SetAltimeterHealth records the health of altimeter slot i.
func (s *Shared) SetAltimeterHealth(i int, status SensorStatus) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.altimeterHealth[i] = status
}

// AltimeterHealth returns the health of altimeter slot i.
func (s *Shared) AltimeterHealth(i int) SensorStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.altimeterHealth[i]
}

// SetGNSSHealth records the health of GNSS slot i.
func (s *Shared) SetGNSSHealth(i int, status SensorStatus) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.gnssHealth[i] = status
}

// GNSSHealth returns the health of GNSS slot i.
func (s *Shared) GNSSHealth(i int) SensorStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.gnssHealth[i]
}
