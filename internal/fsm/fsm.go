// Package fsm implements the flight finite-state machine: a twelve-state
// progression from power-on through recovery, driven by raw acceleration
// and the fused Kalman state. It is grounded on
// original_source/include/UserFSM.h's UserFSM class — state()/transfer()/
// on_enter() with a (current, previous) pair so on_enter fires exactly once
// per entry — with that file's fixed switch statement rewritten into an
// evaluator that consumes the sampler and actuator packages.
package fsm

import (
	"sync/atomic"
	"time"

	"github.com/vtneil/rocket-avionics-template/internal/actuator"
	"github.com/vtneil/rocket-avionics-template/internal/config"
	"github.com/vtneil/rocket-avionics-template/internal/sampler"
)

// State enumerates the flight progression, matching
// original_source/include/UserFSM.h's UserState exactly.
type State int

const (
	Startup State = iota
	IdleSafe
	Armed
	PadPreop
	Powered
	Coasting
	DrogueDeploy
	DrogueDescend
	MainDeploy
	MainDescend
	Landed
	RecoveredSafe
)

// String mirrors UserFSM.h's state_string().
func (s State) String() string {
	switch s {
	case Startup:
		return "STARTUP"
	case IdleSafe:
		return "IDLE_SAFE"
	case Armed:
		return "ARMED"
	case PadPreop:
		return "PAD_PREOP"
	case Powered:
		return "POWERED"
	case Coasting:
		return "COASTING"
	case DrogueDeploy:
		return "DROGUE_DEPLOY"
	case DrogueDescend:
		return "DROGUE_DESCEND"
	case MainDeploy:
		return "MAIN_DEPLOY"
	case MainDescend:
		return "MAIN_DESCEND"
	case Landed:
		return "LANDED"
	case RecoveredSafe:
		return "RECOVERED_SAFE"
	default:
		return "UNKNOWN"
	}
}

// Input is the per-tick observation the FSM evaluates against: raw
// acceleration magnitude and the fused Kalman state.
type Input struct {
	AccMagnitude float64
	Altitude     float64
	Velocity     float64
	UplinkArmed  bool // ground-station ARM command latched
}

// Indicator reports the status-LED state a caller should drive: on during
// STARTUP, off during the powered/coasting/recovery flight, on again once
// landed.
type Indicator bool

// Machine is the flight FSM. It is not safe for concurrent use from more
// than one goroutine; the core evaluates it from a single FSM-eval task.
type Machine struct {
	cfg config.Config
	act *actuator.Driver

	current  State
	previous State
	entered  bool // true once on_enter has run for `current`
	enterAt  time.Time

	// published mirrors (current, previous) for readers outside the
	// FSM-eval task (the logger reads Current() from its own task) — a
	// per-field guard for a value with a single writer but concurrent
	// readers.
	publishedCurrent  atomic.Int32
	publishedPrevious atomic.Int32

	samp *sampler.Sampler

	// disarmed latches the ground-station disarm command. It is written
	// from the uplink command task and read from the FSM-eval task, so it
	// is an atomic.Bool rather than a plain field: the uplink task is its
	// sole writer, the FSM task only ever reads it.
	disarmed atomic.Bool
}

// New constructs a Machine at Startup, wired to drive the given actuator
// driver's deployment channels.
func New(cfg config.Config, act *actuator.Driver) *Machine {
	m := &Machine{
		cfg:     cfg,
		act:     act,
		current: Startup,
		samp:    sampler.New(1, 0),
	}
	m.publish()
	return m
}

func (m *Machine) publish() {
	m.publishedCurrent.Store(int32(m.current))
	m.publishedPrevious.Store(int32(m.previous))
}

// Current returns the currently-held state. Safe to call from any task.
func (m *Machine) Current() State { return State(m.publishedCurrent.Load()) }

// Previous returns the previously-held state. Safe to call from any task.
func (m *Machine) Previous() State { return State(m.publishedPrevious.Load()) }

// Indicator returns the LED state for the current state. Like Evaluate, it
// is intended to be called from the FSM-eval task.
func (m *Machine) Indicator() Indicator {
	switch m.current {
	case Startup, Landed, RecoveredSafe:
		return true
	default:
		return false
	}
}

// Disarm latches the ground-station disarm command, gating LANDED ->
// RECOVERED_SAFE.
func (m *Machine) Disarm() { m.disarmed.Store(true) }

// Evaluate runs one FSM tick at time `now` against input `in`. It performs
// the on_enter hook exactly once per transition, then the current state's
// detection logic, possibly calling transfer.
func (m *Machine) Evaluate(now time.Time, in Input) {
	// Previous differs from Current only on the tick a transfer happens.
	m.previous = m.current
	if !m.entered {
		m.onEnter(now)
	}

	switch m.current {
	case Startup:
		m.transfer(now, IdleSafe)

	case IdleSafe:
		// Waits for a ground-station ARM command.
		if in.UplinkArmed {
			m.transfer(now, Armed)
		}

	case Armed:
		if in.UplinkArmed {
			m.transfer(now, PadPreop)
		}

	case PadPreop:
		m.samp.Feed(in.AccMagnitude)
		if m.samp.OverByUnder(m.cfg.SamplerRatio) {
			m.transfer(now, Powered)
		}

	case Powered:
		elapsed := now.Sub(m.enterAt)
		m.samp.Feed(in.AccMagnitude)
		detected := elapsed >= m.cfg.BurnoutMin && m.samp.UnderByOver(m.cfg.SamplerRatio)
		if elapsed >= m.cfg.BurnoutMax || detected {
			m.transfer(now, Coasting)
		}

	case Coasting:
		elapsed := now.Sub(m.enterAt)
		m.samp.Feed(in.Velocity)
		detected := elapsed >= m.cfg.ApogeeMin && m.samp.UnderByOver(m.cfg.SamplerRatio)
		if elapsed >= m.cfg.ApogeeMax || detected {
			m.transfer(now, DrogueDeploy)
		}

	case DrogueDeploy:
		m.transfer(now, DrogueDescend)

	case DrogueDescend:
		m.samp.Feed(in.Altitude)
		if m.samp.UnderByOver(m.cfg.SamplerRatio) {
			m.transfer(now, MainDeploy)
		}

	case MainDeploy:
		m.transfer(now, MainDescend)

	case MainDescend:
		m.samp.Feed(absFloat(in.Velocity))
		if m.samp.UnderByOver(m.cfg.SamplerRatio) {
			m.transfer(now, Landed)
		}

	case Landed:
		if m.disarmed.Load() {
			m.transfer(now, RecoveredSafe)
		}

	case RecoveredSafe:
		// Terminal; no further transitions.
	}

	m.publish()
}

// servoReleasedUs is the pulse width a deployment channel is driven to and
// then latched at once its state fires.
const servoReleasedUs = actuator.MinPulseUs

// transfer moves the machine to next, recording previous and clearing the
// entered flag so the next Evaluate call runs next's on_enter exactly once.
func (m *Machine) transfer(now time.Time, next State) {
	m.previous = m.current
	m.current = next
	m.entered = false
	m.onEnter(now)
}

// onEnter runs once per state entry: reset/reconfigure the sampler, record
// the entry time, and fire the deployment channel for the two deploy
// states. DROGUE_DEPLOY and MAIN_DEPLOY fire unconditionally on entry and
// fall straight through to the matching descend state within the same
// tick, so the actuator is already released and locked by the time either
// state could be observed as current.
func (m *Machine) onEnter(now time.Time) {
	m.entered = true
	m.enterAt = now

	switch m.current {
	case PadPreop:
		capacity := durationTicks(m.cfg.LaunchTon, m.cfg.FSMPeriod)
		m.samp.Reconfigure(capacity, m.cfg.LaunchAcc)

	case Powered:
		capacity := durationTicks(m.cfg.BurnoutTon, m.cfg.FSMPeriod)
		m.samp.Reconfigure(capacity, m.cfg.BurnoutAcc)

	case Coasting:
		capacity := durationTicks(m.cfg.ApogeeVel, m.cfg.FSMPeriod)
		m.samp.Reconfigure(capacity, m.cfg.ApogeeVelThreshold)

	case DrogueDeploy:
		m.act.Set(actuator.ChannelDrogue, servoReleasedUs)
		m.act.Lock(actuator.ChannelDrogue)
		m.transfer(now, DrogueDescend)

	case DrogueDescend:
		capacity := durationTicks(m.cfg.MainTon, m.cfg.FSMPeriod)
		m.samp.Reconfigure(capacity, m.cfg.MainAltCompensated())

	case MainDeploy:
		m.act.Set(actuator.ChannelMain, servoReleasedUs)
		m.act.Lock(actuator.ChannelMain)
		m.transfer(now, MainDescend)

	case MainDescend:
		capacity := durationTicks(m.cfg.LandedTon, m.cfg.FSMPeriod)
		m.samp.Reconfigure(capacity, m.cfg.LandedVel)
	}
}

// durationTicks converts a sustained-duration safeguard into a sampler
// capacity at the FSM's evaluation period, with a floor of 1.
func durationTicks(d, period time.Duration) int {
	if period <= 0 {
		return 1
	}
	n := int(d / period)
	if n < 1 {
		n = 1
	}
	return n
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
