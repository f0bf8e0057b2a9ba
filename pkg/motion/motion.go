// Package motion implements the interrupt-context acceleration/deceleration
// tick handler described by the probing core: a callback invoked at a fixed
// rate that ramps each actuator's step rate toward a target, enforcing a
// bounded runout distance while decelerating after a probe trigger.
//
// Tick must not allocate, log, or block: it is written to run as an
// interrupt-context callback. Synchronization with the foreground is by
// single-writer discipline (see AxisState doc) — no locking is used here.
package motion

// Actuator is the minimal per-axis surface the tick handler drives. It is
// implemented by the real stepper pulse generator on hardware, or by a mock
// for simulation and tests.
type Actuator interface {
	// Stepped returns the actuator's absolute step counter.
	Stepped() int64
	// SetRate commands a new step rate in steps/second. Zero stops pulses
	// without necessarily killing the move (see Stop).
	SetRate(stepsPerSec float64)
	// Stop immediately halts the actuator (hard stop).
	Stop()
}

// AxisState holds the per-axis ramp state the tick handler reads and writes.
// The foreground writes Running/Accelerating/TargetRate/Accel/RunoutLimitSteps
// before arming the ticker; the ticker writes CurrentRate/HasExceededRunout/
// StepsAtDecelEnd, which the foreground reads only after observing
// Running == false on every axis (single-writer discipline, spec §5/§9).
type AxisState struct {
	Running      bool
	Accelerating bool // true: ramping toward TargetRate; false: decelerating to 0

	CurrentRate float64 // steps/sec, current commanded rate
	TargetRate  float64 // steps/sec, rate to accelerate toward

	Accel float64 // steps/sec^2 for this axis (Z may differ from X/Y)

	// RunoutLimitSteps bounds how far a deceleration pass may travel past
	// the trigger step count before a hard stop is forced (decelerate_runout).
	RunoutLimitSteps int64
	// MinRate is the platform's minimum nonzero step rate; a decelerating
	// rate at or below this snaps to zero and stops.
	MinRate float64

	HasExceededRunout bool
	StepsAtDecelEnd   int64
}

// Handler is the tick callback owner for up to three actuators (X, Y, Z for
// delta geometry — all three move together during a probe).
type Handler struct {
	ticksPerSecond float64
	axes           [3]AxisState
	actuators      [3]Actuator
}

// NewHandler creates a Handler ticking at ticksPerSecond Hz (typically 1000,
// per spec §5's "acceleration ticker").
func NewHandler(ticksPerSecond float64, actuators [3]Actuator) *Handler {
	return &Handler{ticksPerSecond: ticksPerSecond, actuators: actuators}
}

// StartAccelerate arms axis i to ramp toward targetRate at accel steps/sec^2.
// Called from the foreground before the ticker is enabled.
func (h *Handler) StartAccelerate(i int, currentRate, targetRate, accel float64) {
	h.axes[i] = AxisState{
		Running:      true,
		Accelerating: true,
		CurrentRate:  currentRate,
		TargetRate:   targetRate,
		Accel:        accel,
	}
}

// StartDecelerate arms axis i to decelerate to zero, enforcing runoutLimitSteps
// as an absolute step-counter ceiling (steps_at_trigger + decelerate_runout *
// steps_per_mm). minRate is the platform's minimum step-rate floor.
func (h *Handler) StartDecelerate(i int, currentRate, accel float64, runoutLimitSteps int64, minRate float64) {
	h.axes[i] = AxisState{
		Running:          true,
		Accelerating:     false,
		CurrentRate:      currentRate,
		Accel:            accel,
		RunoutLimitSteps: runoutLimitSteps,
		MinRate:          minRate,
	}
}

// Stop marks axis i as not running without touching the actuator (used when
// a cycle ends outside of deceleration, e.g. hard stop on non-decel trigger).
func (h *Handler) Stop(i int) {
	h.axes[i].Running = false
}

// Tick advances every running axis by one tick. No allocation, no logging.
func (h *Handler) Tick() {
	for i := 0; i < 3; i++ {
		axis := &h.axes[i]
		if !axis.Running {
			continue
		}
		actuator := h.actuators[i]
		if actuator == nil {
			axis.Running = false
			continue
		}

		if axis.Accelerating {
			delta := axis.Accel / h.ticksPerSecond
			newRate := axis.CurrentRate + delta
			if newRate > axis.TargetRate {
				newRate = axis.TargetRate
			}
			axis.CurrentRate = newRate
			actuator.SetRate(newRate)
			continue
		}

		// Decelerating.
		stepped := actuator.Stepped()
		if stepped >= axis.RunoutLimitSteps {
			axis.CurrentRate = 0
			actuator.SetRate(0)
			actuator.Stop()
			axis.HasExceededRunout = true
			axis.StepsAtDecelEnd = stepped
			axis.Running = false
			continue
		}

		delta := axis.Accel / h.ticksPerSecond
		newRate := axis.CurrentRate - delta
		if newRate <= axis.MinRate {
			actuator.SetRate(0)
			actuator.Stop()
			axis.CurrentRate = 0
			axis.StepsAtDecelEnd = actuator.Stepped()
			axis.Running = false
			continue
		}
		axis.CurrentRate = newRate
		actuator.SetRate(newRate)
	}
}

// IsMoving reports whether any axis is still running. The foreground polls
// this (outside the tick handler) to know when it may safely read result
// flags (HasExceededRunout, StepsAtDecelEnd).
func (h *Handler) IsMoving() bool {
	for i := range h.axes {
		if h.axes[i].Running {
			return true
		}
	}
	return false
}

// Axis returns a copy of axis i's state. Safe to call only after observing
// IsMoving() == false for result fields to be meaningful.
func (h *Handler) Axis(i int) AxisState {
	return h.axes[i]
}
