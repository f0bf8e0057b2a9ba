package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeActuator struct {
	steps   int64
	rate    float64
	stopped bool
}

func (f *fakeActuator) Stepped() int64 { return f.steps }
func (f *fakeActuator) SetRate(r float64) {
	f.rate = r
}
func (f *fakeActuator) Stop() { f.stopped = true }

func TestAccelerateRampsTowardTarget(t *testing.T) {
	act := &fakeActuator{}
	h := NewHandler(1000, [3]Actuator{act, nil, nil})
	h.StartAccelerate(0, 0, 1000, 5000) // 5 steps/tick

	h.Tick()
	assert.InDelta(t, 5, act.rate, 1e-9)
	h.Tick()
	assert.InDelta(t, 10, act.rate, 1e-9)
}

func TestDecelerateStopsAtMinRate(t *testing.T) {
	act := &fakeActuator{}
	h := NewHandler(1000, [3]Actuator{act, nil, nil})
	h.StartDecelerate(0, 8, 10000, 1000000, 5)

	h.Tick() // 8 - 10 = -2 <= MinRate(5) -> stop
	assert.True(t, act.stopped)
	assert.False(t, h.IsMoving())
}

func TestDecelerateOverrunsRunoutLimit(t *testing.T) {
	act := &fakeActuator{steps: 100}
	h := NewHandler(1000, [3]Actuator{act, nil, nil})
	h.StartDecelerate(0, 500, 100, 100, 0) // runout limit already exceeded (100 steps)

	h.Tick()
	assert.True(t, h.Axis(0).HasExceededRunout)
	assert.True(t, act.stopped)
	assert.Equal(t, int64(100), h.Axis(0).StepsAtDecelEnd)
}

func TestIsMovingFalseWhenNoAxisRunning(t *testing.T) {
	h := NewHandler(1000, [3]Actuator{nil, nil, nil})
	assert.False(t, h.IsMoving())
}
