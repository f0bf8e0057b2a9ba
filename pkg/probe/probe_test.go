package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacal/pkg/calerr"
	"deltacal/pkg/motion"
)

// simActuator simulates a stepper: each simulated tick, its step counter
// advances by the currently commanded rate / ticksPerSecond.
type simActuator struct {
	steps          int64
	rate           float64
	stopped        bool
	ticksPerSecond float64
	remainder      float64
}

func (a *simActuator) Stepped() int64    { return a.steps }
func (a *simActuator) SetRate(r float64) { a.rate = r }
func (a *simActuator) Stop()             { a.stopped = true; a.rate = 0 }
func (a *simActuator) advance() {
	if a.stopped {
		return
	}
	a.remainder += a.rate / a.ticksPerSecond
	whole := int64(a.remainder)
	a.steps += whole
	a.remainder -= float64(whole)
}

// drivingIdle ticks the motion handler and simulated actuators once per
// Yield call, standing in for the real interrupt-driven ticker during tests.
type drivingIdle struct {
	tick    *motion.Handler
	actuators []*simActuator
	halted  bool
	iter    int
	maxIter int
}

func (d *drivingIdle) Yield() bool {
	d.iter++
	if d.iter > d.maxIter {
		d.halted = true
	}
	d.tick.Tick()
	for _, a := range d.actuators {
		a.advance()
	}
	return d.halted
}

type fakePin struct {
	triggerAtStep int64
	z             *simActuator
}

func (p *fakePin) Read() (bool, error) {
	return p.z.steps >= p.triggerAtStep, nil
}

func baseConfig() Config {
	return Config{
		DebounceCount: 2,
		SlowFeedrate:  5,
		FastFeedrate:  20,
		ReturnFeedrate: 10,
		ProbeHeight:   5,
		MaxZ:          300,
		StepsPerMM:    100,
		Accel:         2000,
		MinRate:       1,
	}
}

func TestRunProbeRejectsIfAlreadyTriggered(t *testing.T) {
	az := &simActuator{ticksPerSecond: 1000, steps: 100}
	pin := &fakePin{triggerAtStep: 0, z: az}
	tick := motion.NewHandler(1000, [3]motion.Actuator{nil, nil, az})
	idle := &drivingIdle{tick: tick, actuators: []*simActuator{az}, maxIter: 1000}

	cfg := baseConfig()
	d, err := NewDriver(cfg, pin, idle, tick, [3]motion.Actuator{nil, nil, az}, nil)
	require.NoError(t, err)

	_, err = d.RunProbe(5, -1, false)
	require.Error(t, err)
	assert.True(t, calerr.Is(err, calerr.KindState))
}

func TestRunProbeTriggersAndHardStops(t *testing.T) {
	az := &simActuator{ticksPerSecond: 1000}
	pin := &fakePin{triggerAtStep: 50, z: az}
	actuators := [3]motion.Actuator{nil, nil, az}
	tick := motion.NewHandler(1000, actuators)
	idle := &drivingIdle{tick: tick, actuators: []*simActuator{az}, maxIter: 100000}

	cfg := baseConfig()
	cfg.DecelerateOnTrigger = false
	d, err := NewDriver(cfg, pin, idle, tick, actuators, nil)
	require.NoError(t, err)

	res, err := d.RunProbe(5, -1, false)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.GreaterOrEqual(t, res.StepsAtTrigger, int64(50))
	assert.Equal(t, res.StepsAtTrigger, res.StepsAtDecelEnd)
}

func TestRunProbeDecelOverrun(t *testing.T) {
	az := &simActuator{ticksPerSecond: 1000}
	pin := &fakePin{triggerAtStep: 50, z: az}
	actuators := [3]motion.Actuator{nil, nil, az}
	tick := motion.NewHandler(1000, actuators)
	idle := &drivingIdle{tick: tick, actuators: []*simActuator{az}, maxIter: 100000}

	cfg := baseConfig()
	cfg.DecelerateOnTrigger = true
	cfg.DecelerateRunout = 0 // first step past trigger overruns, per spec §8
	d, err := NewDriver(cfg, pin, idle, tick, actuators, nil)
	require.NoError(t, err)

	res, err := d.RunProbe(5, -1, false)
	require.Error(t, err)
	assert.True(t, calerr.Is(err, calerr.KindOverrun))
	assert.True(t, res.Overrun)
}

func TestConfigValidateRejectsDecelWithoutRunout(t *testing.T) {
	cfg := baseConfig()
	cfg.DecelerateOnTrigger = true
	cfg.DecelerateRunout = -1
	assert.Error(t, cfg.Validate())
}

func TestReturnProbeReverseZXOR(t *testing.T) {
	az := &simActuator{ticksPerSecond: 1000}
	actuators := [3]motion.Actuator{nil, nil, az}
	tick := motion.NewHandler(1000, actuators)
	idle := &drivingIdle{tick: tick, maxIter: 10}
	cfg := baseConfig()

	cases := []struct {
		reverseZ, reverse bool
		wantNegative      bool
	}{
		{false, false, false},
		{true, false, true},
		{false, true, true},
		{true, true, false},
	}
	for _, c := range cases {
		cfg.ReverseZ = c.reverseZ
		d, err := NewDriver(cfg, &fakePin{z: az}, idle, tick, actuators, nil)
		require.NoError(t, err)
		var got float64
		planner := plannerFunc(func(dz, fr float64) error {
			got = dz
			return nil
		})
		require.NoError(t, d.ReturnProbe(100, c.reverse, planner))
		if c.wantNegative {
			assert.Less(t, got, 0.0)
		} else {
			assert.Greater(t, got, 0.0)
		}
	}
}

type plannerFunc func(dz, feedrate float64) error

func (f plannerFunc) RelativeMove(dz, feedrate float64) error { return f(dz, feedrate) }
