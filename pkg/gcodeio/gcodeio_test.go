package gcodeio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacal/pkg/calerr"
	"deltacal/pkg/geometry"
	"deltacal/pkg/kinematics"
	"deltacal/pkg/motion"
	"deltacal/pkg/probe"
	"deltacal/pkg/probectl"
)

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

type drivingIdle struct {
	tick      *motion.Handler
	actuators []*simActuator
	maxIter   int
	iter      int
}

func (d *drivingIdle) Yield() bool {
	d.iter++
	d.tick.Tick()
	for _, a := range d.actuators {
		a.advance()
	}
	return d.iter > d.maxIter
}

type fakePin struct {
	triggerAtStep int64
	act           *simActuator
}

func (p *fakePin) Read() (bool, error) {
	return p.act.steps >= p.triggerAtStep, nil
}

type fakePlanner struct{ x, y, z float64 }

func (p *fakePlanner) AbsoluteMachineMove(x, y, z, feedrate float64) error {
	p.x, p.y, p.z = x, y, z
	return nil
}
func (p *fakePlanner) RelativeMove(dz, feedrate float64) error { p.z += dz; return nil }
func (p *fakePlanner) WaitForEmpty() error                     { return nil }
func (p *fakePlanner) Position() (float64, float64, float64)   { return p.x, p.y, p.z }

func newDispatcher(t *testing.T, triggerAtStep int64) *Dispatcher {
	t.Helper()
	ax := &simActuator{ticksPerSecond: 1000}
	ay := &simActuator{ticksPerSecond: 1000}
	az := &simActuator{ticksPerSecond: 1000}
	actuators := [3]motion.Actuator{ax, ay, az}
	tick := motion.NewHandler(1000, actuators)
	idle := &drivingIdle{tick: tick, actuators: []*simActuator{ax, ay, az}, maxIter: 200000}
	pin := &fakePin{triggerAtStep: triggerAtStep, act: az}

	cfg := probe.Config{
		DebounceCount:  1,
		SlowFeedrate:   5,
		FastFeedrate:   20,
		ReturnFeedrate: 10,
		ProbeHeight:    5,
		MaxZ:           300,
		StepsPerMM:     100,
		Accel:          2000,
		MinRate:        1,
	}
	drv, err := probe.NewDriver(cfg, pin, idle, tick, actuators, nil)
	require.NoError(t, err)

	planner := &fakePlanner{}
	ctl := probectl.New(probectl.DefaultConfig(), probectl.Offset{}, drv, planner, nil)

	dk, err := kinematics.NewDeltaKinematics(kinematics.DeltaConfig{
		Radius:      140,
		ArmLengths:  []float64{290, 290, 290},
		Endstops:    []float64{350, 350, 350},
		MinZ:        0,
		MaxVelocity: 300,
		MaxAccel:    3000,
	})
	require.NoError(t, err)
	geo := geometry.New(dk)
	geo.MarkClean()

	return &Dispatcher{
		Geo:           geo,
		Probe:         ctl,
		StepsPerMM:    100,
		ProbeFeedrate: 5,
		ProbeRadius:   100,
	}
}

func TestG30EmitsStepsAndMM(t *testing.T) {
	d := newDispatcher(t, 300)
	rep, err := d.Handle(Command{Code: "G30", Params: map[byte]float64{}})
	require.NoError(t, err)
	require.Len(t, rep.Lines, 1)
	assert.Contains(t, rep.Lines[0], "Z:")
	assert.Contains(t, rep.Lines[0], "C:")
}

func TestG30NotTriggeredMessage(t *testing.T) {
	d := newDispatcher(t, 1<<30)
	rep, err := d.Handle(Command{Code: "G30"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ZProbe not triggered"}, rep.Lines)
}

func TestStraightProbeMissHaltsOnG38_2(t *testing.T) {
	d := newDispatcher(t, 1<<30)
	rep, err := d.Handle(Command{Code: "G38.2", Params: map[byte]float64{'X': 10, 'F': 300}})
	require.Error(t, err)
	assert.True(t, calerr.Is(err, calerr.KindHalted))
	assert.True(t, rep.Halted)
	assert.Contains(t, rep.Lines, "ALARM:Probe fail")
}

func TestUnhandledCommandErrors(t *testing.T) {
	d := newDispatcher(t, 300)
	_, err := d.Handle(Command{Code: "G999"})
	require.Error(t, err)
	assert.True(t, calerr.Is(err, calerr.KindConfig))
}

func TestG29RejectsOverThirtySamples(t *testing.T) {
	d := newDispatcher(t, 300)
	_, err := d.Handle(Command{Code: "G29", Params: map[byte]float64{'S': 31}})
	require.Error(t, err)
	assert.True(t, calerr.Is(err, calerr.KindConfig))
}

func TestM119ReportsProbeState(t *testing.T) {
	d := newDispatcher(t, 300)
	d.Pin = &fakePin{triggerAtStep: 1 << 30, act: &simActuator{}}
	rep, err := d.Handle(Command{Code: "M119"})
	require.NoError(t, err)
	assert.Equal(t, []string{"probe: open"}, rep.Lines)
}
