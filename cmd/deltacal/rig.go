package main

import (
	"sync/atomic"

	"go.uber.org/zap"

	"deltacal/pkg/gcodeio"
	"deltacal/pkg/geometry"
	"deltacal/pkg/kinematics"
	"deltacal/pkg/motion"
	"deltacal/pkg/probe"
	"deltacal/pkg/probectl"
)

// simActuator is a minimal motion.Actuator standing in for a real stepper:
// each cooperative Yield advances its step counter by the currently
// commanded rate divided by the tick rate, mirroring pkg/probe's own test
// fixture (there unexported, so this CLI carries its own copy).
type simActuator struct {
	steps          int64
	rate           float64
	stopped        bool
	ticksPerSecond float64
	remainder      float64
}

func (a *simActuator) Stepped() int64    { return a.steps }
func (a *simActuator) SetRate(r float64) { a.rate = r; a.stopped = false }
func (a *simActuator) Stop()             { a.stopped = true; a.rate = 0 }

// advance accumulates a fractional step remainder across ticks: at a
// commanded rate below the tick rate (the common case for mm/s feedrates
// converted to steps/sec), truncating every tick would lose the fraction
// forever and the counter would never move.
func (a *simActuator) advance() {
	if a.stopped {
		return
	}
	a.remainder += a.rate / a.ticksPerSecond
	whole := int64(a.remainder)
	a.steps += whole
	a.remainder -= float64(whole)
}

func (a *simActuator) reset() {
	a.steps = 0
	a.rate = 0
	a.stopped = false
	a.remainder = 0
}

// simPlanner tracks the demo rig's commanded position and satisfies both
// probectl.Planner (XY repositioning, wait-for-empty) and probe.Planner
// (the Z return move), per Design Notes §9's "no G-code re-entry" rule: this
// is a direct in-process stand-in for the planner facade, not a synthesized
// command.
type simPlanner struct {
	x, y, z    float64
	stepsPerMM float64
	z0         *simActuator
}

func (p *simPlanner) AbsoluteMachineMove(x, y, z, _ float64) error {
	p.x, p.y = x, y
	return nil
}

// RelativeMove implements the coordinated post-probe return: the demo rig
// treats it as instantaneous and resets the Z actuator's step counter, since
// nothing in this simulation depends on the return move's own timing.
func (p *simPlanner) RelativeMove(dz, _ float64) error {
	p.z += dz
	p.z0.reset()
	return nil
}

func (p *simPlanner) WaitForEmpty() error { return nil }

func (p *simPlanner) Position() (x, y, z float64) { return p.x, p.y, p.z }

// simIdle drives the motion tick handler and simulated actuators once per
// cooperative yield, standing in for the interrupt-driven ticker plus idle
// event loop (spec §5) during a demo run.
type simIdle struct {
	tick    *motion.Handler
	act     *simActuator
	halted  *int32
	iter    int
	maxIter int
}

func (s *simIdle) Yield() bool {
	s.iter++
	if s.iter > s.maxIter {
		atomic.StoreInt32(s.halted, 1)
	}
	s.tick.Tick()
	s.act.advance()
	return atomic.LoadInt32(s.halted) != 0
}

// simPin reads the probe contact pin against the demo rig's simulated bed
// surface at the planner's current XY position.
type simPin struct {
	planner        *simPlanner
	act            *simActuator
	baseDescentMM  float64
	stepsPerMM     float64
	surface        func(x, y float64) float64
}

func (p *simPin) Read() (bool, error) {
	surfaceMM := p.surface(p.planner.x, p.planner.y)
	triggerSteps := int64((p.baseDescentMM + surfaceMM) * p.stepsPerMM)
	return p.act.Stepped() >= triggerSteps, nil
}

// Rig bundles a fully wired, in-process calibration stack over a simulated
// delta rig: geometry facade, probe driver, probe controller, and the
// gcodeio dispatcher, all driven against a configurable simulated bed
// surface (spec §8 "mock probe that triggers at a configurable simulated
// surface"). Intended for the CLI's demo/calibrate commands, not for
// production use against real hardware.
type Rig struct {
	Geo        *geometry.Facade
	Kin        *kinematics.DeltaKinematics
	Dispatch   *gcodeio.Dispatcher
	Controller *probectl.Controller

	planner *simPlanner
	halted  int32
}

// RigConfig configures the simulated rig's kinematics and probe parameters.
type RigConfig struct {
	ArmLength    float64
	DeltaRadius  float64
	Endstops     [3]float64
	MinZ         float64
	MaxVelocity  float64
	MaxAccel     float64
	MaxZVelocity float64
	MaxZAccel    float64

	StepsPerMM     float64
	DebounceCount  int
	SlowFeedrate   float64
	FastFeedrate   float64
	ReturnFeedrate float64
	ProbeHeight    float64
	MaxZ           float64
	ProbeRadius    float64
	ProbeSmoothing int

	DecelerateOnTrigger bool
	DecelerateRunout    float64
	ReverseZ            bool

	BaseDescentMM float64 // nominal mm of Z travel before the flat-bed trigger point

	// Surface returns the simulated bed's height deviation (mm) at (x,y);
	// positive values mean "deeper" (probe travels further before triggering).
	Surface func(x, y float64) float64

	Log *zap.SugaredLogger
}

// DefaultRigConfig returns a plausible delta geometry (a common
// smaller-format kit's dimensions) with a flat simulated bed.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		ArmLength:      215.0,
		DeltaRadius:    105.0,
		Endstops:       [3]float64{250, 250, 250},
		MinZ:           0,
		MaxVelocity:    200,
		MaxAccel:       3000,
		MaxZVelocity:   30,
		MaxZAccel:      1500,
		StepsPerMM:     100,
		DebounceCount:  2,
		SlowFeedrate:   5,
		FastFeedrate:   20,
		ReturnFeedrate: 10,
		DecelerateRunout: -1,
		ProbeHeight:    5,
		MaxZ:           250,
		ProbeRadius:    100,
		ProbeSmoothing: 1,
		BaseDescentMM:  10,
		Surface:        SurfaceFlat,
	}
}

// SurfaceFlat is a perfectly level bed (spec §8 scenario 1).
func SurfaceFlat(_, _ float64) float64 { return 0 }

// SurfaceTilt simulates tower X reading 1.0mm deeper than the other two
// (spec §8 scenario 2): every point with x < -1 and y < 0 (the quadrant
// holding the X tower's base) reads 1.0mm deeper.
func SurfaceTilt(x, y float64) float64 {
	if x < -1 && y < 0 {
		return 1.0
	}
	return 0
}

// SurfaceBowl simulates a bowl-shaped surface: center 0.5mm deeper than the
// tower-base mean (spec §8 scenario 3).
func SurfaceBowl(x, y float64) float64 {
	r2 := x*x + y*y
	if r2 < 1 {
		return 0.5
	}
	return 0
}

// NewRig builds a fully wired demo rig: delta kinematics, geometry facade,
// probe driver over a single simulated Z actuator, and the probe controller
// and gcodeio dispatcher on top.
func NewRig(cfg RigConfig) (*Rig, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Surface == nil {
		cfg.Surface = SurfaceFlat
	}

	dk, err := kinematics.NewDeltaKinematics(kinematics.DeltaConfig{
		Radius:       cfg.DeltaRadius,
		ArmLengths:   []float64{cfg.ArmLength, cfg.ArmLength, cfg.ArmLength},
		Endstops:     cfg.Endstops[:],
		MinZ:         cfg.MinZ,
		MaxVelocity:  cfg.MaxVelocity,
		MaxAccel:     cfg.MaxAccel,
		MaxZVelocity: cfg.MaxZVelocity,
		MaxZAccel:    cfg.MaxZAccel,
	})
	if err != nil {
		return nil, err
	}
	geo := geometry.New(dk)

	z := &simActuator{ticksPerSecond: 1000}
	tick := motion.NewHandler(1000, [3]motion.Actuator{nil, nil, z})

	planner := &simPlanner{stepsPerMM: cfg.StepsPerMM, z0: z}
	rig := &Rig{Geo: geo, Kin: dk, planner: planner}

	pin := &simPin{
		planner:       planner,
		act:           z,
		baseDescentMM: cfg.BaseDescentMM,
		stepsPerMM:    cfg.StepsPerMM,
		surface:       cfg.Surface,
	}
	idle := &simIdle{tick: tick, act: z, halted: &rig.halted, maxIter: 2_000_000}

	probeCfg := probe.Config{
		DebounceCount:       cfg.DebounceCount,
		SlowFeedrate:        cfg.SlowFeedrate,
		FastFeedrate:        cfg.FastFeedrate,
		ReturnFeedrate:      cfg.ReturnFeedrate,
		ProbeHeight:         cfg.ProbeHeight,
		MaxZ:                cfg.MaxZ,
		DecelerateOnTrigger: cfg.DecelerateOnTrigger,
		DecelerateRunout:    cfg.DecelerateRunout,
		ReverseZ:            cfg.ReverseZ,
		StepsPerMM:          cfg.StepsPerMM,
		Accel:               cfg.MaxZAccel * cfg.StepsPerMM,
		MinRate:             1,
	}
	driver, err := probe.NewDriver(probeCfg, pin, idle, tick, [3]motion.Actuator{nil, nil, z}, log)
	if err != nil {
		return nil, err
	}

	ctlCfg := probectl.DefaultConfig()
	ctlCfg.ProbeSmoothing = cfg.ProbeSmoothing
	controller := probectl.New(ctlCfg, probectl.Offset{}, driver, planner, log)
	rig.Controller = controller

	rig.Dispatch = &gcodeio.Dispatcher{
		Geo:           geo,
		Probe:         controller,
		StepsPerMM:    cfg.StepsPerMM,
		ProbeFeedrate: cfg.SlowFeedrate,
		ProbeRadius:   cfg.ProbeRadius,
		Log:           log,
	}

	return rig, nil
}

// surfaceByName resolves the --surface flag to a simulated bed function.
func surfaceByName(name string) func(x, y float64) float64 {
	switch name {
	case "tilt":
		return SurfaceTilt
	case "bowl":
		return SurfaceBowl
	default:
		return SurfaceFlat
	}
}
