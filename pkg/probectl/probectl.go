// Package probectl implements the probe controller (spec §4.C):
// probe_at/probe_distance, the G30 single-probe contract, and the G38.2/G38.3
// straight-probe contract.
package probectl

import (
	"fmt"

	"go.uber.org/zap"

	"deltacal/pkg/calerr"
	"deltacal/pkg/probe"
)

// Axis identifies a machine axis for straight-probe moves.
type Axis int

const (
	AxisX Axis = 0
	AxisY Axis = 1
	AxisZ Axis = 2
)

// Planner is the motion-boundary facade the controller issues coordinated
// moves through. No G-code string synthesis: callers get direct calls
// (spec Design Notes §9).
type Planner interface {
	// AbsoluteMachineMove moves to x,y,z in machine coordinates at feedrate mm/s.
	AbsoluteMachineMove(x, y, z, feedrateMMPerSec float64) error
	// RelativeMove moves dz mm in Z at feedrate mm/s, relative to the current position.
	RelativeMove(dz, feedrateMMPerSec float64) error
	// WaitForEmpty blocks (cooperatively) until the planner queue is empty.
	WaitForEmpty() error
	// Position returns the current machine-coordinate position.
	Position() (x, y, z float64)
}

// CompensationTransform is saved/restored around a straight-probe, per
// spec §4.C "Always restore compensation transform on exit."
type CompensationTransform interface {
	Disable()
	Restore()
}

// Offset is the fixed XYZ displacement between the effector and the probe's
// contact point (spec GLOSSARY "Probe offset").
type Offset struct {
	X, Y, Z float64
}

// Config configures the probe controller.
type Config struct {
	FastFeedrate    float64 // mm/s, XY travel before probing
	ProbeSmoothing  int     // repeat count per probe_at; >1 averages
	MinStepFloor    int64   // minimum plausible averaged step count (misconfiguration guard)
	StraightFeedrateCap float64 // mm/s safety cap for G38.2/G38.3
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		FastFeedrate:   20,
		ProbeSmoothing: 1,
		MinStepFloor:   100,
	}
}

// Controller orchestrates probe cycles against a probe.Driver.
type Controller struct {
	cfg     Config
	offset  Offset
	driver  *probe.Driver
	planner Planner
	log     *zap.SugaredLogger
}

// New constructs a Controller. log may be nil.
func New(cfg Config, offset Offset, driver *probe.Driver, planner Planner, log *zap.SugaredLogger) *Controller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{cfg: cfg, offset: offset, driver: driver, planner: planner, log: log}
}

// ProbeAt moves to (x,y) with the probe offset applied, runs a probe cycle
// (averaged over cfg.ProbeSmoothing repeats), and returns the effector to
// its pre-probe height, returning the averaged trigger step count.
func (c *Controller) ProbeAt(x, y float64, feedrate float64) (int64, error) {
	if err := c.planner.AbsoluteMachineMove(x+c.offset.X, y+c.offset.Y, 0, c.cfg.FastFeedrate); err != nil {
		return 0, err
	}

	repeats := c.cfg.ProbeSmoothing
	if repeats < 1 {
		repeats = 1
	}

	var sum int64
	for i := 0; i < repeats; i++ {
		res, err := c.driver.RunProbe(feedrate, -1, false)
		if err != nil && !calerr.Is(err, calerr.KindNotTriggered) {
			return 0, err
		}
		if !res.Triggered {
			return 0, calerr.NotTriggered("probe_at: motion completed without contact")
		}
		sum += res.StepsAtDecelEnd
		if err := c.driver.ReturnProbe(res.StepsAtDecelEnd, false, c.planner); err != nil {
			return 0, err
		}
	}

	avg := sum / int64(repeats)
	if avg < c.cfg.MinStepFloor {
		return 0, calerr.Config(fmt.Sprintf("probe_at: averaged %d steps below minimum floor %d (misconfigured probe height?)", avg, c.cfg.MinStepFloor))
	}
	return avg, nil
}

// FastMove repositions to (x,y) at the configured fast feedrate without
// probing, for the repeatability test's eccentricity excursion (spec §4.G).
func (c *Controller) FastMove(x, y float64) error {
	return c.planner.AbsoluteMachineMove(x+c.offset.X, y+c.offset.Y, 0, c.cfg.FastFeedrate)
}

// ProbeDistance is ProbeAt expressed in millimeters.
func (c *Controller) ProbeDistance(x, y, feedrate, stepsPerMM float64) (float64, error) {
	steps, err := c.ProbeAt(x, y, feedrate)
	if err != nil {
		return 0, err
	}
	return float64(steps) / stepsPerMM, nil
}

// G30Result is the reply to a single-probe (G30) command.
type G30Result struct {
	Triggered bool
	Steps     int64
	ZMM       float64
}

// G30 runs the single-probe contract: wait for the planner to drain, run one
// probe cycle, and report. overrideZ, if non-nil, resets the Z axis to the
// given value on success; otherwise the effector returns to its pre-probe
// position.
func (c *Controller) G30(feedrateMMPerSec float64, reverse bool, overrideZ *float64, stepsPerMM float64) (G30Result, error) {
	if err := c.planner.WaitForEmpty(); err != nil {
		return G30Result{}, err
	}

	res, err := c.driver.RunProbe(feedrateMMPerSec, -1, reverse)
	if err != nil && !calerr.Is(err, calerr.KindNotTriggered) {
		return G30Result{}, err
	}

	if !res.Triggered {
		return G30Result{Triggered: false}, calerr.NotTriggered("ZProbe not triggered")
	}

	zmm := float64(res.StepsAtDecelEnd) / stepsPerMM
	if overrideZ != nil {
		if err := c.planner.RelativeMove(*overrideZ-zmm, feedrateMMPerSec); err != nil {
			return G30Result{}, err
		}
	} else {
		if err := c.driver.ReturnProbe(res.StepsAtDecelEnd, reverse, c.planner); err != nil {
			return G30Result{}, err
		}
	}

	return G30Result{Triggered: true, Steps: res.StepsAtDecelEnd, ZMM: zmm}, nil
}

// StraightProbeResult is the reply to G38.2/G38.3.
type StraightProbeResult struct {
	Triggered bool
	X, Y, Z   float64
}

// StraightProbe implements G38.2 (alarm on miss) and G38.3 (silent on miss)
// per spec §4.C. dist is the commanded travel distance along axis (signed).
func (c *Controller) StraightProbe(axis Axis, dist, feedrateMMPerSec float64, stopOnMiss bool, transform CompensationTransform, stepsPerMM float64) (StraightProbeResult, error) {
	if transform != nil {
		transform.Disable()
		defer transform.Restore()
	}

	c.driver.SetAxis(int(axis))
	defer c.driver.SetAxis(2)

	feedrate := feedrateMMPerSec
	if c.cfg.StraightFeedrateCap > 0 && feedrate > c.cfg.StraightFeedrateCap {
		feedrate = c.cfg.StraightFeedrateCap
	}

	res, err := c.driver.RunProbe(feedrate, dist, false)
	notTriggered := calerr.Is(err, calerr.KindNotTriggered)
	if err != nil && !notTriggered {
		return StraightProbeResult{}, err
	}

	x, y, z := c.planner.Position()
	result := StraightProbeResult{Triggered: res.Triggered, X: x, Y: y, Z: z}

	if !res.Triggered {
		if stopOnMiss {
			return result, calerr.Halted("ALARM:Probe fail")
		}
		return result, nil
	}
	return result, nil
}
