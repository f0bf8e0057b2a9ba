// Package probe implements the probe driver (spec §4.A): debounced contact
// detection, decelerate-on-trigger with bounded runout, and the coordinated
// return move after a probe cycle.
package probe

import (
	"go.uber.org/zap"

	"deltacal/pkg/calerr"
	"deltacal/pkg/motion"
)

// PinReader samples the probe contact pin. The returned bool is
// post-inversion: true means "triggered".
type PinReader interface {
	Read() (bool, error)
}

// Idle is the cooperative yield point the polling loop calls once per
// iteration. Yield returns true if a process-wide halt has been requested,
// in which case the current probe cycle must abort without modifying
// geometry.
type Idle interface {
	Yield() (halted bool)
}

// Planner issues the coordinated relative move used to return the effector
// after a probe cycle (spec §4.A "Return").
type Planner interface {
	RelativeMove(dz float64, feedrateMMPerSec float64) error
}

// Config holds the probe driver's configuration (spec §3).
type Config struct {
	DebounceCount int
	SlowFeedrate  float64 // mm/s
	FastFeedrate  float64 // mm/s
	ReturnFeedrate float64 // mm/s
	ProbeHeight   float64 // mm
	MaxZ          float64 // mm

	DecelerateOnTrigger bool
	DecelerateRunout    float64 // mm; -1 = unset sentinel

	ReverseZ bool

	StepsPerMM float64 // Z steps/mm, used to convert mm <-> steps
	Accel      float64 // steps/sec^2 for the probe descent/decel ramp
	MinRate    float64 // platform minimum nonzero step rate
}

// Validate enforces spec §3's config invariants.
func (c Config) Validate() error {
	if c.DebounceCount < 0 {
		return calerr.Config("debounce_count must be >= 0")
	}
	if c.DecelerateOnTrigger && c.DecelerateRunout < 0 {
		return calerr.Config("decelerate_on_trigger requires decelerate_runout to be set")
	}
	return nil
}

// Result is the outcome of a single probe cycle (spec §3 "Probe cycle result").
type Result struct {
	Triggered       bool
	StepsAtTrigger  int64
	StepsAtDecelEnd int64
	Overrun         bool
}

// Driver runs probe cycles against three actuators (X, Y, Z move together on
// delta geometry) via the motion tick handler.
type Driver struct {
	cfg       Config
	pin       PinReader
	idle      Idle
	tick      *motion.Handler
	actuators [3]motion.Actuator
	axis      int // index of the actuator whose step counter is authoritative (default 2 = Z)
	log       *zap.SugaredLogger
}

// NewDriver constructs a probe Driver. log may be nil. The probe's primary
// axis defaults to Z (index 2); use SetAxis for a straight-probe along X/Y.
func NewDriver(cfg Config, pin PinReader, idle Idle, tick *motion.Handler, actuators [3]motion.Actuator, log *zap.SugaredLogger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Driver{cfg: cfg, pin: pin, idle: idle, tick: tick, actuators: actuators, axis: 2, log: log}, nil
}

// SetAxis selects which actuator (0=X,1=Y,2=Z) is authoritative for trigger
// step counts, for straight-probe cycles along X or Y (spec §4.C G38.2/G38.3).
func (d *Driver) SetAxis(i int) {
	d.axis = i
}

// RunProbe drives the probe toward the surface at feedrate (mm/s) for at
// most maxDistance mm (negative means "2 * max_z", per spec §8 boundary
// behavior). Every actuator is driven at a positive step rate: reverse and
// cfg.ReverseZ do not change the probing direction here (ReturnProbe is
// where they take effect).
func (d *Driver) RunProbe(feedrate, maxDistance float64, reverse bool) (Result, error) {
	active, err := d.pin.Read()
	if err != nil {
		return Result{}, err
	}
	if active {
		return Result{}, calerr.NewState("probe reads triggered at cycle entry")
	}

	if maxDistance < 0 {
		maxDistance = 2 * d.cfg.MaxZ
	}
	limitSteps := int64(maxDistance * d.cfg.StepsPerMM)

	startSteps := int64(0)
	if d.actuators[d.axis] != nil {
		startSteps = d.actuators[d.axis].Stepped()
	}

	targetRate := feedrate * d.cfg.StepsPerMM
	for i := 0; i < 3; i++ {
		if d.actuators[i] == nil {
			continue
		}
		d.tick.StartAccelerate(i, 0, targetRate, d.cfg.Accel)
	}

	debounce := 0
	for {
		if d.idle != nil && d.idle.Yield() {
			d.stopAll()
			return Result{}, calerr.Halted("probe cycle aborted by halt flag")
		}

		if d.actuators[d.axis] != nil && d.actuators[d.axis].Stepped()-startSteps >= limitSteps {
			d.stopAll()
			return Result{Triggered: false}, calerr.NotTriggered("motion completed without contact")
		}

		if !d.tick.IsMoving() {
			return Result{Triggered: false}, calerr.NotTriggered("motion completed without contact")
		}

		active, err := d.pin.Read()
		if err != nil {
			return Result{}, err
		}
		if !active {
			debounce = 0
			continue
		}

		debounce++
		if debounce < d.cfg.DebounceCount {
			continue
		}

		return d.handleTrigger()
	}
}

// handleTrigger captures the trigger step count and either hard-stops or
// decelerates within the configured runout, per spec §4.A "Trigger handling".
func (d *Driver) handleTrigger() (Result, error) {
	stepsAtTrigger := int64(0)
	if d.actuators[d.axis] != nil {
		stepsAtTrigger = d.actuators[d.axis].Stepped()
	}

	if !d.cfg.DecelerateOnTrigger {
		d.stopAll()
		return Result{Triggered: true, StepsAtTrigger: stepsAtTrigger, StepsAtDecelEnd: stepsAtTrigger}, nil
	}

	runoutSteps := int64(d.cfg.DecelerateRunout * d.cfg.StepsPerMM)
	limit := stepsAtTrigger + runoutSteps
	for i := 0; i < 3; i++ {
		if d.actuators[i] == nil {
			continue
		}
		d.tick.StartDecelerate(i, d.tick.Axis(i).CurrentRate, d.cfg.Accel, limit, d.cfg.MinRate)
	}

	for d.tick.IsMoving() {
		if d.idle != nil && d.idle.Yield() {
			d.stopAll()
			return Result{}, calerr.Halted("probe cycle aborted by halt flag during deceleration")
		}
	}

	overrun := d.tick.Axis(d.axis).HasExceededRunout
	stepsAtDecelEnd := d.tick.Axis(d.axis).StepsAtDecelEnd

	res := Result{
		Triggered:       true,
		StepsAtTrigger:  stepsAtTrigger,
		StepsAtDecelEnd: stepsAtDecelEnd,
		Overrun:         overrun,
	}
	if overrun {
		return res, calerr.Overrun("deceleration overshot decelerate_runout")
	}
	return res, nil
}

func (d *Driver) stopAll() {
	for i := 0; i < 3; i++ {
		if d.actuators[i] == nil {
			continue
		}
		d.actuators[i].SetRate(0)
		d.actuators[i].Stop()
		d.tick.Stop(i)
	}
}

// ReturnProbe issues the coordinated return move after a probe cycle: a
// relative Z move of the given step count (converted to mm) at
// min(2*slow_feedrate, fast_feedrate), per spec §4.A "Return". reverse XORs
// with ReverseZ to determine the sign of the returned motion, matching the
// same direction convention used when descending.
func (d *Driver) ReturnProbe(steps int64, reverse bool, planner Planner) error {
	dz := float64(steps) / d.cfg.StepsPerMM
	if d.cfg.ReverseZ != reverse {
		dz = -dz
	}
	feedrate := 2 * d.cfg.SlowFeedrate
	if d.cfg.FastFeedrate < feedrate {
		feedrate = d.cfg.FastFeedrate
	}
	return planner.RelativeMove(dz, feedrate)
}
