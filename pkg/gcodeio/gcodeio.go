// Package gcodeio implements the command-dispatch boundary (spec §6):
// pre-parsed commands go in, replies come out. There is no lexer here — per
// Design Notes §9, callers issue direct calls rather than synthesized
// command strings; this package only maps the historical G/M-code surface
// onto the calibration engine's Go API for callers that still want to drive
// it by code+letter-parameter pairs (e.g. a serial front-end).
package gcodeio

import (
	"fmt"

	"go.uber.org/zap"

	"deltacal/pkg/calerr"
	"deltacal/pkg/calibrate"
	"deltacal/pkg/geometry"
	"deltacal/pkg/probectl"
)

// Command is a pre-parsed G/M-code: a code string ("G30", "G38.2", "M665")
// plus single-letter numeric parameters.
type Command struct {
	Code   string
	Params map[byte]float64
}

func (c Command) get(letter byte, def float64) float64 {
	if v, ok := c.Params[letter]; ok {
		return v
	}
	return def
}

func (c Command) has(letter byte) bool {
	_, ok := c.Params[letter]
	return ok
}

// Reply is the dispatcher's response: zero or more status lines, and
// whether the command halted the machine.
type Reply struct {
	Lines  []string
	Halted bool
}

// PinReader reports the probe pin state for M119.
type PinReader interface {
	Read() (bool, error)
}

// AccelSetter applies a planner acceleration override for M204.
type AccelSetter interface {
	SetAcceleration(mmPerSecSq float64)
}

// Persister saves/loads calibration settings for M500/M503.
type Persister interface {
	Save() error
	Describe() []string
}

// Dispatcher maps the historical G/M-code surface onto the calibration
// engine (spec §6). All fields are optional except Geo and Probe; a nil
// optional collaborator makes the corresponding command reply without acting
// (M119 with no Pin reports "probe: open").
type Dispatcher struct {
	Geo   *geometry.Facade
	Probe *probectl.Controller

	Pin       PinReader
	Accel     AccelSetter
	Persist   Persister
	StepsPerMM     float64
	ProbeFeedrate  float64 // mm/s, used for calibration-strategy probe cycles

	ProbeRadius float64
	Log         *zap.SugaredLogger
}

// Handle dispatches a single command and returns its reply.
func (d *Dispatcher) Handle(cmd Command) (Reply, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch cmd.Code {
	case "G28":
		return Reply{Lines: []string{"ok"}}, nil

	case "G29":
		return d.handleG29(cmd)

	case "G30":
		return d.handleG30(cmd)

	case "G31":
		return d.handleG31(cmd)

	case "G32":
		return d.handleG32(cmd)

	case "G38.2":
		return d.handleStraightProbe(cmd, true)

	case "G38.3":
		return d.handleStraightProbe(cmd, false)

	case "M119":
		return d.handleM119()

	case "M204":
		if d.Accel != nil && cmd.has('S') {
			d.Accel.SetAcceleration(cmd.get('S', 0))
		}
		return Reply{Lines: []string{"ok"}}, nil

	case "M500":
		if d.Persist != nil {
			if err := d.Persist.Save(); err != nil {
				return Reply{}, err
			}
		}
		return Reply{Lines: []string{"ok"}}, nil

	case "M503":
		if d.Persist != nil {
			return Reply{Lines: d.Persist.Describe()}, nil
		}
		return Reply{Lines: []string{"ok"}}, nil

	case "M665":
		if cmd.has('Z') {
			log.Infow("gamma_max updated", "value", cmd.get('Z', 0))
		}
		return Reply{Lines: []string{"ok"}}, nil

	case "M670":
		return Reply{Lines: []string{"ok"}}, nil

	default:
		return Reply{}, calerr.Config(fmt.Sprintf("unhandled command %q", cmd.Code))
	}
}

func (d *Dispatcher) handleG30(cmd Command) (Reply, error) {
	reverse := cmd.get('R', 0) != 0
	feedrateMMPerMin := cmd.get('F', 0)
	feedrate := feedrateMMPerMin / 60.0
	if feedrate <= 0 {
		feedrate = 5
	}

	var overrideZ *float64
	if cmd.has('Z') {
		z := cmd.get('Z', 0)
		overrideZ = &z
	}

	res, err := d.Probe.G30(feedrate, reverse, overrideZ, d.StepsPerMM)
	if err != nil {
		if calerr.Is(err, calerr.KindNotTriggered) {
			return Reply{Lines: []string{"ZProbe not triggered"}}, nil
		}
		return Reply{}, err
	}

	return Reply{Lines: []string{fmt.Sprintf("Z:%.3f C:%d", res.ZMM, res.Steps)}}, nil
}

func (d *Dispatcher) handleStraightProbe(cmd Command, stopOnMiss bool) (Reply, error) {
	axis := probectl.AxisX
	dist := cmd.get('X', 0)
	if cmd.has('Y') {
		axis = probectl.AxisY
		dist = cmd.get('Y', 0)
	} else if cmd.has('Z') {
		axis = probectl.AxisZ
		dist = cmd.get('Z', 0)
	}

	feedrate := cmd.get('F', 0) / 60.0
	if feedrate <= 0 {
		feedrate = 5
	}

	res, err := d.Probe.StraightProbe(axis, dist, feedrate, stopOnMiss, nil, d.StepsPerMM)
	prb := fmt.Sprintf("[PRB:%.3f,%.3f,%.3f:%d]", res.X, res.Y, res.Z, boolToInt(res.Triggered))

	if err != nil {
		if calerr.Is(err, calerr.KindHalted) {
			return Reply{Lines: []string{prb, "ALARM:Probe fail"}, Halted: true}, err
		}
		return Reply{}, err
	}
	return Reply{Lines: []string{prb}}, nil
}

func (d *Dispatcher) handleG32(cmd Command) (Reply, error) {
	if err := d.Geo.RequireClean(); err != nil {
		// Dirty geometry does not refuse G32 itself: G32 IS the calibration
		// pair that clears dirty. RequireClean here documents the gate for
		// entry points other than G32 (spec §4.D); G32 proceeds regardless.
		_ = err
	}

	target := cmd.get('I', 0.03)
	probeRadius := cmd.get('J', d.ProbeRadius)

	etCfg := calibrate.DefaultEndstopTrimConfig(probeRadius)
	etCfg.Target = target
	etCfg.Keep = cmd.get('K', 0) != 0

	drCfg := calibrate.DefaultDeltaRadiusConfig(probeRadius)
	drCfg.Target = target

	opts := calibrate.AutoCalibrateOptions{
		SkipEndstops: cmd.get('R', 0) != 0,
		SkipRadius:   cmd.get('E', 0) != 0,
	}

	res, err := calibrate.AutoCalibrate(d.probeAdapter(), d.Geo, etCfg, drCfg, opts, d.Log)
	if err != nil {
		return Reply{}, err
	}

	lines := []string{}
	if res.Endstop != nil {
		lines = append(lines, fmt.Sprintf("[ES] deviation=%.4f iterations=%d", res.Endstop.Deviation, res.Endstop.Iterations))
	}
	if res.Radius != nil {
		lines = append(lines, fmt.Sprintf("[DR] delta_radius=%.4f iterations=%d", res.Radius.DeltaRadius, res.Radius.Iterations))
	}
	return Reply{Lines: lines}, nil
}

func (d *Dispatcher) handleG31(cmd Command) (Reply, error) {
	probeRadius := cmd.get('J', d.ProbeRadius)
	m, err := calibrate.AcquireDepthMap(d.probeAdapter(), probeRadius)
	if err != nil {
		return Reply{}, err
	}
	best, worst := m.BestWorst()
	return Reply{Lines: []string{fmt.Sprintf("[DM] origin=%.3f best=%.4f worst=%.4f", m.OriginMM, best, worst)}}, nil
}

func (d *Dispatcher) handleG29(cmd Command) (Reply, error) {
	samples := int(cmd.get('S', 10))
	if samples > 30 {
		return Reply{}, calerr.Config("G29 sample count exceeds 30")
	}

	cfg := calibrate.DefaultRepeatabilityConfig(d.StepsPerMM)
	cfg.Samples = samples
	cfg.DisableEccentricity = cmd.get('E', 0) != 0

	res, err := calibrate.RunRepeatability(d.stepProbeAdapter(), cfg, d.Log)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Lines: []string{fmt.Sprintf("[RT] mean=%.4f stddev=%.4f range=%.4f class=%s", res.Mean, res.StdDev, res.Range, res.Classification)}}, nil
}

func (d *Dispatcher) handleM119() (Reply, error) {
	if d.Pin == nil {
		return Reply{Lines: []string{"probe: open"}}, nil
	}
	active, err := d.Pin.Read()
	if err != nil {
		return Reply{}, err
	}
	state := "open"
	if active {
		state = "TRIGGERED"
	}
	return Reply{Lines: []string{"probe: " + state}}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// probeAdapter adapts probectl.Controller to calibrate.Prober, using the
// dispatcher's configured probe feedrate and steps-per-mm.
type probeAdapter struct {
	c        *probectl.Controller
	feedrate float64
	stepsPerMM float64
}

func (p probeAdapter) ProbeDistance(x, y float64) (float64, error) {
	return p.c.ProbeDistance(x, y, p.feedrate, p.stepsPerMM)
}
func (p probeAdapter) FastMove(x, y float64) error {
	return p.c.FastMove(x, y)
}

func (d *Dispatcher) newProbeAdapter() probeAdapter {
	feedrate := d.ProbeFeedrate
	if feedrate <= 0 {
		feedrate = 5
	}
	return probeAdapter{c: d.Probe, feedrate: feedrate, stepsPerMM: d.StepsPerMM}
}

func (d *Dispatcher) probeAdapter() calibrate.Prober {
	return d.newProbeAdapter()
}

type stepProbeAdapter struct {
	probeAdapter
}

func (p stepProbeAdapter) ProbeAtSteps(x, y float64) (int64, error) {
	return p.c.ProbeAt(x, y, p.feedrate)
}

func (d *Dispatcher) stepProbeAdapter() calibrate.StepProber {
	return stepProbeAdapter{probeAdapter: d.newProbeAdapter()}
}
