// Package calibrate implements the calibration engine's three cooperating
// strategies (spec §4.E-G): endstop-trim leveling, delta-radius correction,
// and the comprehensive strategy (repeatability test, 12-point depth map,
// segmented-line probe, and the heuristic loop skeleton).
package calibrate

import (
	"math"

	"go.uber.org/zap"

	"deltacal/pkg/calerr"
	"deltacal/pkg/geometry"
)

// Prober is the minimal probing surface the calibration strategies drive.
// A real caller wires this to pkg/probectl.Controller.
type Prober interface {
	// ProbeDistance moves to (x,y) and returns the probed depth in mm.
	ProbeDistance(x, y float64) (float64, error)
	// FastMove issues an uncoordinated fast repositioning move (used for the
	// eccentricity excursion), without probing.
	FastMove(x, y float64) error
}

// eccentricityRadiusMM is the hardcoded excursion radius used by the
// repeatability test's eccentricity check, independent of probe_radius
// (spec §9 "preserve this behavior literally").
const eccentricityRadiusMM = 10.0

// testPoints returns the three tower-base test points on a circle of the
// given radius, per spec §4.E: (±sin60·r, -cos60·r) for the two front
// towers and (0, r) for the rear tower.
func testPoints(radius float64) [3][2]float64 {
	const sin60 = 0.8660254037844386
	const cos60 = 0.5
	return [3][2]float64{
		{-sin60 * radius, -cos60 * radius},
		{sin60 * radius, -cos60 * radius},
		{0, radius},
	}
}

// EndstopTrimConfig configures the endstop-trim strategy.
type EndstopTrimConfig struct {
	ProbeRadius   float64
	Target        float64 // mm, default 0.03
	InitialScale  float64 // default 1.3
	ScaleDecay    float64 // default 0.9
	MaxIterations int     // default 20
	Keep          bool    // if true, iterate from current trim instead of zero
}

// DefaultEndstopTrimConfig matches spec.md's stated defaults.
func DefaultEndstopTrimConfig(probeRadius float64) EndstopTrimConfig {
	return EndstopTrimConfig{
		ProbeRadius:   probeRadius,
		Target:        0.03,
		InitialScale:  1.3,
		ScaleDecay:    0.9,
		MaxIterations: 20,
	}
}

// EndstopTrimResult reports the outcome of an endstop-trim run.
type EndstopTrimResult struct {
	Converged  bool
	Iterations int
	Deviation  float64
	Trim       [3]float64
}

// RunEndstopTrim drives max(depth)-min(depth) across the three tower-base
// points below cfg.Target by iteratively adjusting trim, per spec §4.E.
func RunEndstopTrim(prober Prober, geo *geometry.Facade, cfg EndstopTrimConfig, log *zap.SugaredLogger) (EndstopTrimResult, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	points := testPoints(cfg.ProbeRadius)

	trim := [3]float64{}
	if cfg.Keep {
		for i := 0; i < 3; i++ {
			trim[i] = geo.Trim(i)
		}
	} else {
		for i := 0; i < 3; i++ {
			geo.SetTrim(i, 0)
		}
	}

	scale := cfg.InitialScale
	prevDeviation := math.MaxFloat64

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		depths := [3]float64{}
		for i, p := range points {
			d, err := prober.ProbeDistance(p[0], p[1])
			if err != nil {
				return EndstopTrimResult{}, err
			}
			depths[i] = d
		}

		minD, maxD := depths[0], depths[0]
		for _, d := range depths[1:] {
			if d < minD {
				minD = d
			}
			if d > maxD {
				maxD = d
			}
		}
		deviation := maxD - minD

		if deviation <= cfg.Target {
			geo.NormalizeTrim()
			for i := 0; i < 3; i++ {
				trim[i] = geo.Trim(i)
			}
			return EndstopTrimResult{Converged: true, Iterations: iter + 1, Deviation: deviation, Trim: trim}, nil
		}

		for i := 0; i < 3; i++ {
			adj := (minD - depths[i]) * scale
			geo.SetTrim(i, geo.Trim(i)+adj)
		}

		if deviation >= prevDeviation && scale*0.95 >= 0.9 {
			scale *= cfg.ScaleDecay
		}
		prevDeviation = deviation
	}

	for i := 0; i < 3; i++ {
		trim[i] = geo.Trim(i)
	}
	return EndstopTrimResult{Converged: false, Iterations: cfg.MaxIterations, Deviation: prevDeviation, Trim: trim},
		calerr.Nonconvergence("endstop trim did not converge within the iteration cap")
}

// DeltaRadiusConfig configures the delta-radius strategy.
type DeltaRadiusConfig struct {
	ProbeRadius   float64
	Target        float64 // mm, default 0.03
	Gain          float64 // default 2.5
	MaxIterations int     // default 10
}

// DefaultDeltaRadiusConfig matches spec.md's stated defaults.
func DefaultDeltaRadiusConfig(probeRadius float64) DeltaRadiusConfig {
	return DeltaRadiusConfig{
		ProbeRadius:   probeRadius,
		Target:        0.03,
		Gain:          2.5,
		MaxIterations: 10,
	}
}

// DeltaRadiusResult reports the outcome of a delta-radius run.
type DeltaRadiusResult struct {
	Converged   bool
	Iterations  int
	Deviation   float64
	DeltaRadius float64
}

// RunDeltaRadius drives |center_depth - mean(tower_base_depths)| below
// cfg.Target by iteratively adjusting delta_radius, per spec §4.F.
func RunDeltaRadius(prober Prober, geo *geometry.Facade, cfg DeltaRadiusConfig, log *zap.SugaredLogger) (DeltaRadiusResult, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	points := testPoints(cfg.ProbeRadius)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		centerMM, err := prober.ProbeDistance(0, 0)
		if err != nil {
			return DeltaRadiusResult{}, err
		}

		sum := 0.0
		for _, p := range points {
			d, err := prober.ProbeDistance(p[0], p[1])
			if err != nil {
				return DeltaRadiusResult{}, err
			}
			sum += d
		}
		mean := sum / 3

		d := centerMM - mean
		radius, err := geo.Get(geometry.DeltaRadius)
		if err != nil {
			return DeltaRadiusResult{}, err
		}

		if math.Abs(d) <= cfg.Target {
			return DeltaRadiusResult{Converged: true, Iterations: iter + 1, Deviation: d, DeltaRadius: radius}, nil
		}

		if err := geo.Set(geometry.DeltaRadius, radius+d*cfg.Gain); err != nil {
			return DeltaRadiusResult{}, err
		}
	}

	radius, _ := geo.Get(geometry.DeltaRadius)
	return DeltaRadiusResult{Converged: false, Iterations: cfg.MaxIterations, DeltaRadius: radius},
		calerr.Nonconvergence("delta radius did not converge within the iteration cap")
}

// AutoCalibrateOptions selects which G32 sub-steps to run.
type AutoCalibrateOptions struct {
	SkipEndstops bool // G32 'R' flag
	SkipRadius   bool // G32 'E' flag
}

// AutoCalibrateResult reports the outcome of the G32 compound.
type AutoCalibrateResult struct {
	Endstop *EndstopTrimResult
	Radius  *DeltaRadiusResult
}

// AutoCalibrate runs the G32 compound: endstop-trim strategy, then
// delta-radius strategy, then clears the dirty flag (spec §4.G "G32"). It
// does not check the dirty flag before it starts.
func AutoCalibrate(prober Prober, geo *geometry.Facade, etCfg EndstopTrimConfig, drCfg DeltaRadiusConfig, opts AutoCalibrateOptions, log *zap.SugaredLogger) (AutoCalibrateResult, error) {
	var result AutoCalibrateResult

	if !opts.SkipEndstops {
		r, err := RunEndstopTrim(prober, geo, etCfg, log)
		result.Endstop = &r
		if err != nil {
			return result, err
		}
	}

	if !opts.SkipRadius {
		r, err := RunDeltaRadius(prober, geo, drCfg, log)
		result.Radius = &r
		if err != nil {
			return result, err
		}
	}

	geo.MarkClean()
	return result, nil
}
