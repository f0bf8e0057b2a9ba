package calibrate

import (
	"math"

	"go.uber.org/zap"

	"deltacal/pkg/calerr"
	"deltacal/pkg/geometry"
)

// TwelvePoints returns the comprehensive strategy's fixed 12-point circle
// (spec §4.G): 3 at tower positions, 3 diametrically opposite, 3 midpoints
// between adjacent towers, 3 midpoints between the opposite-tower points.
func TwelvePoints(radius float64) [12][2]float64 {
	towers := testPoints(radius)
	opposite := [3][2]float64{}
	for i, t := range towers {
		opposite[i] = [2]float64{-t[0], -t[1]}
	}

	midAdjacent := func(a, b [2]float64) [2]float64 {
		mid := [2]float64{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		mag := math.Hypot(mid[0], mid[1])
		if mag == 0 {
			return mid
		}
		scale := radius / mag
		return [2]float64{mid[0] * scale, mid[1] * scale}
	}

	adjacentMid := [3][2]float64{
		midAdjacent(towers[0], towers[1]),
		midAdjacent(towers[1], towers[2]),
		midAdjacent(towers[2], towers[0]),
	}
	oppositeMid := [3][2]float64{
		midAdjacent(opposite[0], opposite[1]),
		midAdjacent(opposite[1], opposite[2]),
		midAdjacent(opposite[2], opposite[0]),
	}

	var pts [12][2]float64
	copy(pts[0:3], towers[:])
	copy(pts[3:6], opposite[:])
	copy(pts[6:9], adjacentMid[:])
	copy(pts[9:12], oppositeMid[:])
	return pts
}

// DepthMap is a 12-point depth-map acquisition result (spec §4.G "Depth map
// acquisition"). Depth values are origin_steps - steps at each point, in mm.
type DepthMap struct {
	OriginMM float64
	Points   [12]float64
}

// BestWorst returns the smallest and largest deviation-from-origin in the map.
func (m DepthMap) BestWorst() (best, worst float64) {
	best, worst = m.Points[0], m.Points[0]
	for _, p := range m.Points[1:] {
		if p < best {
			best = p
		}
		if p > worst {
			worst = p
		}
	}
	return best, worst
}

// AcquireDepthMap probes the center and all 12 fixed points, recording each
// point's deviation from the center probe (spec §4.G "Depth map acquisition").
func AcquireDepthMap(prober Prober, probeRadius float64) (DepthMap, error) {
	origin, err := prober.ProbeDistance(0, 0)
	if err != nil {
		return DepthMap{}, err
	}

	pts := TwelvePoints(probeRadius)
	var m DepthMap
	m.OriginMM = origin
	for i, p := range pts {
		d, err := prober.ProbeDistance(p[0], p[1])
		if err != nil {
			return DepthMap{}, err
		}
		m.Points[i] = origin - d
	}
	return m, nil
}

// RepeatabilityConfig configures the probe repeatability test (G29).
type RepeatabilityConfig struct {
	Samples             int  // <= 30
	DisableEccentricity bool
	MaxSteps            int64 // reject samples above this (misconfigured probe height); default 50000
	StepsPerMM          float64
}

// DefaultRepeatabilityConfig matches spec.md's stated defaults.
func DefaultRepeatabilityConfig(stepsPerMM float64) RepeatabilityConfig {
	return RepeatabilityConfig{
		Samples:    10,
		MaxSteps:   50000,
		StepsPerMM: stepsPerMM,
	}
}

// Classification is the qualitative bucket assigned to a repeatability run's
// range, per spec §4.G.
type Classification string

const (
	VeryGood   Classification = "very good"
	Average    Classification = "average"
	Borderline Classification = "borderline"
	Unusable   Classification = "unusable"
)

// Classify buckets a repeatability range (mm) per spec §4.G's thresholds.
func Classify(rangeMM float64) Classification {
	switch {
	case rangeMM < 0.015:
		return VeryGood
	case rangeMM < 0.03:
		return Average
	case rangeMM < 0.04:
		return Borderline
	default:
		return Unusable
	}
}

// RepeatabilityResult reports the outcome of a repeatability test.
type RepeatabilityResult struct {
	Samples        []float64 // mm
	Mean           float64
	StdDev         float64
	Range          float64
	Classification Classification
}

// StepProber additionally exposes raw step counts, needed by the
// repeatability test's misconfiguration guard (spec §4.G "reject samples >
// 50000 steps").
type StepProber interface {
	Prober
	// ProbeAtSteps returns the raw trigger step count at (x,y).
	ProbeAtSteps(x, y float64) (int64, error)
}

// eccentricityExcursion performs the three fast moves to the tower-base
// points (at the hardcoded 10mm radius) and back to origin, intended to
// surface mechanical slop before the next center probe (spec §4.G, §9).
func eccentricityExcursion(prober Prober) error {
	for _, p := range testPoints(eccentricityRadiusMM) {
		if err := prober.FastMove(p[0], p[1]); err != nil {
			return err
		}
	}
	return prober.FastMove(0, 0)
}

// RunRepeatability probes the center N times, optionally excursing to the
// tower-base points before each sample, and classifies the resulting spread
// (spec §4.G "Repeatability test (G29)").
func RunRepeatability(prober StepProber, cfg RepeatabilityConfig, log *zap.SugaredLogger) (RepeatabilityResult, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	n := cfg.Samples
	if n <= 0 {
		n = 1
	}
	if n > 30 {
		n = 30
	}

	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !cfg.DisableEccentricity {
			if err := eccentricityExcursion(prober); err != nil {
				return RepeatabilityResult{}, err
			}
		}

		steps, err := prober.ProbeAtSteps(0, 0)
		if err != nil {
			return RepeatabilityResult{}, err
		}
		if steps > cfg.MaxSteps {
			return RepeatabilityResult{}, calerr.Config("repeatability sample exceeded max step count; check probe height configuration")
		}
		samples = append(samples, float64(steps)/cfg.StepsPerMM)
	}

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	stddev := 0.0
	if len(samples) > 1 {
		stddev = math.Sqrt(variance / float64(len(samples)-1))
	}

	minS, maxS := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}
	rng := maxS - minS

	return RepeatabilityResult{
		Samples:        samples,
		Mean:           mean,
		StdDev:         stddev,
		Range:          rng,
		Classification: Classify(rng),
	}, nil
}

// SegmentedLineResult holds the probed depths along a segmented line, plus
// two perpendicular-offset points (spec §4.G "Segmented-line probe").
type SegmentedLineResult struct {
	Line          []float64 // N+1 depths along a->b
	PerpPositive  float64
	PerpNegative  float64
}

// RunSegmentedLine probes N+1 evenly spaced points from a to b, plus two
// points offset perpendicular to the line by one segment length in each
// direction, for surface analysis along tower-to-opposite lines.
func RunSegmentedLine(prober Prober, a, b [2]float64, segments int) (SegmentedLineResult, error) {
	if segments < 1 {
		segments = 1
	}
	dx := (b[0] - a[0]) / float64(segments)
	dy := (b[1] - a[1]) / float64(segments)

	res := SegmentedLineResult{Line: make([]float64, segments+1)}
	for i := 0; i <= segments; i++ {
		x := a[0] + dx*float64(i)
		y := a[1] + dy*float64(i)
		d, err := prober.ProbeDistance(x, y)
		if err != nil {
			return SegmentedLineResult{}, err
		}
		res.Line[i] = d
	}

	segLen := math.Hypot(dx, dy)
	midX := (a[0] + b[0]) / 2
	midY := (a[1] + b[1]) / 2
	lineLen := math.Hypot(b[0]-a[0], b[1]-a[1])
	var ux, uy float64
	if lineLen > 0 {
		ux, uy = (b[0]-a[0])/lineLen, (b[1]-a[1])/lineLen
	}
	// perpendicular unit vector, rotated +/-90 degrees
	perpX, perpY := -uy, ux

	posD, err := prober.ProbeDistance(midX+perpX*segLen, midY+perpY*segLen)
	if err != nil {
		return SegmentedLineResult{}, err
	}
	negD, err := prober.ProbeDistance(midX-perpX*segLen, midY-perpY*segLen)
	if err != nil {
		return SegmentedLineResult{}, err
	}
	res.PerpPositive = posD
	res.PerpNegative = negD
	return res, nil
}

// BedCenterHeightResult is the outcome of find_bed_center_height.
type BedCenterHeightResult struct {
	ProbeFromHeight       float64
	MMProbeHeightToTrigger float64
	BedHeight             float64
}

// GammaSetter applies the machine's updated maximum Z travel (spec §4.G
// "Update the machine's gamma-max via the G-code interface").
type GammaSetter interface {
	SetGammaMax(mm float64) error
}

// HomingProber additionally exposes homing and coordinated relative moves,
// needed by find_bed_center_height's re-home/reposition sequence.
type HomingProber interface {
	Prober
	HomeToTop() error
	MoveDownRelative(mm float64) error
}

// FindBedCenterHeight runs the lazy, once-per-session bed-center-height
// discovery sequence (spec §4.G): home to top, fast-probe to find how far
// above the configured probe height the physical trigger actually occurs,
// re-home, descend by that offset, slow-probe for the precise trigger-to-mm
// distance, and report the bed height for the caller to write back via
// GammaSetter.
func FindBedCenterHeight(prober HomingProber, configuredProbeHeight, probeOffsetZ float64, gamma GammaSetter) (BedCenterHeightResult, error) {
	if err := prober.HomeToTop(); err != nil {
		return BedCenterHeightResult{}, err
	}

	measured, err := prober.ProbeDistance(0, 0)
	if err != nil {
		return BedCenterHeightResult{}, err
	}
	probeFromHeight := measured - configuredProbeHeight

	if err := prober.HomeToTop(); err != nil {
		return BedCenterHeightResult{}, err
	}
	if err := prober.MoveDownRelative(probeFromHeight); err != nil {
		return BedCenterHeightResult{}, err
	}

	mmPHTT, err := prober.ProbeDistance(0, 0)
	if err != nil {
		return BedCenterHeightResult{}, err
	}

	bedHeight := probeFromHeight + mmPHTT + probeOffsetZ
	if gamma != nil {
		if err := gamma.SetGammaMax(bedHeight); err != nil {
			return BedCenterHeightResult{}, err
		}
	}

	return BedCenterHeightResult{
		ProbeFromHeight:        probeFromHeight,
		MMProbeHeightToTrigger: mmPHTT,
		BedHeight:              bedHeight,
	}, nil
}

// HeuristicStep is a single proposed geometric adjustment from the
// heuristic loop's analysis of a depth map.
type HeuristicStep struct {
	Param geometry.Param
	Delta float64
}

// HeuristicLoop is the open-ended surface heuristic (spec §4.G): acquire a
// depth map, save as previous, and repeatedly analyze it for an adjustment
// to propose. This core ships no adjustment-selection heuristic — Analyze
// is left to the caller to supply, since the spec describes only the loop's
// shape (acquire, propose, re-probe, keep-if-improved), not a concrete
// analysis algorithm.
type HeuristicLoop struct {
	Analyze func(current, previous DepthMap) (HeuristicStep, bool)
}

// Run acquires an initial depth map and iterates up to maxIterations times,
// applying each proposed step only if it reduces both the average deviation
// and does not worsen the worst off-axis point beyond tolerance. With no
// Analyze function configured, Run acquires the initial map and returns
// immediately: it is a documented no-op, not an attempted optimizer.
func (h HeuristicLoop) Run(prober Prober, geo *geometry.Facade, probeRadius float64, maxIterations int, offAxisTolerance float64) (DepthMap, error) {
	current, err := AcquireDepthMap(prober, probeRadius)
	if err != nil {
		return DepthMap{}, err
	}
	if h.Analyze == nil {
		return current, nil
	}

	previous := current
	for iter := 0; iter < maxIterations; iter++ {
		step, ok := h.Analyze(current, previous)
		if !ok {
			break
		}
		v, err := geo.Get(step.Param)
		if err != nil {
			return current, err
		}
		if err := geo.Set(step.Param, v+step.Delta); err != nil {
			return current, err
		}

		candidate, err := AcquireDepthMap(prober, probeRadius)
		if err != nil {
			return current, err
		}

		if avgAbs(candidate.Points[:]) >= avgAbs(current.Points[:]) {
			// Revert: the proposed step made things worse.
			if err := geo.Set(step.Param, v); err != nil {
				return current, err
			}
			break
		}
		_, worst := candidate.BestWorst()
		if math.Abs(worst) > offAxisTolerance {
			if err := geo.Set(step.Param, v); err != nil {
				return current, err
			}
			break
		}

		previous = current
		current = candidate
	}
	return current, nil
}

func avgAbs(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += math.Abs(v)
	}
	return sum / float64(len(vs))
}
