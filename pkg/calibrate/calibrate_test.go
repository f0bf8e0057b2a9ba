package calibrate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacal/pkg/geometry"
	"deltacal/pkg/kinematics"
)

func testDK(t *testing.T) *kinematics.DeltaKinematics {
	t.Helper()
	dk, err := kinematics.NewDeltaKinematics(kinematics.DeltaConfig{
		Radius:      140,
		ArmLengths:  []float64{290, 290, 290},
		Endstops:    []float64{350, 350, 350},
		MinZ:        0,
		MaxVelocity: 300,
		MaxAccel:    3000,
	})
	require.NoError(t, err)
	return dk
}

// levelBedProber simulates a perfectly flat, perfectly level bed: probed
// depth is always the same constant regardless of XY or trim.
type levelBedProber struct {
	depth float64
}

func (p *levelBedProber) ProbeDistance(x, y float64) (float64, error) { return p.depth, nil }
func (p *levelBedProber) FastMove(x, y float64) error                 { return nil }

func TestRunEndstopTrimConvergesImmediatelyOnLevelBed(t *testing.T) {
	geo := geometry.New(testDK(t))
	prober := &levelBedProber{depth: 5.0}
	cfg := DefaultEndstopTrimConfig(100)

	res, err := RunEndstopTrim(prober, geo, cfg, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	for _, tr := range res.Trim {
		assert.LessOrEqual(t, tr, 0.0)
	}
}

// tiltedBedProber tilts probed depth linearly with X, simulating an
// uncalibrated tower. At each tower-base test point (probe radius 100) the
// depth also follows that tower's current trim, so trim corrections show up
// in the next probe.
type tiltedBedProber struct {
	slope float64
	geo   *geometry.Facade
}

func (p *tiltedBedProber) ProbeDistance(x, y float64) (float64, error) {
	d := 5.0 + p.slope*x
	for i, pt := range testPoints(100) {
		if math.Hypot(x-pt[0], y-pt[1]) < 1e-6 {
			d += p.geo.Trim(i)
		}
	}
	return d, nil
}
func (p *tiltedBedProber) FastMove(x, y float64) error { return nil }

func TestRunEndstopTrimConvergesOnTiltedBed(t *testing.T) {
	geo := geometry.New(testDK(t))
	prober := &tiltedBedProber{slope: 0.01, geo: geo}
	cfg := DefaultEndstopTrimConfig(100)

	res, err := RunEndstopTrim(prober, geo, cfg, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Deviation, cfg.Target)
}

// bowlProber simulates a bowl-shaped surface: center is `depression` mm
// deeper than the tower-base rim at delta radius r0. Each mm of delta radius
// above r0 lifts the center by 0.4 mm, so a 2.5x correction flattens it.
type bowlProber struct {
	depression float64
	geo        *geometry.Facade
	r0         float64
}

func (p *bowlProber) ProbeDistance(x, y float64) (float64, error) {
	if x == 0 && y == 0 {
		r, err := p.geo.Get(geometry.DeltaRadius)
		if err != nil {
			return 0, err
		}
		return 5.0 + p.depression - (r-p.r0)*0.4, nil
	}
	return 5.0, nil
}
func (p *bowlProber) FastMove(x, y float64) error { return nil }

func TestRunDeltaRadiusRaisesRadiusOnBowlSurface(t *testing.T) {
	geo := geometry.New(testDK(t))
	before, err := geo.Get(geometry.DeltaRadius)
	require.NoError(t, err)

	prober := &bowlProber{depression: 0.5, geo: geo, r0: before}
	cfg := DefaultDeltaRadiusConfig(100)

	res, err := RunDeltaRadius(prober, geo, cfg, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Greater(t, res.DeltaRadius, before)
	assert.LessOrEqual(t, res.Iterations, 4)
}

func TestAutoCalibrateClearsDirtyFlag(t *testing.T) {
	geo := geometry.New(testDK(t))
	prober := &levelBedProber{depth: 5.0}

	_, err := AutoCalibrate(prober, geo, DefaultEndstopTrimConfig(100), DefaultDeltaRadiusConfig(100), AutoCalibrateOptions{}, nil)
	require.NoError(t, err)
	assert.False(t, geo.Dirty())
}

func TestAutoCalibrateSkipFlags(t *testing.T) {
	geo := geometry.New(testDK(t))
	prober := &levelBedProber{depth: 5.0}

	res, err := AutoCalibrate(prober, geo, DefaultEndstopTrimConfig(100), DefaultDeltaRadiusConfig(100), AutoCalibrateOptions{SkipEndstops: true, SkipRadius: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Endstop)
	assert.Nil(t, res.Radius)
}

func TestTwelvePointsCount(t *testing.T) {
	pts := TwelvePoints(100)
	assert.Len(t, pts, 12)
	for _, p := range pts[:3] {
		mag := math.Hypot(p[0], p[1])
		assert.InDelta(t, 100, mag, 1e-6)
	}
}

func TestAcquireDepthMapUsesOriginRelativeDeviation(t *testing.T) {
	prober := &levelBedProber{depth: 5.0}
	m, err := AcquireDepthMap(prober, 100)
	require.NoError(t, err)
	for _, d := range m.Points {
		assert.InDelta(t, 0, d, 1e-9)
	}
}

type stepProber struct {
	*levelBedProber
	stepsPerMM float64
	noise      []int64
	i          int
}

func (p *stepProber) ProbeAtSteps(x, y float64) (int64, error) {
	base := int64(p.depth * p.stepsPerMM)
	if len(p.noise) > 0 {
		base += p.noise[p.i%len(p.noise)]
		p.i++
	}
	return base, nil
}

func TestRunRepeatabilityClassifiesVeryGoodOnCleanBed(t *testing.T) {
	prober := &stepProber{levelBedProber: &levelBedProber{depth: 5.0}, stepsPerMM: 100}
	cfg := DefaultRepeatabilityConfig(100)
	cfg.Samples = 5

	res, err := RunRepeatability(prober, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, VeryGood, res.Classification)
	assert.InDelta(t, 0, res.Range, 1e-9)
}

func TestRunRepeatabilityWithNoiseRangeWithinFourSteps(t *testing.T) {
	prober := &stepProber{levelBedProber: &levelBedProber{depth: 5.0}, stepsPerMM: 100, noise: []int64{-2, 0, 2, -1, 1}}
	cfg := DefaultRepeatabilityConfig(100)
	cfg.Samples = 5
	cfg.DisableEccentricity = true

	res, err := RunRepeatability(prober, cfg, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Range, 0.04)
}

func TestRunRepeatabilityRejectsMisconfiguredHeight(t *testing.T) {
	prober := &stepProber{levelBedProber: &levelBedProber{depth: 600.0}, stepsPerMM: 100}
	cfg := DefaultRepeatabilityConfig(100)
	cfg.Samples = 1
	cfg.MaxSteps = 50000

	_, err := RunRepeatability(prober, cfg, nil)
	require.Error(t, err)
}

func TestClassifyThresholds(t *testing.T) {
	assert.Equal(t, VeryGood, Classify(0.01))
	assert.Equal(t, Average, Classify(0.02))
	assert.Equal(t, Borderline, Classify(0.035))
	assert.Equal(t, Unusable, Classify(0.1))
}

func TestRunSegmentedLine(t *testing.T) {
	prober := &levelBedProber{depth: 5.0}
	res, err := RunSegmentedLine(prober, [2]float64{-100, 0}, [2]float64{100, 0}, 4)
	require.NoError(t, err)
	assert.Len(t, res.Line, 5)
	assert.InDelta(t, 5.0, res.PerpPositive, 1e-9)
}

type homingProber struct {
	*levelBedProber
	homed int
}

func (p *homingProber) HomeToTop() error          { p.homed++; return nil }
func (p *homingProber) MoveDownRelative(mm float64) error { return nil }

type fakeGamma struct {
	value float64
	set   bool
}

func (g *fakeGamma) SetGammaMax(mm float64) error {
	g.value = mm
	g.set = true
	return nil
}

func TestFindBedCenterHeightWritesGamma(t *testing.T) {
	prober := &homingProber{levelBedProber: &levelBedProber{depth: 5.0}}
	gamma := &fakeGamma{}

	res, err := FindBedCenterHeight(prober, 5.0, 0.5, gamma)
	require.NoError(t, err)
	assert.Equal(t, 2, prober.homed)
	assert.True(t, gamma.set)
	assert.InDelta(t, res.BedHeight, gamma.value, 1e-9)
}

func TestHeuristicLoopNoAnalyzeIsNoOp(t *testing.T) {
	geo := geometry.New(testDK(t))
	prober := &levelBedProber{depth: 5.0}
	loop := HeuristicLoop{}

	before, _ := geo.Get(geometry.DeltaRadius)
	_, err := loop.Run(prober, geo, 100, 10, 0.05)
	require.NoError(t, err)
	after, _ := geo.Get(geometry.DeltaRadius)
	assert.Equal(t, before, after)
}
