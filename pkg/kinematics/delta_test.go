package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeltaConfig() DeltaConfig {
	return DeltaConfig{
		Radius:      140.0,
		ArmLengths:  []float64{290.0, 290.0, 290.0},
		Endstops:    []float64{400.0, 400.0, 400.0},
		PrintRadius: 120.0,
		MinZ:        0,
		MaxVelocity: 300,
		MaxAccel:    3000,
		MaxZVelocity: 20,
		MaxZAccel:    100,
	}
}

func TestNewDeltaKinematicsValidation(t *testing.T) {
	_, err := NewDeltaKinematics(DeltaConfig{Radius: 0})
	assert.Error(t, err)

	cfg := testDeltaConfig()
	cfg.ArmLengths = []float64{10, 290, 290}
	_, err = NewDeltaKinematics(cfg)
	assert.Error(t, err, "arm length must exceed radius")
}

func TestForwardInverseRoundTrip(t *testing.T) {
	dk, err := NewDeltaKinematics(testDeltaConfig())
	require.NoError(t, err)

	cartesian := []float64{10, -5, 50}
	steppers := dk.CalcStepperPosition(cartesian)
	back := dk.CalcPosition(steppers)

	assert.InDelta(t, cartesian[0], back[0], 1e-6)
	assert.InDelta(t, cartesian[1], back[1], 1e-6)
	assert.InDelta(t, cartesian[2], back[2], 1e-6)
}

func TestSetParamForcesRecompute(t *testing.T) {
	dk, err := NewDeltaKinematics(testDeltaConfig())
	require.NoError(t, err)

	before := dk.Towers()[2][1]
	ok := dk.SetParam(ParamDeltaRadius, 145.0)
	require.True(t, ok)
	after := dk.Towers()[2][1]

	assert.NotEqual(t, before, after, "tower position must change after geometry mutation")

	v, ok := dk.GetParam(ParamDeltaRadius)
	require.True(t, ok)
	assert.Equal(t, 145.0, v)
}

func TestSetParamUnknown(t *testing.T) {
	dk, err := NewDeltaKinematics(testDeltaConfig())
	require.NoError(t, err)
	assert.False(t, dk.SetParam('Q', 1.0))
	_, ok := dk.GetParam('Q')
	assert.False(t, ok)
}

func TestNormalizeTrim(t *testing.T) {
	dk, err := NewDeltaKinematics(testDeltaConfig())
	require.NoError(t, err)

	dk.SetTrim(0, -0.5)
	dk.SetTrim(1, 0.2)
	dk.SetTrim(2, -1.0)

	dk.NormalizeTrim()

	maxTrim := math.Inf(-1)
	for i := 0; i < 3; i++ {
		if dk.GetTrim(i) > maxTrim {
			maxTrim = dk.GetTrim(i)
		}
	}
	assert.InDelta(t, 0.0, maxTrim, 1e-9)
}

func TestPerTowerArmOffsetPreservesConfiguredArms(t *testing.T) {
	cfg := testDeltaConfig()
	cfg.ArmLengths = []float64{290.0, 291.0, 289.5}
	dk, err := NewDeltaKinematics(cfg)
	require.NoError(t, err)

	assert.InDelta(t, 290.0, dk.armLengths[0], 1e-9)
	assert.InDelta(t, 291.0, dk.armLengths[1], 1e-9)
	assert.InDelta(t, 289.5, dk.armLengths[2], 1e-9)
}
