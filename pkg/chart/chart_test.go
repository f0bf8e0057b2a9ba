package chart

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacal/pkg/calibrate"
)

func TestRenderDepthMap(t *testing.T) {
	m := calibrate.DepthMap{OriginMM: 1.234}
	for i := range m.Points {
		m.Points[i] = float64(i) * 0.01
	}

	var buf bytes.Buffer
	require.NoError(t, RenderDepthMap(m, &buf))
	assert.Contains(t, buf.String(), "Depth map")
	assert.Contains(t, buf.String(), "Tower X")
}

func TestRenderRepeatability(t *testing.T) {
	r := calibrate.RepeatabilityResult{
		Samples:        []float64{1.0, 1.01, 0.99, 1.0},
		Mean:           1.0,
		StdDev:         0.008,
		Range:          0.02,
		Classification: calibrate.Average,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRepeatability(r, &buf))
	assert.Contains(t, buf.String(), "Repeatability")
}
