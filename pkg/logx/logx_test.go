package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsoleOnly(t *testing.T) {
	log, err := New(Config{Console: true})
	require.NoError(t, err)
	assert.NotNil(t, log)
	log.Infow("calibration session started", "strategy", "endstop-trim")
}

func TestNop(t *testing.T) {
	assert.NotNil(t, Nop())
}
