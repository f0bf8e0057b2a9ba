package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDriverDefaultLow(t *testing.T) {
	d := NewMockDriver(nil)
	require.NoError(t, d.SetupPin(4, Input))
	level, err := d.ReadPin(4)
	require.NoError(t, err)
	assert.Equal(t, Low, level)
}

func TestMockDriverWriteThenRead(t *testing.T) {
	d := NewMockDriver(nil)
	require.NoError(t, d.WritePin(5, High))
	level, err := d.ReadPin(5)
	require.NoError(t, err)
	assert.Equal(t, High, level)
}

func TestMockDriverReadFunc(t *testing.T) {
	d := NewMockDriver(nil)
	triggered := false
	d.SetReadFunc(7, func() Level {
		if triggered {
			return High
		}
		return Low
	})

	level, _ := d.ReadPin(7)
	assert.Equal(t, Low, level)

	triggered = true
	level, _ = d.ReadPin(7)
	assert.Equal(t, High, level)
}
