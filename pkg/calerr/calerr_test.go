package calerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	e := Overrun("runout exceeded").WithSection("zprobe").WithContext("steps", 120)
	assert.Equal(t, KindOverrun, e.Kind)
	assert.Contains(t, e.Error(), "OVERRUN")
	assert.Contains(t, e.Error(), "zprobe")
	assert.Equal(t, 120, e.Context["steps"])
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("pin read failed")
	e := Wrap(cause, KindState, "probe already triggered")
	assert.Equal(t, cause, e.Unwrap())
	assert.True(t, errors.Is(e, cause))
}

func TestIs(t *testing.T) {
	e := Nonconvergence("endstop trim did not converge")
	assert.True(t, Is(e, KindNonconvergence))
	assert.False(t, Is(e, KindHalted))
	assert.False(t, Is(errors.New("plain"), KindHalted))
}
