// Package gpio abstracts the digital pins the calibration core reads
// (probe contact, tower endstops) and optionally drives, behind a small
// interface so the same calibration logic runs against real hardware or a
// simulated rig.
package gpio

import "go.uber.org/zap"

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver is the abstract interface for controlling GPIOs. A real
// implementation talks to hardware (RPiDriver); MockDriver is an in-memory
// implementation for tests.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver is a test/simulation implementation. Each pin's read value is
// produced by an optional per-pin ReadFunc; absent a ReadFunc, the last
// written (or initial Low) value is returned.
type MockDriver struct {
	log   *zap.SugaredLogger
	state map[int]Level
	funcs map[int]func() Level
}

// NewMockDriver creates a MockDriver. log may be nil.
func NewMockDriver(log *zap.SugaredLogger) *MockDriver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &MockDriver{
		log:   log,
		state: make(map[int]Level),
		funcs: make(map[int]func() Level),
	}
}

// SetReadFunc installs a dynamic read source for pin, e.g. a simulated
// probe-contact function driven by commanded actuator position.
func (m *MockDriver) SetReadFunc(pin int, fn func() Level) {
	m.funcs[pin] = fn
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.log.Debugw("gpio setup", "pin", pin, "mode", mode)
	if _, ok := m.state[pin]; !ok {
		m.state[pin] = Low
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.log.Debugw("gpio write", "pin", pin, "level", level)
	m.state[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	if fn, ok := m.funcs[pin]; ok {
		return fn(), nil
	}
	return m.state[pin], nil
}

func (m *MockDriver) Close() error {
	return nil
}
