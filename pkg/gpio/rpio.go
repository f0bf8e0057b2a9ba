package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	log  *zap.SugaredLogger
	pins map[int]rpio.Pin
}

// NewRPiDriver opens the GPIO memory map and returns a real driver.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiDriver(log *zap.SugaredLogger) (*RPiDriver, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio: failed to open memory map: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{log: log, pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	p := rpio.Pin(pin)
	r.pins[pin] = p
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("gpio: unknown pin mode %d", mode)
	}
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) Close() error {
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}
