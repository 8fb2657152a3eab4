package line

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph resolves lines through the periph.io host drivers. Pins are looked
// up by their number as registered by the host (BCM numbering on a Pi).
type Periph struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO
}

func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{pins: map[int]gpio.PinIO{}}, nil
}

func (p *Periph) Acquire(pin int) (Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pins[pin]; ok {
		return nil, fmt.Errorf("gpio %d: %w", pin, ErrBusy)
	}
	io := gpioreg.ByName(strconv.Itoa(pin))
	if io == nil {
		return nil, fmt.Errorf("gpio %d: %w", pin, ErrNotFound)
	}
	if err := io.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %d: %w", pin, err)
	}
	p.pins[pin] = io
	return io, nil
}

func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for n, io := range p.pins {
		if err := io.Out(gpio.Low); err != nil && first == nil {
			first = err
		}
		if err := io.Halt(); err != nil && first == nil {
			first = err
		}
		delete(p.pins, n)
	}
	return first
}
