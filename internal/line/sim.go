package line

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Sim backs every pin with an in-memory gpiotest.Pin. It is used for dry
// runs on hosts without GPIO and in tests.
type Sim struct {
	mu   sync.Mutex
	pins map[int]*gpiotest.Pin
}

func NewSim() *Sim {
	return &Sim{pins: map[int]*gpiotest.Pin{}}
}

func (s *Sim) Acquire(pin int) (Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[pin]; ok {
		return nil, fmt.Errorf("sim gpio %d: %w", pin, ErrBusy)
	}
	p := &gpiotest.Pin{N: fmt.Sprintf("GPIO%d", pin), Num: pin}
	if err := p.Out(gpio.Low); err != nil {
		return nil, err
	}
	s.pins[pin] = p
	return p, nil
}

// Pin returns the simulated pin, or nil when it was never acquired.
func (s *Sim) Pin(n int) *gpiotest.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[n]
}

// Level reads a simulated pin; unknown pins read low.
func (s *Sim) Level(n int) gpio.Level {
	p := s.Pin(n)
	if p == nil {
		return gpio.Low
	}
	return p.Read()
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := range s.pins {
		delete(s.pins, n)
	}
	return nil
}
