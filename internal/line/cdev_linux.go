//go:build linux

package line

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
)

// Cdev requests lines from the GPIO character device (gpiochipN).
type Cdev struct {
	chip  string
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

func NewCdev(chip string) (*Cdev, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	return &Cdev{chip: chip, lines: map[int]*gpiocdev.Line{}}, nil
}

func (c *Cdev) Acquire(pin int) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lines[pin]; ok {
		return nil, fmt.Errorf("%s line %d: %w", c.chip, pin, ErrBusy)
	}
	l, err := gpiocdev.RequestLine(c.chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("muxmatrix"))
	if err != nil {
		return nil, fmt.Errorf("%s line %d: %w", c.chip, pin, err)
	}
	c.lines[pin] = l
	return cdevLine{l}, nil
}

func (c *Cdev) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for n, l := range c.lines {
		if err := l.SetValue(0); err != nil && first == nil {
			first = err
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.lines, n)
	}
	return first
}

type cdevLine struct {
	l *gpiocdev.Line
}

func (c cdevLine) Out(v gpio.Level) error {
	if v == gpio.High {
		return c.l.SetValue(1)
	}
	return c.l.SetValue(0)
}
