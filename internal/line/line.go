// Package line provides the single-bit output lines that drive the shift
// register and the column decoder.
package line

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
)

var (
	ErrUnsupported = errors.New("line backend not supported on this platform")
	ErrBusy        = errors.New("line already acquired")
	ErrNotFound    = errors.New("line not found")
)

// Line is an output that can be driven low or high.
type Line interface {
	Out(l gpio.Level) error
}

// Provider hands out lines by pin number and releases them all on Close.
type Provider interface {
	Acquire(pin int) (Line, error)
	Close() error
}

// Open returns the provider for a backend name: "periph", "cdev" or "sim".
// chip is only used by the cdev backend.
func Open(backend, chip string) (Provider, error) {
	switch strings.ToLower(backend) {
	case "periph", "":
		return NewPeriph()
	case "cdev":
		return NewCdev(chip)
	case "sim":
		return NewSim(), nil
	}
	return nil, fmt.Errorf("unknown line backend %q", backend)
}
