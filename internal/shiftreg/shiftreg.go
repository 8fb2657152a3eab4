// Package shiftreg drives a serial-in parallel-out shift register
// (74HC595 style) holding one row of 3-bit cells.
package shiftreg

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/line"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

// DefaultSettle is the minimum time a level is held before the next change.
const DefaultSettle = 100 * time.Nanosecond

// Pins numbers the five control lines.
type Pins struct {
	SerIn int // serial data, active high
	SrClk int // shift clock, rising edge
	RClk  int // storage clock, rising edge
	SrClr int // shift register clear, active low
	OE    int // output enable, active low
}

// Register is one shift register chain. It is not safe for concurrent use.
type Register struct {
	serin, srclk, rclk, srclr, oe line.Line

	wait   timing.Waiter
	settle time.Duration
	err    error
}

// New acquires the lines, clears both internal registers and leaves the
// outputs enabled with all bits low.
func New(p Pins, lines line.Provider, w timing.Waiter, settle time.Duration) (*Register, error) {
	if w == nil {
		w = timing.Default
	}
	r := &Register{wait: w, settle: settle}

	for _, a := range []struct {
		name string
		pin  int
		dst  *line.Line
	}{
		{"serin", p.SerIn, &r.serin},
		{"srclk", p.SrClk, &r.srclk},
		{"rclk", p.RClk, &r.rclk},
		{"srclr", p.SrClr, &r.srclr},
		{"oe", p.OE, &r.oe},
	} {
		l, err := lines.Acquire(a.pin)
		if err != nil {
			return nil, fmt.Errorf("shift register %s: %w", a.name, err)
		}
		*a.dst = l
	}

	r.set(r.srclr, gpio.High)
	r.set(r.srclr, gpio.Low)
	r.set(r.rclk, gpio.High)
	r.set(r.rclk, gpio.Low)

	r.out(r.serin, gpio.Low)
	r.out(r.srclk, gpio.Low)
	r.out(r.rclk, gpio.Low)
	r.out(r.srclr, gpio.High)
	r.out(r.oe, gpio.Low)

	if r.err != nil {
		return nil, fmt.Errorf("shift register init: %w", r.err)
	}
	return r, nil
}

// Enable turns the outputs on. One settle unit.
func (r *Register) Enable() {
	r.set(r.oe, gpio.Low)
}

// Disable turns the outputs off without touching the stored bits. One settle unit.
func (r *Register) Disable() {
	r.set(r.oe, gpio.High)
}

// Push copies the shift stage to the output stage. Two settle units.
func (r *Register) Push() {
	r.set(r.rclk, gpio.High)
	r.set(r.rclk, gpio.Low)
}

// ShiftColor shifts the three color bits in, red first. Nine settle units.
func (r *Register) ShiftColor(c model.LedColor) {
	for i := 0; i < 3; i++ {
		r.shift(c.Bit(i))
	}
}

// Clear empties the shift stage. Two settle units.
func (r *Register) Clear() {
	r.set(r.srclr, gpio.Low)
	r.set(r.srclr, gpio.High)
}

// Err returns the first line error seen since New.
func (r *Register) Err() error {
	return r.err
}

func (r *Register) shift(bit bool) {
	r.set(r.serin, gpio.Level(bit))
	r.set(r.srclk, gpio.High)
	r.set(r.srclk, gpio.Low)
}

func (r *Register) set(l line.Line, v gpio.Level) {
	r.out(l, v)
	r.wait.Wait(r.settle)
}

func (r *Register) out(l line.Line, v gpio.Level) {
	if err := l.Out(v); err != nil && r.err == nil {
		r.err = err
	}
}
