// Package decoder drives a 3-to-8 line decoder with latch enable
// (74HC238 style) that selects the active column.
package decoder

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/line"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

// Outputs is the number of decoder outputs, Y0..Y7.
const Outputs = 8

// Address selects one decoder output. Arithmetic wraps around: Y7+1 is Y0.
type Address uint8

// AddressOf clamps n into 0..7.
func AddressOf(n int) Address {
	switch {
	case n < 0:
		return 0
	case n >= Outputs:
		return Outputs - 1
	}
	return Address(n)
}

func (a Address) Add(n int) Address {
	v := (int(a) + n) % Outputs
	if v < 0 {
		v += Outputs
	}
	return Address(v)
}

func (a Address) Sub(n int) Address {
	return a.Add(-(n % Outputs))
}

func (a Address) String() string {
	return fmt.Sprintf("Y%d", uint8(a))
}

type Pins struct {
	A0, A1, A2 int // address, A0 is the low bit
	LE         int // latch enable, high holds the current output
}

// Decoder is not safe for concurrent use.
type Decoder struct {
	addr [3]line.Line
	le   line.Line
	cur  Address

	wait   timing.Waiter
	settle time.Duration
	err    error
}

// New acquires the lines and drives them all low, selecting Y0 unlatched.
func New(p Pins, lines line.Provider, w timing.Waiter, settle time.Duration) (*Decoder, error) {
	if w == nil {
		w = timing.Default
	}
	d := &Decoder{wait: w, settle: settle}

	for i, pin := range []int{p.A0, p.A1, p.A2} {
		l, err := lines.Acquire(pin)
		if err != nil {
			return nil, fmt.Errorf("decoder a%d: %w", i, err)
		}
		d.addr[i] = l
	}
	l, err := lines.Acquire(p.LE)
	if err != nil {
		return nil, fmt.Errorf("decoder le: %w", err)
	}
	d.le = l

	for _, l := range d.addr {
		d.out(l, gpio.Low)
	}
	d.out(d.le, gpio.Low)
	if d.err != nil {
		return nil, fmt.Errorf("decoder init: %w", d.err)
	}
	return d, nil
}

// Set writes the address lines. One settle unit.
func (d *Decoder) Set(a Address) {
	a = a % Outputs
	for i, l := range d.addr {
		d.out(l, gpio.Level((a>>uint(i))&1 == 1))
	}
	d.cur = a
	d.wait.Wait(d.settle)
}

func (d *Decoder) Next() { d.Set(d.cur.Add(1)) }
func (d *Decoder) Prev() { d.Set(d.cur.Sub(1)) }

func (d *Decoder) Current() Address { return d.cur }

// LatchOn holds the current output while the address lines change. One settle unit.
func (d *Decoder) LatchOn() {
	d.out(d.le, gpio.High)
	d.wait.Wait(d.settle)
}

// LatchOff makes the output follow the address lines again. One settle unit.
func (d *Decoder) LatchOff() {
	d.out(d.le, gpio.Low)
	d.wait.Wait(d.settle)
}

// Err returns the first line error seen since New.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) out(l line.Line, v gpio.Level) {
	if err := l.Out(v); err != nil && d.err == nil {
		d.err = err
	}
}
