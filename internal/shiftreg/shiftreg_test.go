package shiftreg_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/line/linetest"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/shiftreg"
)

var pins = shiftreg.Pins{SerIn: 24, SrClk: 23, RClk: 18, SrClr: 15, OE: 14}

// countWaiter counts settle waits instead of spending them.
type countWaiter struct{ n int }

func (c *countWaiter) Wait(d time.Duration) { c.n++ }
func (c *countWaiter) Until(t time.Time) {}

func (c *countWaiter) take() int {
	n := c.n
	c.n = 0
	return n
}

func newRegister(t *testing.T) (*shiftreg.Register, *linetest.Recorder, *countWaiter) {
	rec := linetest.New()
	w := &countWaiter{}
	r, err := shiftreg.New(pins, rec, w, shiftreg.DefaultSettle)
	require.NoError(t, err)
	w.take()
	rec.Reset()
	return r, rec, w
}

func TestInitLeavesOutputsEnabledAndCleared(t *testing.T) {
	rec := linetest.New()
	w := &countWaiter{}
	_, err := shiftreg.New(pins, rec, w, shiftreg.DefaultSettle)
	require.NoError(t, err)

	ev := rec.Events()
	require.GreaterOrEqual(t, len(ev), 4)
	assert.Equal(t, []linetest.Event{
		{Pin: pins.SrClr, Level: gpio.High},
		{Pin: pins.SrClr, Level: gpio.Low},
		{Pin: pins.RClk, Level: gpio.High},
		{Pin: pins.RClk, Level: gpio.Low},
	}, ev[:4])

	assert.Equal(t, gpio.Low, rec.Level(pins.SerIn))
	assert.Equal(t, gpio.Low, rec.Level(pins.SrClk))
	assert.Equal(t, gpio.Low, rec.Level(pins.RClk))
	assert.Equal(t, gpio.High, rec.Level(pins.SrClr))
	assert.Equal(t, gpio.Low, rec.Level(pins.OE))
}

func TestShiftColorBitOrder(t *testing.T) {
	for _, c := range []model.LedColor{model.Off, model.Red, model.Yellow, model.Magenta, model.White} {
		t.Run(c.String(), func(t *testing.T) {
			r, rec, w := newRegister(t)
			r.ShiftColor(c)
			assert.Equal(t, 9, w.take(), "nine settle units")
			assert.Equal(t, 3, rec.Pulses(pins.SrClk))

			// The data line level at each rising clock edge is the shifted bit.
			var bits []bool
			data := gpio.Low
			for _, e := range rec.Events() {
				switch {
				case e.Pin == pins.SerIn:
					data = e.Level
				case e.Pin == pins.SrClk && e.Level == gpio.High:
					bits = append(bits, bool(data))
				}
			}
			assert.Equal(t, []bool{c.Bit(0), c.Bit(1), c.Bit(2)}, bits)
		})
	}
}

func TestOperationSettleUnits(t *testing.T) {
	r, rec, w := newRegister(t)

	r.Enable()
	assert.Equal(t, 1, w.take())
	assert.Equal(t, gpio.Low, rec.Level(pins.OE))

	r.Disable()
	assert.Equal(t, 1, w.take())
	assert.Equal(t, gpio.High, rec.Level(pins.OE))

	r.Push()
	assert.Equal(t, 2, w.take())
	assert.Equal(t, 1, rec.Pulses(pins.RClk))

	rec.Reset()
	r.Clear()
	assert.Equal(t, 2, w.take())
	assert.Equal(t, []linetest.Event{
		{Pin: pins.SrClr, Level: gpio.Low},
		{Pin: pins.SrClr, Level: gpio.High},
	}, rec.Events())
}

func TestLineErrorsAreSticky(t *testing.T) {
	r, rec, _ := newRegister(t)
	assert.NoError(t, r.Err())

	rec.FailOut = map[int]bool{pins.OE: true}
	r.Disable()
	r.Enable()
	assert.ErrorIs(t, r.Err(), linetest.ErrInjected)

	rec.FailOut = nil
	r.Push()
	assert.ErrorIs(t, r.Err(), linetest.ErrInjected)
}

func TestAcquireFailure(t *testing.T) {
	rec := linetest.New()
	rec.RefuseAcquire = map[int]bool{pins.RClk: true}
	_, err := shiftreg.New(pins, rec, &countWaiter{}, 0)
	assert.ErrorIs(t, err, linetest.ErrInjected)
}
