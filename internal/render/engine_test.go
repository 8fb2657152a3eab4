package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/decoder"
	"github.com/coreman2200/muxmatrix/internal/line/linetest"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/shiftreg"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

var (
	rowPins = shiftreg.Pins{SerIn: 24, SrClk: 23, RClk: 18, SrClr: 15, OE: 14}
	colPins = decoder.Pins{A0: 6, A1: 13, A2: 19, LE: 26}
)

// deadlineWaiter records Until deadlines without waiting.
type deadlineWaiter struct {
	deadlines []time.Time
}

func (d *deadlineWaiter) Wait(time.Duration) {}
func (d *deadlineWaiter) Until(t time.Time) { d.deadlines = append(d.deadlines, t) }

type fakeMirror struct {
	shown [][]model.LedColor
}

func (m *fakeMirror) Due(time.Time) bool { return true }
func (m *fakeMirror) Show(w, h int, c []model.LedColor) error {
	m.shown = append(m.shown, append([]model.LedColor(nil), c...))
	return nil
}

func newEngine(t *testing.T, w, h int, refresh float64, wt timing.Waiter) (*Engine, *linetest.Recorder) {
	rec := linetest.New()
	e, err := New(Config{
		Width: w, Height: h, Refresh: refresh,
		Row: rowPins, Column: colPins,
		Lines: rec, Waiter: wt,
	})
	require.NoError(t, err)
	rec.Reset()
	return e, rec
}

func TestTimePerLed(t *testing.T) {
	second := float64(time.Second)
	assert.Equal(t, time.Duration(second/960), TimePerLed(60, 4, 4))
	assert.Equal(t, 10*time.Millisecond, TimePerLed(100, 1, 1))

	e, _ := newEngine(t, 4, 4, 60, &deadlineWaiter{})
	assert.Equal(t, TimePerLed(60, 4, 4), e.TimePerLed())
}

func TestDeadlinesAreCumulative(t *testing.T) {
	dw := &deadlineWaiter{}
	e, _ := newEngine(t, 3, 2, 50, dw)

	start := time.Now()
	require.NoError(t, e.RunOnce(start))
	require.Len(t, dw.deadlines, 6)
	for i, d := range dw.deadlines {
		assert.Equal(t, start.Add(e.TimePerLed()*time.Duration(i+1)), d, "cell %d", i)
	}
}

func TestPassDurationTracksRefresh(t *testing.T) {
	for _, tc := range []struct {
		name    string
		w, h    int
		refresh float64
	}{
		{"2x2@100", 2, 2, 100},
		{"4x4@60", 4, 4, 60},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newEngine(t, tc.w, tc.h, tc.refresh, timing.Spin{})
			pass := e.TimePerLed() * time.Duration(tc.w*tc.h)

			start := time.Now()
			require.NoError(t, e.RunOnce(start))
			took := time.Since(start)
			assert.GreaterOrEqual(t, took, pass)
			assert.Less(t, took, 2*pass+10*time.Millisecond)
		})
	}
}

func TestLateStartDoesNotWait(t *testing.T) {
	e, _ := newEngine(t, 2, 2, 10, timing.Spin{})

	begin := time.Now()
	require.NoError(t, e.RunOnce(begin.Add(-time.Second)))
	assert.Less(t, time.Since(begin), 50*time.Millisecond, "already behind, no waiting")
}

// column is what one column's worth of line activity looked like.
type column struct {
	bits    []bool
	address int
}

func decodeColumns(ev []linetest.Event) []column {
	var (
		out   []column
		cur   column
		data  gpio.Level
		addr  [3]gpio.Level
		latch bool
	)
	for _, e := range ev {
		switch e.Pin {
		case rowPins.SerIn:
			data = e.Level
		case rowPins.SrClk:
			if e.Level == gpio.High {
				cur.bits = append(cur.bits, bool(data))
			}
		case colPins.A0:
			addr[0] = e.Level
		case colPins.A1:
			addr[1] = e.Level
		case colPins.A2:
			addr[2] = e.Level
		case colPins.LE:
			if e.Level == gpio.High {
				latch = true
			} else if latch {
				latch = false
				cur.address = 0
				for i, l := range addr {
					if l {
						cur.address |= 1 << i
					}
				}
			}
		case rowPins.OE:
			if e.Level == gpio.Low {
				out = append(out, cur)
				cur = column{}
			}
		}
	}
	return out
}

func TestRunOnceShiftsEveryColumn(t *testing.T) {
	e, rec := newEngine(t, 4, 3, 1000, &deadlineWaiter{})
	g := e.Grid()
	require.NoError(t, e.Sync(model.All{States: [][]model.LedState{
		{model.Solid(model.Red), model.Solid(model.Off), model.Solid(model.Blue), model.Solid(model.White)},
		{model.Solid(model.Green), model.Solid(model.Green), model.Solid(model.Green), model.Solid(model.Green)},
		{model.Solid(model.Off), model.Solid(model.Off), model.Solid(model.Off), model.Solid(model.Cyan)},
	}}))

	require.NoError(t, e.RunOnce(time.Now()))
	cols := decodeColumns(rec.Events())
	require.Len(t, cols, 3)

	for y, c := range cols {
		assert.Equal(t, y, c.address, "column %d selected in order", y)
		var want []bool
		for x := 0; x < 4; x++ {
			col := g.At(x, y).Color
			want = append(want, col.Bit(0), col.Bit(1), col.Bit(2))
		}
		assert.Equal(t, want, c.bits, "column %d bits", y)
	}
}

func TestColumnSwitchOrder(t *testing.T) {
	e, rec := newEngine(t, 1, 1, 1000, &deadlineWaiter{})
	require.NoError(t, e.RunOnce(time.Now()))

	ev := rec.Events()
	// Everything after the last shift clock is the switch sequence.
	last := 0
	for i, v := range ev {
		if v.Pin == rowPins.SrClk {
			last = i
		}
	}
	var pinsSeen []int
	for _, v := range ev[last+1:] {
		if len(pinsSeen) == 0 || pinsSeen[len(pinsSeen)-1] != v.Pin {
			pinsSeen = append(pinsSeen, v.Pin)
		}
	}
	assert.Equal(t, []int{
		rowPins.OE,
		colPins.LE,
		colPins.A0, colPins.A1, colPins.A2,
		colPins.LE,
		rowPins.RClk,
		rowPins.OE,
	}, pinsSeen)
	assert.Equal(t, gpio.Low, rec.Level(rowPins.OE), "outputs enabled after the pass")
}

func TestBlinkUsesCycleStart(t *testing.T) {
	e, rec := newEngine(t, 1, 1, 1000, &deadlineWaiter{})
	require.NoError(t, e.Sync(model.Single{State: model.Blinking(model.Red, time.Millisecond, 10*time.Millisecond)}))

	require.NoError(t, e.RunOnce(e.epoch.Add(5*time.Millisecond)))
	cols := decodeColumns(rec.Events())
	require.Len(t, cols, 1)
	assert.Equal(t, []bool{false, false, false}, cols[0].bits, "blinked off")

	rec.Reset()
	require.NoError(t, e.RunOnce(e.epoch.Add(10*time.Millisecond)))
	cols = decodeColumns(rec.Events())
	require.Len(t, cols, 1)
	assert.Equal(t, []bool{true, false, false}, cols[0].bits, "lit again")
}

func TestInvalidConfig(t *testing.T) {
	for name, cfg := range map[string]Config{
		"zero width":  {Width: 0, Height: 2, Refresh: 60, Lines: linetest.New()},
		"too tall":    {Width: 2, Height: 9, Refresh: 60, Lines: linetest.New()},
		"no refresh":  {Width: 2, Height: 2, Refresh: 0, Lines: linetest.New()},
		"no provider": {Width: 2, Height: 2, Refresh: 60},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLineInitFailure(t *testing.T) {
	rec := linetest.New()
	rec.RefuseAcquire = map[int]bool{colPins.LE: true}
	_, err := New(Config{Width: 2, Height: 2, Refresh: 60, Row: rowPins, Column: colPins, Lines: rec})
	assert.ErrorIs(t, err, ErrLineInit)
	assert.ErrorIs(t, err, linetest.ErrInjected)
	assert.True(t, rec.Closed())
}

func TestRunOnceReportsLineErrors(t *testing.T) {
	e, rec := newEngine(t, 2, 2, 1000, &deadlineWaiter{})
	rec.FailOut = map[int]bool{colPins.A2: true}
	assert.ErrorIs(t, e.RunOnce(time.Now()), linetest.ErrInjected)
}

func TestCloseLeavesHardwareDark(t *testing.T) {
	e, rec := newEngine(t, 2, 2, 1000, &deadlineWaiter{})
	require.NoError(t, e.Sync(model.Fill(2, 2, model.Solid(model.White))))
	require.NoError(t, e.RunOnce(time.Now()))

	require.NoError(t, e.Close())
	assert.Equal(t, gpio.High, rec.Level(rowPins.OE), "outputs disabled")
	assert.Equal(t, gpio.Low, rec.Level(colPins.A0))
	assert.Equal(t, gpio.Low, rec.Level(colPins.A1))
	assert.Equal(t, gpio.Low, rec.Level(colPins.A2))
	assert.Equal(t, gpio.Low, rec.Level(colPins.LE))
	assert.True(t, rec.Closed())

	n := len(rec.Events())
	require.NoError(t, e.Close())
	assert.Len(t, rec.Events(), n, "second close is a no-op")
}

func TestMirrorReceivesSnapshot(t *testing.T) {
	m := &fakeMirror{}
	rec := linetest.New()
	e, err := New(Config{
		Width: 2, Height: 1, Refresh: 1000,
		Row: rowPins, Column: colPins,
		Lines: rec, Waiter: &deadlineWaiter{}, Mirror: m,
	})
	require.NoError(t, err)
	require.NoError(t, e.Sync(model.Single{X: 1, Y: 0, State: model.Solid(model.Magenta)}))
	require.NoError(t, e.RunOnce(time.Now()))

	require.Len(t, m.shown, 1)
	assert.Equal(t, []model.LedColor{model.Off, model.Magenta}, m.shown[0])
}
