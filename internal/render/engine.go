// Package render multiplexes a grid of cells onto the row shift register and
// column decoder, one full pass per call.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/muxmatrix/internal/decoder"
	"github.com/coreman2200/muxmatrix/internal/line"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/shiftreg"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

var (
	ErrInvalidConfig = errors.New("invalid render config")
	ErrLineInit      = errors.New("line init failed")
)

// Mirror receives a copy of the shown colors, row-major, whenever it reports
// itself due.
type Mirror interface {
	Due(now time.Time) bool
	Show(w, h int, colors []model.LedColor) error
}

type Config struct {
	Width   int
	Height  int
	Refresh float64 // full passes per second

	Row    shiftreg.Pins
	Column decoder.Pins

	// Lines is owned by the engine from New on.
	Lines  line.Provider
	Waiter timing.Waiter
	Settle time.Duration
	Mirror Mirror
}

// Engine owns the grid and both drivers. It is not safe for concurrent use;
// a single render goroutine drives it.
type Engine struct {
	w, h  int
	grid  *model.Grid
	row   *shiftreg.Register
	col   *decoder.Decoder
	lines line.Provider
	wait  timing.Waiter

	tpl   time.Duration
	epoch time.Time

	mirror    Mirror
	snap      []model.LedColor
	mirrorErr bool
	closed    bool
}

func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Width < 1 || cfg.Height < 1:
		return nil, fmt.Errorf("%w: %dx%d grid", ErrInvalidConfig, cfg.Width, cfg.Height)
	case cfg.Height > decoder.Outputs:
		return nil, fmt.Errorf("%w: height %d exceeds %d decoder outputs", ErrInvalidConfig, cfg.Height, decoder.Outputs)
	case cfg.Refresh <= 0:
		return nil, fmt.Errorf("%w: refresh rate %g", ErrInvalidConfig, cfg.Refresh)
	case cfg.Lines == nil:
		return nil, fmt.Errorf("%w: no line provider", ErrInvalidConfig)
	}
	if cfg.Waiter == nil {
		cfg.Waiter = timing.Default
	}

	row, err := shiftreg.New(cfg.Row, cfg.Lines, cfg.Waiter, cfg.Settle)
	if err != nil {
		_ = cfg.Lines.Close()
		return nil, fmt.Errorf("%w: %w", ErrLineInit, err)
	}
	col, err := decoder.New(cfg.Column, cfg.Lines, cfg.Waiter, cfg.Settle)
	if err != nil {
		_ = cfg.Lines.Close()
		return nil, fmt.Errorf("%w: %w", ErrLineInit, err)
	}

	e := &Engine{
		w:      cfg.Width,
		h:      cfg.Height,
		grid:   model.NewGrid(cfg.Width, cfg.Height),
		row:    row,
		col:    col,
		lines:  cfg.Lines,
		wait:   cfg.Waiter,
		tpl:    TimePerLed(cfg.Refresh, cfg.Width, cfg.Height),
		epoch:  time.Now(),
		mirror: cfg.Mirror,
	}
	log.Debug().
		Int("width", e.w).
		Int("height", e.h).
		Dur("time_per_led", e.tpl).
		Msg("render engine ready")
	return e, nil
}

// TimePerLed is the slot each cell gets so that a full pass takes 1/refresh.
func TimePerLed(refresh float64, w, h int) time.Duration {
	return time.Duration(float64(time.Second) / (refresh * float64(w) * float64(h)))
}

func (e *Engine) Width() int                { return e.w }
func (e *Engine) Height() int               { return e.h }
func (e *Engine) TimePerLed() time.Duration { return e.tpl }
func (e *Engine) Grid() *model.Grid         { return e.grid }

// Sync applies a grid update.
func (e *Engine) Sync(cmd model.Sync) error {
	return e.grid.Apply(cmd)
}

// RunOnce shows every cell once. Cell i of the pass (row-major) is shifted in
// and then held until cycleStart + (i+1)*TimePerLed, so a late cell shortens
// the following waits instead of delaying the whole pass.
func (e *Engine) RunOnce(cycleStart time.Time) error {
	t := cycleStart.Sub(e.epoch)

	for y := 0; y < e.h; y++ {
		e.row.Clear()
		for x := 0; x < e.w; x++ {
			e.row.ShiftColor(e.grid.At(x, y).EffectiveColor(t))
			e.wait.Until(cycleStart.Add(e.tpl * time.Duration(y*e.w+x+1)))
		}
		// Outputs stay off while the column switches so the old row never
		// lights the new column.
		e.row.Disable()
		e.col.LatchOn()
		e.col.Set(decoder.AddressOf(y))
		e.col.LatchOff()
		e.row.Push()
		e.row.Enable()
	}

	e.showMirror(t)
	return e.Err()
}

// Err returns the first line error from either driver.
func (e *Engine) Err() error {
	if err := e.row.Err(); err != nil {
		return err
	}
	return e.col.Err()
}

// ClearRow empties the row register and turns its outputs off.
func (e *Engine) ClearRow() {
	e.row.Clear()
	e.row.Disable()
}

// Close leaves the hardware dark: outputs off, column 0 selected, an empty
// row pushed. The lines are released afterwards. Close is idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	e.row.Disable()
	e.col.LatchOn()
	e.col.Set(0)
	e.col.LatchOff()
	e.row.Clear()
	e.row.Push()

	err := e.Err()
	if cerr := e.lines.Close(); err == nil {
		err = cerr
	}
	return err
}

func (e *Engine) showMirror(t time.Duration) {
	if e.mirror == nil {
		return
	}
	now := time.Now()
	if !e.mirror.Due(now) {
		return
	}
	e.snap = e.grid.Snapshot(e.snap, t)
	if err := e.mirror.Show(e.w, e.h, e.snap); err != nil {
		if !e.mirrorErr {
			log.Warn().Err(err).Msg("mirror update failed")
		}
		e.mirrorErr = true
		return
	}
	e.mirrorErr = false
}
