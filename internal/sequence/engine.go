package sequence

import (
	"time"

	"github.com/coreman2200/muxmatrix/internal/model"
)

// Engine advances the active animations in insertion order. Writes from a
// later animation override earlier ones for the same cell within a tick.
type Engine struct {
	active []*Animation
}

func (e *Engine) Add(a *Animation) { e.active = append(e.active, a) }
func (e *Engine) Clear()           { e.active = nil }
func (e *Engine) Len() int         { return len(e.active) }

// Tick advances every animation once and writes the resulting cells to g.
// Cells are assumed to be validated against g.
func (e *Engine) Tick(now time.Time, g *model.Grid) {
	for _, a := range e.active {
		e.step(a, now, g)
	}

	kept := e.active[:0]
	for _, a := range e.active {
		if !a.finished {
			kept = append(kept, a)
			continue
		}
		if a.KeepLast {
			write(g, a.last().Cells)
		}
	}
	for i := len(kept); i < len(e.active); i++ {
		e.active[i] = nil
	}
	e.active = kept
}

func (e *Engine) step(a *Animation, now time.Time, g *model.Grid) {
	if a.active < len(a.frames) {
		f := &a.frames[a.active]
		if !f.started {
			f.begin(now)
			if a.active > 0 && a.frames[a.active-1].ResetAfter {
				reset(g, a.frames[a.active-1].Cells)
			}
			write(g, f.Cells)
		}

		expired, err := f.Expired(now)
		if err != nil {
			panic(err)
		}
		if expired {
			a.active++
		}
	}
	if a.active >= len(a.frames) {
		a.finished = true
	}

	if !a.finished {
		return
	}
	if a.last().ResetAfter {
		reset(g, a.last().Cells)
	}
	if a.Loop || a.Repeats > 0 {
		a.rearm()
	}
}

func write(g *model.Grid, cells []model.Cell) {
	for _, c := range cells {
		_ = g.Set(c.X, c.Y, c.State)
	}
}

func reset(g *model.Grid, cells []model.Cell) {
	for _, c := range cells {
		_ = g.Reset(c.X, c.Y)
	}
}
