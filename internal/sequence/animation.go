// Package sequence holds frame-based animations and the engine that advances
// them against the grid once per render cycle.
package sequence

import (
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/muxmatrix/internal/model"
)

var (
	ErrNoFrames = errors.New("animation has no frames")
	// ErrFrameNotStarted is returned when expiry is asked of a frame that was
	// never visited.
	ErrFrameNotStarted = errors.New("frame has no start time")
)

// Frame is a set of cell assignments shown for Duration.
type Frame struct {
	Duration   time.Duration
	Cells      []model.Cell
	ResetAfter bool // clear the cells once the frame is left

	start   time.Time
	started bool
}

func NewFrame(d time.Duration, cells []model.Cell, resetAfter bool) Frame {
	return Frame{Duration: d, Cells: cells, ResetAfter: resetAfter}
}

// Expired reports whether now is at or past start+Duration.
func (f *Frame) Expired(now time.Time) (bool, error) {
	if !f.started {
		return false, ErrFrameNotStarted
	}
	return !now.Before(f.start.Add(f.Duration)), nil
}

func (f *Frame) Started() bool { return f.started }

func (f *Frame) begin(now time.Time) {
	f.start = now
	f.started = true
}

func (f *Frame) rewind() {
	f.start = time.Time{}
	f.started = false
}

// Animation plays its frames in order. Loop replays forever; otherwise the
// sequence is replayed Repeats more times. KeepLast leaves the final frame on
// the grid once the animation is removed.
type Animation struct {
	Loop     bool
	Repeats  int
	KeepLast bool

	frames   []Frame
	active   int
	finished bool
}

func New(loop bool, frames []Frame, repeats int, keepLast bool) (*Animation, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if repeats < 0 {
		return nil, fmt.Errorf("negative repeat count %d", repeats)
	}
	for i, f := range frames {
		if f.Duration < 0 {
			return nil, fmt.Errorf("frame %d: negative duration %s", i, f.Duration)
		}
		for _, c := range f.Cells {
			if err := c.State.Validate(); err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		}
	}
	a := &Animation{Loop: loop, Repeats: repeats, KeepLast: keepLast}
	a.frames = make([]Frame, len(frames))
	for i, f := range frames {
		f.Cells = model.CopyCells(f.Cells)
		f.rewind()
		a.frames[i] = f
	}
	return a, nil
}

// Validate checks every cell against a w x h grid.
func (a *Animation) Validate(w, h int) error {
	for i, f := range a.frames {
		for _, c := range f.Cells {
			if c.X < 0 || c.Y < 0 || c.X >= w || c.Y >= h {
				return fmt.Errorf("frame %d: %w: (%d,%d) outside %dx%d", i, model.ErrInvalidDim, c.X, c.Y, w, h)
			}
			if err := c.State.Validate(); err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
		}
	}
	return nil
}

// Clone returns an independent copy, including playback position.
func (a *Animation) Clone() *Animation {
	c := *a
	c.frames = make([]Frame, len(a.frames))
	for i, f := range a.frames {
		f.Cells = model.CopyCells(f.Cells)
		c.frames[i] = f
	}
	return &c
}

func (a *Animation) Frames() []Frame  { return a.frames }
func (a *Animation) ActiveFrame() int { return a.active }
func (a *Animation) Finished() bool   { return a.finished }

func (a *Animation) last() *Frame {
	return &a.frames[len(a.frames)-1]
}

// rearm rewinds to the first frame for another pass.
func (a *Animation) rearm() {
	a.active = 0
	for i := range a.frames {
		a.frames[i].rewind()
	}
	if a.Repeats > 0 {
		a.Repeats--
	}
	a.finished = false
}
