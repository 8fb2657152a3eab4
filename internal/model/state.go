package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDim reports a coordinate outside the grid or a matrix of the wrong shape.
	ErrInvalidDim = errors.New("invalid dimensions")
	// ErrBlinkInvariant reports a blink whose on-time exceeds its period.
	ErrBlinkInvariant = errors.New("blink on-time exceeds period")
	// ErrNonSquareRotation reports a rotation requested on a grid with W != H.
	ErrNonSquareRotation = errors.New("rotation requires a square grid")
)

// BlinkInfo describes a periodic blink. The cell is lit for the first On of
// every Period.
type BlinkInfo struct {
	On     time.Duration
	Period time.Duration
}

func (b BlinkInfo) Validate() error {
	if b.Period <= 0 || b.On < 0 {
		return fmt.Errorf("%w: on=%s period=%s", ErrBlinkInvariant, b.On, b.Period)
	}
	if b.On > b.Period {
		return fmt.Errorf("%w: on=%s period=%s", ErrBlinkInvariant, b.On, b.Period)
	}
	return nil
}

// LedState is the stored state of one cell. The zero value is an unlit cell
// without blink.
type LedState struct {
	Color LedColor
	Blink *BlinkInfo
}

func Solid(c LedColor) LedState {
	return LedState{Color: c}
}

func Blinking(c LedColor, on, period time.Duration) LedState {
	return LedState{Color: c, Blink: &BlinkInfo{On: on, Period: period}}
}

// Clone returns s with its own copy of the blink info.
func (s LedState) Clone() LedState {
	if s.Blink != nil {
		b := *s.Blink
		s.Blink = &b
	}
	return s
}

func (s LedState) Validate() error {
	if !s.Color.Valid() {
		return fmt.Errorf("%w: color %d", ErrInvalidDim, s.Color)
	}
	if s.Blink != nil {
		return s.Blink.Validate()
	}
	return nil
}

// EffectiveColor is the color shown at time t, measured from an arbitrary
// fixed epoch.
func (s LedState) EffectiveColor(t time.Duration) LedColor {
	if s.Blink == nil {
		return s.Color
	}
	period := s.Blink.Period.Microseconds()
	if period <= 0 {
		return s.Color
	}
	us := t.Microseconds()
	if us < 0 {
		us = -us
	}
	if us%period > s.Blink.On.Microseconds() {
		return Off
	}
	return s.Color
}

// Cell is one coordinate/state assignment.
type Cell struct {
	X     int
	Y     int
	State LedState
}
