package model

import (
	"fmt"
	"time"
)

// Grid is a fixed W x H matrix of cell states, indexed by (x, y) and stored
// row-major.
type Grid struct {
	w, h  int
	cells []LedState
}

func NewGrid(w, h int) *Grid {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Grid{w: w, h: h, cells: make([]LedState, w*h)}
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.w && y < g.h
}

// At returns the state at (x, y); coordinates outside the grid read as unlit.
func (g *Grid) At(x, y int) LedState {
	if !g.Contains(x, y) {
		return LedState{}
	}
	return g.cells[y*g.w+x]
}

func (g *Grid) Set(x, y int, s LedState) error {
	if !g.Contains(x, y) {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrInvalidDim, x, y, g.w, g.h)
	}
	g.cells[y*g.w+x] = s
	return nil
}

// Reset returns (x, y) to the default unlit state.
func (g *Grid) Reset(x, y int) error {
	return g.Set(x, y, LedState{})
}

func (g *Grid) Fill(s LedState) {
	for i := range g.cells {
		g.cells[i] = s
	}
}

func (g *Grid) Clone() *Grid {
	c := &Grid{w: g.w, h: g.h, cells: make([]LedState, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Rows copies the grid out as H rows of W states.
func (g *Grid) Rows() [][]LedState {
	rows := make([][]LedState, g.h)
	for y := range rows {
		rows[y] = make([]LedState, g.w)
		copy(rows[y], g.cells[y*g.w:(y+1)*g.w])
	}
	return rows
}

// Snapshot writes the effective color of every cell at time t into dst,
// row-major, growing dst when needed.
func (g *Grid) Snapshot(dst []LedColor, t time.Duration) []LedColor {
	if cap(dst) < len(g.cells) {
		dst = make([]LedColor, len(g.cells))
	}
	dst = dst[:len(g.cells)]
	for i, s := range g.cells {
		dst[i] = s.EffectiveColor(t)
	}
	return dst
}
