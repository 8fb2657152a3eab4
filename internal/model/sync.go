package model

import "fmt"

// Rotation is a quarter or half turn about the grid center.
type Rotation uint8

const (
	Clockwise Rotation = iota
	CounterClockwise
	OneEighty
)

func (r Rotation) String() string {
	switch r {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	case OneEighty:
		return "180"
	}
	return fmt.Sprintf("Rotation(%d)", uint8(r))
}

// Sync is a grid update command. The concrete types are Single, Multi, All
// and Rotate.
type Sync interface {
	isSync()
}

// Single sets one cell.
type Single struct {
	X, Y  int
	State LedState
}

// Multi sets several cells in order; a later entry for the same cell wins.
type Multi struct {
	Cells []Cell
}

// All replaces the whole grid. States must hold exactly H rows of W entries.
type All struct {
	States [][]LedState
}

// Rotate turns the grid contents about the center.
type Rotate struct {
	Direction Rotation
}

func (Single) isSync() {}
func (Multi) isSync()  {}
func (All) isSync()    {}
func (Rotate) isSync() {}

// Fill builds an All command painting a w x h grid with one state.
func Fill(w, h int, s LedState) All {
	rows := make([][]LedState, h)
	for y := range rows {
		rows[y] = make([]LedState, w)
		for x := range rows[y] {
			rows[y][x] = s.Clone()
		}
	}
	return All{States: rows}
}

// Validate checks cmd against a w x h grid without touching any grid.
func Validate(cmd Sync, w, h int) error {
	inside := func(x, y int) error {
		if x < 0 || y < 0 || x >= w || y >= h {
			return fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrInvalidDim, x, y, w, h)
		}
		return nil
	}

	switch c := cmd.(type) {
	case Single:
		if err := inside(c.X, c.Y); err != nil {
			return err
		}
		return c.State.Validate()
	case Multi:
		for _, cell := range c.Cells {
			if err := inside(cell.X, cell.Y); err != nil {
				return err
			}
			if err := cell.State.Validate(); err != nil {
				return err
			}
		}
		return nil
	case All:
		if len(c.States) != h {
			return fmt.Errorf("%w: got %d rows, want %d", ErrInvalidDim, len(c.States), h)
		}
		for y, row := range c.States {
			if len(row) != w {
				return fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidDim, y, len(row), w)
			}
			for _, s := range row {
				if err := s.Validate(); err != nil {
					return err
				}
			}
		}
		return nil
	case Rotate:
		if c.Direction > OneEighty {
			return fmt.Errorf("unknown rotation %d", c.Direction)
		}
		if w != h && c.Direction != OneEighty {
			return fmt.Errorf("%w: %dx%d", ErrNonSquareRotation, w, h)
		}
		return nil
	case nil:
		return fmt.Errorf("nil sync command")
	}
	return fmt.Errorf("unsupported sync command %T", cmd)
}

// Apply validates cmd and writes it to the grid. A failed validation leaves
// the grid untouched.
func (g *Grid) Apply(cmd Sync) error {
	if err := Validate(cmd, g.w, g.h); err != nil {
		return err
	}

	switch c := cmd.(type) {
	case Single:
		g.cells[c.Y*g.w+c.X] = c.State
	case Multi:
		for _, cell := range c.Cells {
			g.cells[cell.Y*g.w+cell.X] = cell.State
		}
	case All:
		for y, row := range c.States {
			copy(g.cells[y*g.w:(y+1)*g.w], row)
		}
	case Rotate:
		g.rotate(c.Direction)
	}
	return nil
}

func (g *Grid) rotate(r Rotation) {
	cx := float64(g.w-1) / 2
	cy := float64(g.h-1) / 2
	rotated := make([]LedState, len(g.cells))

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			fx, fy := float64(x), float64(y)
			var nx, ny float64
			switch r {
			case Clockwise:
				nx = -(fy - cy) + cx
				ny = (fx - cx) + cy
			case CounterClockwise:
				nx = (fy - cy) + cx
				ny = -(fx - cx) + cy
			default:
				nx = -(fx - cx) + cx
				ny = -(fy - cy) + cy
			}
			rotated[int(ny)*g.w+int(nx)] = g.cells[y*g.w+x]
		}
	}
	g.cells = rotated
}

// Copy returns cmd with its slices duplicated, so the result shares no
// memory with the caller.
func Copy(cmd Sync) Sync {
	switch c := cmd.(type) {
	case Single:
		c.State = c.State.Clone()
		return c
	case Multi:
		return Multi{Cells: CopyCells(c.Cells)}
	case All:
		rows := make([][]LedState, len(c.States))
		for y, row := range c.States {
			rows[y] = make([]LedState, len(row))
			for x, s := range row {
				rows[y][x] = s.Clone()
			}
		}
		return All{States: rows}
	}
	return cmd
}

// CopyCells duplicates cells along with their blink info.
func CopyCells(cells []Cell) []Cell {
	if cells == nil {
		return nil
	}
	out := make([]Cell, len(cells))
	for i, c := range cells {
		c.State = c.State.Clone()
		out[i] = c
	}
	return out
}
