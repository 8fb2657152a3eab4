package sequence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreman2200/muxmatrix/internal/model"
)

var (
	ErrMissingParam     = errors.New("missing parameter")
	ErrBadFormatting    = errors.New("bad formatting")
	ErrMissingSeparator = errors.New("missing blank line separator")
)

// ParseError locates a parse failure. Unwrap yields one of the Err* values
// of this package or a model validation error.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFile reads an animation description from path.
func ParseFile(path string) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Parse reads the line based animation format:
//
//	animation
//	loop false
//	repeats 2
//	keep_last true
//
//	frame
//	dur 250
//	rst true
//	0 0 red
//	1 0 blue 100 500
//
// Keywords are case-insensitive. Frames are separated by blank lines, cell
// lines are "x y color" with an optional blink on-time and period in
// milliseconds. Lines starting with # are ignored.
func Parse(r io.Reader) (*Animation, error) {
	p := &parser{s: bufio.NewScanner(r)}

	line, ok := p.next()
	switch {
	case !ok:
		return nil, p.fail(ErrMissingParam, "expected keyword animation, input ended")
	case line != "animation":
		return nil, p.fail(ErrBadFormatting, "expected keyword animation, found %q", line)
	}

	loop, err := p.boolParam("loop")
	if err != nil {
		return nil, err
	}
	repeats, err := p.intParam("repeats")
	if err != nil {
		return nil, err
	}
	keepLast, err := p.boolParam("keep_last")
	if err != nil {
		return nil, err
	}
	if line, ok := p.next(); !ok || line != "" {
		return nil, p.fail(ErrMissingSeparator, "expected blank line after header")
	}

	var frames []Frame
	for {
		line, ok := p.next()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		if line != "frame" {
			return nil, p.fail(ErrMissingParam, "expected keyword frame, found %q", line)
		}
		f, err := p.frame()
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := p.s.Err(); err != nil {
		return nil, err
	}

	a, err := New(loop, frames, repeats, keepLast)
	if err != nil {
		return nil, &ParseError{Line: p.line, Msg: "invalid animation", Err: err}
	}
	return a, nil
}

type parser struct {
	s    *bufio.Scanner
	line int
}

// next returns the following non-comment line, trimmed and lowercased.
func (p *parser) next() (string, bool) {
	for p.s.Scan() {
		p.line++
		t := strings.ToLower(strings.TrimSpace(p.s.Text()))
		if strings.HasPrefix(t, "#") {
			continue
		}
		return t, true
	}
	return "", false
}

func (p *parser) fail(err error, format string, args ...any) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...), Err: err}
}

// param reads a "name value" line.
func (p *parser) param(name string) (string, error) {
	line, ok := p.next()
	if !ok {
		return "", p.fail(ErrMissingParam, "expected %s, input ended", name)
	}
	f := strings.Fields(line)
	switch {
	case len(f) == 0:
		return "", p.fail(ErrMissingParam, "expected %s, found blank line", name)
	case f[0] != name:
		return "", p.fail(ErrBadFormatting, "expected keyword %s, found %q", name, f[0])
	case len(f) == 1:
		return "", p.fail(ErrMissingParam, "%s has no value", name)
	case len(f) > 2:
		return "", p.fail(ErrBadFormatting, "%s takes one value, found %d", name, len(f)-1)
	}
	return f[1], nil
}

func (p *parser) boolParam(name string) (bool, error) {
	v, err := p.param(name)
	if err != nil {
		return false, err
	}
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, p.fail(ErrBadFormatting, "%s expects true or false, found %q", name, v)
}

func (p *parser) intParam(name string) (int, error) {
	v, err := p.param(name)
	if err != nil {
		return 0, err
	}
	n, err := p.number(v, name)
	return int(n), err
}

func (p *parser) number(v, what string) (uint64, error) {
	n, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return 0, p.fail(ErrBadFormatting, "%s expects an unsigned integer, found %q", what, v)
	}
	return n, nil
}

func (p *parser) frame() (Frame, error) {
	dur, err := p.intParam("dur")
	if err != nil {
		return Frame{}, err
	}
	rst, err := p.boolParam("rst")
	if err != nil {
		return Frame{}, err
	}

	f := NewFrame(time.Duration(dur)*time.Millisecond, nil, rst)
	for {
		line, ok := p.next()
		if !ok || line == "" {
			return f, nil
		}
		c, err := p.cell(line)
		if err != nil {
			return Frame{}, err
		}
		f.Cells = append(f.Cells, c)
	}
}

func (p *parser) cell(line string) (model.Cell, error) {
	f := strings.Fields(line)
	switch {
	case len(f) < 3:
		return model.Cell{}, p.fail(ErrMissingParam, "cell needs x y color, found %q", line)
	case len(f) == 4:
		return model.Cell{}, p.fail(ErrMissingParam, "blink on-time given without a period")
	case len(f) > 5:
		return model.Cell{}, p.fail(ErrBadFormatting, "too many values in cell %q", line)
	}

	x, err := p.number(f[0], "x")
	if err != nil {
		return model.Cell{}, err
	}
	y, err := p.number(f[1], "y")
	if err != nil {
		return model.Cell{}, err
	}
	color, err := model.ParseColor(f[2])
	if err != nil {
		return model.Cell{}, p.fail(ErrBadFormatting, "%v", err)
	}
	c := model.Cell{X: int(x), Y: int(y), State: model.Solid(color)}

	if len(f) == 5 {
		on, err := p.number(f[3], "blink on-time")
		if err != nil {
			return model.Cell{}, err
		}
		period, err := p.number(f[4], "blink period")
		if err != nil {
			return model.Cell{}, err
		}
		c.State = model.Blinking(color, time.Duration(on)*time.Millisecond, time.Duration(period)*time.Millisecond)
		if err := c.State.Validate(); err != nil {
			return model.Cell{}, &ParseError{Line: p.line, Msg: "invalid blink", Err: err}
		}
	}
	return c, nil
}
