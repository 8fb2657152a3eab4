// Package control turns text commands into display operations. A Session
// owns the display handle; consoles and websocket clients reach it through
// a request channel so only one goroutine ever drives the handle.
package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/muxmatrix/internal/display"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/sequence"
)

var (
	ErrPaused  = errors.New("display is paused")
	ErrStopped = errors.New("display is stopped")
	ErrUnknown = errors.New("unknown command")
	ErrUsage   = errors.New("bad arguments")
)

// Reply is the outcome of one command.
type Reply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	State   string `json:"state"`
	Display string `json:"display"`
	Message string `json:"message,omitempty"`

	// Stop is set once the display has been stopped by the command.
	Stop bool `json:"stop,omitempty"`
}

// Request carries one command line to the session. Reply, when set, must
// have room for one value.
type Request struct {
	Line  string
	Reply chan<- Reply
}

// Submit sends line to the session behind reqs and waits for its reply.
func Submit(ctx context.Context, reqs chan<- Request, line string) (Reply, error) {
	ch := make(chan Reply, 1)
	select {
	case reqs <- Request{Line: line, Reply: ch}:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Session holds exactly one of the three display handles at a time.
type Session struct {
	running *display.Running
	paused  *display.Paused
	stopped *display.Stopped

	id   string
	w, h int
}

func NewSession(r *display.Running) *Session {
	return &Session{running: r, id: r.ID(), w: r.Width(), h: r.Height()}
}

func (s *Session) State() string {
	switch {
	case s.running != nil:
		return s.running.State()
	case s.paused != nil:
		return s.paused.State()
	}
	return "stopped"
}

// Running exposes the live handle, nil unless the display is running.
func (s *Session) Running() *display.Running { return s.running }

// Serve executes requests until a stop command, the render goroutine exiting
// or ctx ending. The display is stopped on return.
func (s *Session) Serve(ctx context.Context, reqs <-chan Request) (*display.Stopped, error) {
	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		case <-s.done():
			log.Error().Str("display", s.id).Msg("render loop exited on its own")
			return s.Shutdown()
		case req := <-reqs:
			rep := s.Exec(req.Line)
			if req.Reply != nil {
				req.Reply <- rep
			}
			if rep.Stop {
				return s.stopped, nil
			}
		}
	}
}

func (s *Session) done() <-chan struct{} {
	switch {
	case s.running != nil:
		return s.running.Done()
	case s.paused != nil:
		return s.paused.Done()
	}
	return nil
}

// Shutdown stops the display from whatever state it is in.
func (s *Session) Shutdown() (*display.Stopped, error) {
	if s.paused != nil {
		r, err := s.paused.Resume()
		if err != nil && !errors.Is(err, display.ErrDisconnected) {
			return nil, err
		}
		s.paused = nil
		if r == nil {
			s.stopped = display.New(s.id, s.w, s.h)
			return s.stopped, nil
		}
		s.running = r
	}
	if s.running != nil {
		st, err := s.running.Stop()
		if err != nil {
			return nil, err
		}
		s.running = nil
		s.stopped = st
	}
	return s.stopped, nil
}

// Exec runs one command line.
func (s *Session) Exec(line string) Reply {
	if isHelp(line) {
		return Reply{OK: true, State: s.State(), Display: s.id, Message: "commands: " + Usage}
	}
	stop, err := s.exec(line)
	rep := Reply{OK: err == nil, State: s.State(), Display: s.id, Stop: stop}
	if err != nil {
		rep.Error = err.Error()
		log.Debug().Str("display", s.id).Str("cmd", line).Err(err).Msg("command failed")
	}
	return rep
}

func (s *Session) exec(line string) (bool, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "stop", "s", "quit", "q", "exit", "e":
		_, err := s.Shutdown()
		return err == nil, err
	case "state", "status":
		return false, nil
	}

	switch {
	case s.stopped != nil:
		return false, ErrStopped
	case s.paused != nil:
		if cmd != "resume" {
			return false, ErrPaused
		}
		r, err := s.paused.Resume()
		if err != nil {
			return false, err
		}
		s.paused, s.running = nil, r
		return false, nil
	}

	r := s.running
	switch cmd {
	case "pause":
		p, err := r.Pause()
		if err != nil {
			return false, err
		}
		s.running, s.paused = nil, p
		return false, nil
	case "resume":
		return false, nil
	case "left", "counterclockwise", "cc", "ccw":
		return false, r.Sync(model.Rotate{Direction: model.CounterClockwise})
	case "right", "clockwise", "cw":
		return false, r.Sync(model.Rotate{Direction: model.Clockwise})
	case "180":
		return false, r.Sync(model.Rotate{Direction: model.OneEighty})
	case "custom":
		return false, r.Sync(Custom(s.w, s.h))
	case "set":
		c, err := parseCell(args)
		if err != nil {
			return false, err
		}
		return false, r.Sync(model.Single{X: c.X, Y: c.Y, State: c.State})
	case "load":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: load <file>", ErrUsage)
		}
		a, err := sequence.ParseFile(args[0])
		if err != nil {
			return false, err
		}
		return false, r.AddAnimation(a)
	case "clear":
		return false, r.ClearAnimations()
	}

	if len(args) == 0 {
		if c, err := model.ParseColor(cmd); err == nil {
			return false, r.Sync(model.Fill(s.w, s.h, model.Solid(c)))
		}
	}
	return false, fmt.Errorf("%w: %s", ErrUnknown, cmd)
}

func isHelp(line string) bool {
	args, err := shlex.Split(line)
	if err != nil || len(args) != 1 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "help", "?":
		return true
	}
	return false
}

const Usage = "red|r green|g blue|b yellow|y magenta|m cyan|c white|w off|o, " +
	"left|ccw right|cw 180, custom, set <x> <y> <color> [<on_ms> <period_ms>], " +
	"load <file>, clear, pause, resume, state, stop|q"

// parseCell reads "x y color [on_ms period_ms]".
func parseCell(args []string) (model.Cell, error) {
	if len(args) != 3 && len(args) != 5 {
		return model.Cell{}, fmt.Errorf("%w: set <x> <y> <color> [<on_ms> <period_ms>]", ErrUsage)
	}
	n := make([]int, 0, 4)
	for _, i := range []int{0, 1, 3, 4} {
		if i >= len(args) {
			break
		}
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return model.Cell{}, fmt.Errorf("%w: %q is not a number", ErrUsage, args[i])
		}
		n = append(n, v)
	}
	c, err := model.ParseColor(args[2])
	if err != nil {
		return model.Cell{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	cell := model.Cell{X: n[0], Y: n[1], State: model.Solid(c)}
	if len(n) == 4 {
		cell.State = model.Blinking(c, time.Duration(n[2])*time.Millisecond, time.Duration(n[3])*time.Millisecond)
	}
	return cell, nil
}

var customPattern = [4][4]model.LedColor{
	{model.Green, model.Blue, model.Blue, model.Blue},
	{model.Green, model.Blue, model.White, model.White},
	{model.Green, model.Green, model.Red, model.White},
	{model.Red, model.Red, model.Red, model.White},
}

// Custom is the demo picture, tiled to fill a w x h grid.
func Custom(w, h int) model.All {
	rows := make([][]model.LedState, h)
	for y := range rows {
		rows[y] = make([]model.LedState, w)
		for x := range rows[y] {
			rows[y][x] = model.Solid(customPattern[y%4][x%4])
		}
	}
	return model.All{States: rows}
}
