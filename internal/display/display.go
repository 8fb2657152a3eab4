// Package display runs a multiplexed matrix on its own goroutine and exposes
// it through lifecycle handles.
//
// A display is created Stopped. Start returns a Running handle, Pause a
// Paused one, Resume and Stop lead back. Each transition consumes the handle
// it was called on: any later call on that value returns ErrHandleConsumed.
// Handles are meant to be owned by one goroutine.
package display

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/muxmatrix/internal/decoder"
	"github.com/coreman2200/muxmatrix/internal/line"
	"github.com/coreman2200/muxmatrix/internal/model"
	"github.com/coreman2200/muxmatrix/internal/render"
	"github.com/coreman2200/muxmatrix/internal/sequence"
	"github.com/coreman2200/muxmatrix/internal/shiftreg"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

var (
	ErrHandleConsumed = errors.New("display handle already consumed")
	ErrDisconnected   = errors.New("render loop is not running")
)

const DefaultQueue = 64

// PinConfig numbers the nine control lines.
type PinConfig struct {
	SrSerIn int
	SrSrClk int
	SrRClk  int
	SrSrClr int
	SrOE    int
	DecA0   int
	DecA1   int
	DecA2   int
	DecLE   int
}

// DefaultPins is the BCM wiring of the reference board.
func DefaultPins() PinConfig {
	return PinConfig{
		SrSerIn: 24,
		SrSrClk: 23,
		SrRClk:  18,
		SrSrClr: 15,
		SrOE:    14,
		DecA0:   6,
		DecA1:   13,
		DecA2:   19,
		DecLE:   26,
	}
}

func (p PinConfig) row() shiftreg.Pins {
	return shiftreg.Pins{SerIn: p.SrSerIn, SrClk: p.SrSrClk, RClk: p.SrRClk, SrClr: p.SrSrClr, OE: p.SrOE}
}

func (p PinConfig) column() decoder.Pins {
	return decoder.Pins{A0: p.DecA0, A1: p.DecA1, A2: p.DecA2, LE: p.DecLE}
}

type options struct {
	lines  line.Provider
	waiter timing.Waiter
	settle time.Duration
	mirror render.Mirror
	queue  int
}

type Option func(*options)

// WithLines sets the line provider. The display owns it from Start on.
// Without it the periph host drivers are used.
func WithLines(p line.Provider) Option { return func(o *options) { o.lines = p } }

func WithWaiter(w timing.Waiter) Option { return func(o *options) { o.waiter = w } }

// WithSettle sets the minimum hold time after each line change.
func WithSettle(d time.Duration) Option { return func(o *options) { o.settle = d } }

// WithMirror copies every shown frame to m, throttled by m itself.
func WithMirror(m render.Mirror) Option { return func(o *options) { o.mirror = m } }

// WithQueue sets how many instructions may wait before a send blocks.
func WithQueue(n int) Option { return func(o *options) { o.queue = n } }

type base struct {
	id       string
	w, h     int
	consumed bool
}

func (b *base) ID() string  { return b.id }
func (b *base) Width() int  { return b.w }
func (b *base) Height() int { return b.h }

func (b *base) next() base {
	return base{id: b.id, w: b.w, h: b.h}
}

// link connects the handles of one started display to its render goroutine.
type link struct {
	tx     chan instruction
	resume chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newLink(queue int) *link {
	l := &link{
		tx:     make(chan instruction, queue),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	// When every handle is dropped without Stop the channel closes and the
	// render loop shuts itself down.
	runtime.SetFinalizer(l, (*link).close)
	return l
}

func (l *link) close() {
	l.once.Do(func() { close(l.tx) })
}

func (l *link) alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// send blocks while the queue is full. It fails only once the render
// goroutine has exited.
func (l *link) send(ins instruction) error {
	if !l.alive() {
		return ErrDisconnected
	}
	select {
	case l.tx <- ins:
		return nil
	case <-l.done:
		return ErrDisconnected
	}
}

// Stopped is a display with no render goroutine.
type Stopped struct {
	base
}

func New(id string, w, h int) *Stopped {
	return &Stopped{base{id: id, w: w, h: h}}
}

func (s *Stopped) State() string { return "stopped" }

// Start builds the render engine on the calling goroutine and hands it to a
// new render goroutine. An engine init failure is returned and leaves s
// usable.
func (s *Stopped) Start(refresh float64, pins PinConfig, opts ...Option) (*Running, error) {
	if s.consumed {
		return nil, ErrHandleConsumed
	}

	o := options{settle: shiftreg.DefaultSettle, queue: DefaultQueue, waiter: timing.Default}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queue < 1 {
		o.queue = 1
	}
	if o.lines == nil {
		p, err := line.NewPeriph()
		if err != nil {
			return nil, fmt.Errorf("display %s: %w: %w", s.id, render.ErrLineInit, err)
		}
		o.lines = p
	}

	eng, err := render.New(render.Config{
		Width:   s.w,
		Height:  s.h,
		Refresh: refresh,
		Row:     pins.row(),
		Column:  pins.column(),
		Lines:   o.lines,
		Waiter:  o.waiter,
		Settle:  o.settle,
		Mirror:  o.mirror,
	})
	if err != nil {
		return nil, fmt.Errorf("display %s: %w", s.id, err)
	}

	l := newLink(o.queue)
	m := &manager{
		engine: eng,
		rx:     l.tx,
		resume: l.resume,
		log:    log.With().Str("display", s.id).Logger(),
	}
	go m.run(l.done)

	log.Info().
		Str("display", s.id).
		Int("width", s.w).
		Int("height", s.h).
		Float64("refresh_hz", refresh).
		Msg("display started")

	s.consumed = true
	return &Running{base: s.next(), link: l}, nil
}

// Running is a display whose render goroutine is multiplexing.
type Running struct {
	base
	link *link
}

func (r *Running) State() string { return "running" }

// Done is closed once the render goroutine has exited.
func (r *Running) Done() <-chan struct{} { return r.link.done }

// Stop asks the render goroutine to finish its current pass, waits for it to
// leave the hardware dark and returns the stopped display.
func (r *Running) Stop() (*Stopped, error) {
	if r.consumed {
		return nil, ErrHandleConsumed
	}
	r.consumed = true

	_ = r.link.send(stopInstruction{})
	<-r.link.done
	r.link.close()

	log.Info().Str("display", r.id).Msg("display stopped")
	return &Stopped{base: r.next()}, nil
}

// Pause suspends rendering once the queued instructions before it are applied.
func (r *Running) Pause() (*Paused, error) {
	if r.consumed {
		return nil, ErrHandleConsumed
	}
	if err := r.link.send(pauseInstruction{}); err != nil {
		return nil, err
	}
	r.consumed = true
	return &Paused{base: r.next(), link: r.link}, nil
}

// Sync queues a copy of cmd once it validates against the display size.
// Invalid commands are never sent, and later changes to cmd by the caller do
// not reach the display.
func (r *Running) Sync(cmd model.Sync) error {
	if r.consumed {
		return ErrHandleConsumed
	}
	cmd = model.Copy(cmd)
	if err := model.Validate(cmd, r.w, r.h); err != nil {
		return err
	}
	return r.link.send(syncInstruction{cmd: cmd})
}

// AddAnimation validates a against the display size and queues a copy of it.
func (r *Running) AddAnimation(a *sequence.Animation) error {
	if r.consumed {
		return ErrHandleConsumed
	}
	if a == nil {
		return sequence.ErrNoFrames
	}
	a = a.Clone()
	if err := a.Validate(r.w, r.h); err != nil {
		return err
	}
	return r.link.send(addAnimationInstruction{a: a})
}

// ClearAnimations drops every active animation. A render goroutine that has
// already exited is not an error.
func (r *Running) ClearAnimations() error {
	if r.consumed {
		return ErrHandleConsumed
	}
	_ = r.link.send(clearAnimationsInstruction{})
	return nil
}

// Paused is a display whose render goroutine is parked.
type Paused struct {
	base
	link *link
}

func (p *Paused) State() string { return "paused" }

func (p *Paused) Done() <-chan struct{} { return p.link.done }

// Resume wakes the render goroutine.
func (p *Paused) Resume() (*Running, error) {
	if p.consumed {
		return nil, ErrHandleConsumed
	}
	if !p.link.alive() {
		return nil, ErrDisconnected
	}
	select {
	case p.link.resume <- struct{}{}:
	default:
	}
	p.consumed = true
	return &Running{base: p.next(), link: p.link}, nil
}
