// Package linetest provides a line.Provider that records every level change
// in order, for asserting GPIO sequencing.
package linetest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/muxmatrix/internal/line"
)

var ErrInjected = errors.New("injected line failure")

// Event is one Out call.
type Event struct {
	Pin   int
	Level gpio.Level
}

func (e Event) String() string {
	return fmt.Sprintf("%d=%s", e.Pin, e.Level)
}

// Recorder is a line.Provider that keeps a log of every Out call made on the
// lines it handed out.
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	levels   map[int]gpio.Level
	acquired map[int]bool
	closed   bool

	// RefuseAcquire makes Acquire fail for the listed pins.
	RefuseAcquire map[int]bool
	// FailOut makes Out fail for the listed pins after recording the call.
	FailOut map[int]bool
}

func New() *Recorder {
	return &Recorder{levels: map[int]gpio.Level{}, acquired: map[int]bool{}}
}

func (r *Recorder) Acquire(pin int) (line.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RefuseAcquire[pin] {
		return nil, fmt.Errorf("pin %d: %w", pin, ErrInjected)
	}
	if r.acquired[pin] {
		return nil, fmt.Errorf("pin %d: %w", pin, line.ErrBusy)
	}
	r.acquired[pin] = true
	return &recLine{r: r, pin: pin}, nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Events returns a copy of the log.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset clears the log, keeping the current levels.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}

func (r *Recorder) Level(pin int) gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// Pulses counts low-to-high transitions of pin in the log.
func (r *Recorder) Pulses(pin int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	last := gpio.Low
	for _, e := range r.events {
		if e.Pin != pin {
			continue
		}
		if e.Level == gpio.High && last == gpio.Low {
			n++
		}
		last = e.Level
	}
	return n
}

type recLine struct {
	r   *Recorder
	pin int
}

func (l *recLine) Out(v gpio.Level) error {
	l.r.mu.Lock()
	defer l.r.mu.Unlock()
	l.r.events = append(l.r.events, Event{Pin: l.pin, Level: v})
	l.r.levels[l.pin] = v
	if l.r.FailOut[l.pin] {
		return fmt.Errorf("pin %d: %w", l.pin, ErrInjected)
	}
	return nil
}
