// Package timing holds the wait strategies used between GPIO level changes
// and between multiplexed cells.
package timing

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Waiter blocks the calling goroutine for a span or until a deadline.
type Waiter interface {
	Wait(d time.Duration)
	Until(deadline time.Time)
}

// Spin polls the monotonic clock without sleeping or yielding. It burns the
// core it runs on; the render goroutine is locked to its OS thread for this.
type Spin struct{}

func (Spin) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	Spin{}.Until(time.Now().Add(d))
}

func (Spin) Until(deadline time.Time) {
	for time.Now().Before(deadline) {
	}
}

// Hybrid sleeps while more than Threshold remains, yields for the next
// stretch and spins the last microseconds.
type Hybrid struct {
	Threshold time.Duration
}

func (h Hybrid) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	h.Until(time.Now().Add(d))
}

func (h Hybrid) Until(deadline time.Time) {
	th := h.Threshold
	if th <= 0 {
		th = time.Millisecond
	}
	for {
		rem := time.Until(deadline)
		switch {
		case rem <= 0:
			return
		case rem > th:
			time.Sleep(rem - th)
		case rem > th/4:
			runtime.Gosched()
		}
	}
}

// Default is the strategy used when none is configured.
var Default Waiter = Spin{}

// Parse maps a configuration name to a Waiter.
func Parse(name string) (Waiter, error) {
	switch strings.ToLower(name) {
	case "", "spin":
		return Spin{}, nil
	case "hybrid":
		return Hybrid{Threshold: time.Millisecond}, nil
	}
	return nil, fmt.Errorf("unknown wait strategy %q", name)
}
