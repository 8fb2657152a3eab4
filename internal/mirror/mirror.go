// Package mirror copies what the matrix shows onto a periph display.Drawer:
// an ANSI console preview or an NRZ (WS2812) strip on SPI.
package mirror

import (
	"fmt"
	"image"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/coreman2200/muxmatrix/internal/model"
)

// DefaultInterval throttles mirror updates to roughly 20 per second.
const DefaultInterval = 50 * time.Millisecond

// Sink draws the matrix as a single strip of W*H pixels, row-major.
// Due and Show run on the render goroutine only; Close must wait until the
// display has stopped.
type Sink struct {
	drawer   display.Drawer
	closer   func() error
	interval time.Duration
	lastEmit time.Time
	img      *image.NRGBA
}

func New(d display.Drawer, interval time.Duration) *Sink {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sink{drawer: d, interval: interval}
}

// NewConsole previews on stdout.
func NewConsole(interval time.Duration) *Sink {
	return New(screen.New(100), interval)
}

// NewNRZ opens an SPI port and drives an n pixel NRZ strip from it. An empty
// port picks the first one registered.
func NewNRZ(port string, n int, interval time.Duration) (*Sink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("spi port %q: %w", port, err)
	}
	s, err := NewNRZPort(p, n, interval)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	s.closer = p.Close
	return s, nil
}

// NewNRZPort drives an NRZ strip through an already opened port.
func NewNRZPort(p spi.Port, n int, interval time.Duration) (*Sink, error) {
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: n,
		Channels:  3,
		Freq:      2500 * physic.KiloHertz,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, err
	}
	return New(d, interval), nil
}

// Open picks a sink by driver name: "console", "spi" or "none". "none"
// returns a nil sink.
func Open(driver, port string, n int, interval time.Duration) (*Sink, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "console":
		return NewConsole(interval), nil
	case "spi", "nrz":
		return NewNRZ(port, n, interval)
	}
	return nil, fmt.Errorf("unknown mirror driver %q", driver)
}

// Due reports whether the throttle interval has passed since the last Show.
func (s *Sink) Due(now time.Time) bool {
	return !s.lastEmit.Add(s.interval).After(now)
}

// Show draws the colors, row-major, as one strip.
func (s *Sink) Show(w, h int, colors []model.LedColor) error {
	s.lastEmit = time.Now()

	n := w * h
	if n > len(colors) {
		n = len(colors)
	}
	if s.img == nil || s.img.Rect.Dx() != n {
		s.img = image.NewNRGBA(image.Rect(0, 0, n, 1))
	}
	for x := 0; x < n; x++ {
		s.img.SetNRGBA(x, 0, colors[x].ToRGB())
	}
	return s.drawer.Draw(s.drawer.Bounds(), s.img, image.Point{})
}

// Close blanks the drawer and releases its port.
func (s *Sink) Close() error {
	err := s.drawer.Halt()
	if s.closer != nil {
		if cerr := s.closer(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}

func (s *Sink) String() string {
	return fmt.Sprintf("mirror{%s}", s.drawer)
}
