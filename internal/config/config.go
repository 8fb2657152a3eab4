package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/muxmatrix/internal/decoder"
	"github.com/coreman2200/muxmatrix/internal/display"
	"github.com/coreman2200/muxmatrix/internal/timing"
)

type Pins struct {
	SrSerIn int `yaml:"sr_serin"`
	SrSrClk int `yaml:"sr_srclk"`
	SrRClk  int `yaml:"sr_rclk"`
	SrSrClr int `yaml:"sr_srclr"`
	SrOE    int `yaml:"sr_oe"`
	DecA0   int `yaml:"dec_a0"`
	DecA1   int `yaml:"dec_a1"`
	DecA2   int `yaml:"dec_a2"`
	DecLE   int `yaml:"dec_le"`
}

type Mirror struct {
	Driver     string `yaml:"driver"`         // "none" | "console" | "spi"
	Port       string `yaml:"port,omitempty"` // spi port name, empty for the first
	IntervalMs int    `yaml:"interval_ms"`
}

type Control struct {
	Addr string `yaml:"addr,omitempty"` // websocket listen address, empty disables
}

type Config struct {
	ID        string  `yaml:"id"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	RefreshHz float64 `yaml:"refresh_hz"`

	Backend  string `yaml:"backend"`        // "periph" | "cdev" | "sim"
	Chip     string `yaml:"chip,omitempty"` // cdev only, e.g. gpiochip0
	SettleNs int    `yaml:"settle_ns"`
	Wait     string `yaml:"wait"` // "spin" | "hybrid"
	Queue    int    `yaml:"queue,omitempty"`

	Pins    Pins    `yaml:"pins"`
	Mirror  Mirror  `yaml:"mirror"`
	Control Control `yaml:"control"`

	// Animation files loaded once the display is running.
	Animations []string `yaml:"animations,omitempty"`
}

// Default matches the reference 4x4 board on a Raspberry Pi.
func Default() *Config {
	p := display.DefaultPins()
	return &Config{
		ID:        "id",
		Width:     4,
		Height:    4,
		RefreshHz: 60,
		Backend:   "periph",
		Chip:      "gpiochip0",
		SettleNs:  100,
		Wait:      "spin",
		Queue:     display.DefaultQueue,
		Pins: Pins{
			SrSerIn: p.SrSerIn,
			SrSrClk: p.SrSrClk,
			SrRClk:  p.SrRClk,
			SrSrClr: p.SrSrClr,
			SrOE:    p.SrOE,
			DecA0:   p.DecA0,
			DecA1:   p.DecA1,
			DecA2:   p.DecA2,
			DecLE:   p.DecLE,
		},
		Mirror: Mirror{Driver: "none", IntervalMs: 50},
	}
}

// Load reads path over the defaults, so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Width < 1 || c.Height < 1:
		return fmt.Errorf("config: grid %dx%d", c.Width, c.Height)
	case c.Height > decoder.Outputs:
		return fmt.Errorf("config: height %d exceeds %d decoder outputs", c.Height, decoder.Outputs)
	case c.RefreshHz <= 0:
		return fmt.Errorf("config: refresh_hz %g", c.RefreshHz)
	case c.SettleNs < 0:
		return fmt.Errorf("config: settle_ns %d", c.SettleNs)
	}
	switch c.Backend {
	case "periph", "cdev", "sim":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.Mirror.Driver {
	case "", "none", "console", "spi":
	default:
		return fmt.Errorf("config: unknown mirror driver %q", c.Mirror.Driver)
	}
	if _, err := timing.Parse(c.Wait); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := map[int]string{}
	for name, pin := range c.Pins.byName() {
		if other, ok := seen[pin]; ok {
			return fmt.Errorf("config: pin %d used by both %s and %s", pin, other, name)
		}
		seen[pin] = name
	}
	return nil
}

func (p Pins) byName() map[string]int {
	return map[string]int{
		"sr_serin": p.SrSerIn,
		"sr_srclk": p.SrSrClk,
		"sr_rclk":  p.SrRClk,
		"sr_srclr": p.SrSrClr,
		"sr_oe":    p.SrOE,
		"dec_a0":   p.DecA0,
		"dec_a1":   p.DecA1,
		"dec_a2":   p.DecA2,
		"dec_le":   p.DecLE,
	}
}

func (c *Config) PinConfig() display.PinConfig {
	return display.PinConfig{
		SrSerIn: c.Pins.SrSerIn,
		SrSrClk: c.Pins.SrSrClk,
		SrRClk:  c.Pins.SrRClk,
		SrSrClr: c.Pins.SrSrClr,
		SrOE:    c.Pins.SrOE,
		DecA0:   c.Pins.DecA0,
		DecA1:   c.Pins.DecA1,
		DecA2:   c.Pins.DecA2,
		DecLE:   c.Pins.DecLE,
	}
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleNs) * time.Nanosecond
}

func (c *Config) MirrorInterval() time.Duration {
	return time.Duration(c.Mirror.IntervalMs) * time.Millisecond
}

// Waiter returns the configured wait strategy, spinning when unset.
func (c *Config) Waiter() timing.Waiter {
	w, err := timing.Parse(c.Wait)
	if err != nil {
		return timing.Default
	}
	return w
}
