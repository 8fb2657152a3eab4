package model

import (
	"fmt"
	"image/color"
	"strings"
)

// MaxBrightness caps the channel intensity used when a LedColor is previewed
// on a full-color device.
const MaxBrightness uint8 = 200

// LedColor is a 3-bit color: bit0 drives red, bit1 green, bit2 blue.
type LedColor uint8

const (
	Off LedColor = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
)

var colorNames = [...]string{"off", "red", "green", "yellow", "blue", "magenta", "cyan", "white"}

// Bit reports whether channel bit i (0..2) is lit.
func (c LedColor) Bit(i int) bool {
	return (uint8(c)>>uint(i))&1 == 1
}

func (c LedColor) Valid() bool {
	return c <= White
}

func (c LedColor) String() string {
	if !c.Valid() {
		return fmt.Sprintf("LedColor(%d)", uint8(c))
	}
	return colorNames[c]
}

// ToRGB maps the color to a full-intensity NRGBA value, capped at MaxBrightness.
func (c LedColor) ToRGB() color.NRGBA {
	col := color.NRGBA{A: 255}
	if c.Bit(0) {
		col.R = MaxBrightness
	}
	if c.Bit(1) {
		col.G = MaxBrightness
	}
	if c.Bit(2) {
		col.B = MaxBrightness
	}
	return col
}

// ParseColor accepts a color name or its first letter, case-insensitively.
func ParseColor(s string) (LedColor, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range colorNames {
		if s == n || (len(s) == 1 && s[0] == n[0]) {
			return LedColor(i), nil
		}
	}
	return Off, fmt.Errorf("unknown color %q", s)
}

func (c LedColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *LedColor) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
