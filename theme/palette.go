package theme

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type RGB [3]uint8

// Hex formats c as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Palette is an ordered color ramp; roles pick points along it.
type Palette struct {
	Name   string
	Colors []RGB
}

// Default is a plasma-like ramp, deep purple to bright yellow.
func Default() *Palette {
	return &Palette{
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135},
			{84, 2, 163},
			{139, 10, 165},
			{185, 50, 137},
			{219, 92, 104},
			{244, 136, 73},
			{254, 188, 43},
			{240, 249, 33},
		},
	}
}

// LoadOrDefault loads a .gpl file, or returns Default when path is empty.
func LoadOrDefault(path string) (*Palette, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "palette")
	}
	defer f.Close()
	return ParseGPL(f)
}

// ParseGPL reads a GIMP palette. Header lines and comments are skipped;
// every other line must start with three channel values 0-255.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		case line == "", line[0] == '#', line == "GIMP Palette", strings.HasPrefix(line, "Columns:"):
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.Errorf("palette line %d: want R G B, got %q", n, line)
		}
		var c RGB
		for i := range c {
			v, err := strconv.Atoi(fields[i])
			if err != nil || v < 0 || v > 255 {
				return nil, errors.Errorf("palette line %d: bad channel %q", n, fields[i])
			}
			c[i] = uint8(v)
		}
		p.Colors = append(p.Colors, c)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "palette")
	}
	if len(p.Colors) == 0 {
		return nil, errors.New("palette has no colors")
	}
	return p, nil
}

// At returns the color at position t along the ramp, clamped to 0-1.
func (p *Palette) At(t float64) RGB {
	t = min(max(t, 0), 1)
	pos := t * float64(len(p.Colors)-1)
	i := min(int(pos), len(p.Colors)-2)
	if i < 0 {
		return p.Colors[0]
	}
	a, b, frac := p.Colors[i], p.Colors[i+1], pos-float64(i)

	var c RGB
	for ch := range c {
		c[ch] = uint8(math.Round(float64(a[ch]) + (float64(b[ch])-float64(a[ch]))*frac))
	}
	return c
}
