package track

import (
	"fmt"
	"image/color"
)

// Color is an exact 8-bit RGB triple. It implements color.Color as opaque.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

var (
	White = Color{R: 255, G: 255, B: 255}
	Black = Color{R: 0, G: 0, B: 0}
	Red   = Color{R: 237, G: 28, B: 36}
	Green = Color{R: 181, G: 230, B: 29}
	Blue  = Color{R: 0, G: 162, B: 232}
)

func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

func (c Color) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Normalized returns the components scaled to [0,1].
func (c Color) Normalized() [3]float64 {
	return [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
}

func colorOf(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Color{R: n.R, G: n.G, B: n.B}
}

// Palette maps exact colors to cell classes. Colors outside the palette are
// free space unless Strict is set, in which case they reject the map.
type Palette struct {
	Wall   Color   `json:"wall" yaml:"wall"`
	Goals  []Color `json:"goals" yaml:"goals"`
	Free   []Color `json:"free,omitempty" yaml:"free,omitempty"`
	Strict bool    `json:"strict,omitempty" yaml:"strict,omitempty"`
}

func DefaultPalette() Palette {
	return Palette{
		Wall:  White,
		Goals: []Color{Red, Green, Blue},
		Free:  []Color{Black},
	}
}

func (p Palette) table() (map[Color]Class, error) {
	if len(p.Goals) == 0 {
		return nil, fmt.Errorf("palette requires at least one goal color")
	}
	out := make(map[Color]Class, len(p.Goals)+len(p.Free)+1)
	out[p.Wall] = Wall
	for _, goal := range p.Goals {
		if prev, ok := out[goal]; ok {
			return nil, fmt.Errorf("palette color %s assigned twice (%s, goal)", goal, prev)
		}
		out[goal] = Goal
	}
	for _, free := range p.Free {
		if prev, ok := out[free]; ok {
			return nil, fmt.Errorf("palette color %s assigned twice (%s, free)", free, prev)
		}
		out[free] = Free
	}
	return out, nil
}

func (p Palette) orderGoals(present []Color) []Color {
	seen := make(map[Color]bool, len(present))
	for _, c := range present {
		seen[c] = true
	}
	ordered := make([]Color, 0, len(present))
	for _, c := range p.Goals {
		if seen[c] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
