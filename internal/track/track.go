package track

import (
	"errors"
	"fmt"
	"image"
	"math"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

var (
	ErrDimensions   = errors.New("track dimensions mismatch")
	ErrNoGoal       = errors.New("track has no goal region")
	ErrUnknownColor = errors.New("track color not in palette")
)

// Class is the classification of one track pixel.
type Class uint8

const (
	Free Class = iota
	Wall
	Goal
	OutOfBounds
)

func (c Class) String() string {
	switch c {
	case Free:
		return "free"
	case Wall:
		return "wall"
	case Goal:
		return "goal"
	case OutOfBounds:
		return "out_of_bounds"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Cell is a classified pixel. Color is only meaningful for Goal cells.
type Cell struct {
	Class Class
	Color Color
}

// Obstructs reports whether the cell blocks sensing and motion.
func (c Cell) Obstructs() bool {
	return c.Class == Wall || c.Class == OutOfBounds
}

// IsGoalFor reports whether the cell is a goal painted in the given color.
func (c Cell) IsGoalFor(color Color) bool {
	return c.Class == Goal && c.Color == color
}

// Track is an immutable classified raster. It is safe for concurrent reads.
type Track struct {
	width  int
	height int
	// cells holds an index into table per pixel, row-major.
	cells []uint8
	table []Cell
	goals []Color
}

// FromImage classifies every pixel of img against the palette. When width and
// height are positive the image bounds must match them exactly.
func FromImage(img image.Image, palette Palette, width, height int) (*Track, error) {
	if img == nil {
		return nil, fmt.Errorf("track image is required")
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDimensions, w, h)
	}
	if (width > 0 && w != width) || (height > 0 && h != height) {
		return nil, fmt.Errorf("%w: got=%dx%d want=%dx%d", ErrDimensions, w, h, width, height)
	}

	classes, err := palette.table()
	if err != nil {
		return nil, err
	}

	t := &Track{
		width:  w,
		height: h,
		cells:  make([]uint8, w*h),
		table:  []Cell{{Class: Free}},
	}
	index := map[Color]uint8{}
	seenGoal := map[Color]bool{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := colorOf(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			idx, ok := index[c]
			if !ok {
				class, known := classes[c]
				if !known {
					if palette.Strict {
						return nil, fmt.Errorf("%w: %s at (%d,%d)", ErrUnknownColor, c, x, y)
					}
					class = Free
				}
				if class == Free {
					idx = 0
				} else {
					if len(t.table) > math.MaxUint8 {
						return nil, fmt.Errorf("track palette too large")
					}
					t.table = append(t.table, Cell{Class: class, Color: c})
					idx = uint8(len(t.table) - 1)
				}
				index[c] = idx
			}
			cell := t.table[idx]
			if cell.Class == Goal && !seenGoal[cell.Color] {
				seenGoal[cell.Color] = true
				t.goals = append(t.goals, cell.Color)
			}
			t.cells[y*w+x] = idx
		}
	}

	if len(t.goals) == 0 {
		return nil, fmt.Errorf("%w: none of %v painted", ErrNoGoal, palette.Goals)
	}
	t.goals = palette.orderGoals(t.goals)
	return t, nil
}

func (t *Track) Width() int {
	return t.width
}

func (t *Track) Height() int {
	return t.height
}

// GoalColors returns the goal colors present on the map in palette order.
func (t *Track) GoalColors() []Color {
	return append([]Color(nil), t.goals...)
}

func (t *Track) InBounds(x, y int) bool {
	return x >= 0 && x < t.width && y >= 0 && y < t.height
}

// At classifies an integer pixel.
func (t *Track) At(x, y int) Cell {
	if !t.InBounds(x, y) {
		return Cell{Class: OutOfBounds}
	}
	return t.table[t.cells[y*t.width+x]]
}

// Classify classifies a continuous coordinate by truncating it to a pixel.
func (t *Track) Classify(x, y float64) Cell {
	return t.At(int(x), int(y))
}

// Clamp limits a continuous coordinate to the track bounds.
func (t *Track) Clamp(x, y float64) (float64, float64) {
	return math.Max(0, math.Min(float64(t.width-1), x)),
		math.Max(0, math.Min(float64(t.height-1), y))
}

// Census counts pixels per class.
func (t *Track) Census() map[Class]int {
	out := make(map[Class]int, 3)
	for _, idx := range t.cells {
		out[t.table[idx].Class]++
	}
	return out
}
