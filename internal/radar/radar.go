// Package radar implements fixed-step ray casts against a track.
package radar

import (
	"math"

	"radarrace/internal/track"
)

const (
	MaxRange = 100
	Step     = 2

	// SideAngle is the offset of the left and right beams from the heading.
	SideAngle = 45

	ObservationSize = 7
)

// Observation is the controller input vector:
// front, left, right, heading/360, goal R, G, B.
type Observation [ObservationSize]float64

func (o Observation) Slice() []float64 {
	return append([]float64(nil), o[:]...)
}

// Cast marches from (x,y) along heading+offset degrees and returns the
// traveled fraction of MaxRange before the first obstructing sample, or 1.0
// when the full range is clear.
func Cast(t *track.Track, x, y float64, heading, offset int) float64 {
	angle := Radians(heading + offset)
	cos, sin := math.Cos(angle), math.Sin(angle)

	length := 0
	for length < MaxRange {
		cx := int(x + float64(length)*cos)
		cy := int(y + float64(length)*sin)
		if t.At(cx, cy).Obstructs() {
			break
		}
		length += Step
	}
	return float64(length) / MaxRange
}

// Observe builds the observation for a racer pose.
func Observe(t *track.Track, x, y float64, heading int, goal track.Color) Observation {
	rgb := goal.Normalized()
	return Observation{
		Cast(t, x, y, heading, 0),
		Cast(t, x, y, heading, -SideAngle),
		Cast(t, x, y, heading, SideAngle),
		float64(heading) / 360.0,
		rgb[0],
		rgb[1],
		rgb[2],
	}
}

// Radians converts a degree heading wrapped into [0,360).
func Radians(degrees int) float64 {
	return float64(WrapDegrees(degrees)) * math.Pi / 180
}

// WrapDegrees wraps degrees into [0,360).
func WrapDegrees(degrees int) int {
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return d
}
