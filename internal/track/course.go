package track

import "image"

// DefaultStartX and DefaultStartY are the shared spawn point of every racer.
const (
	DefaultStartX = 830
	DefaultStartY = 920
)

const borderThickness = 6

// DefaultCourse paints the built-in 1920x1080 map: a walled arena with a few
// obstacle bars between the start area and three goal pads.
func DefaultCourse() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, DefaultWidth, DefaultHeight))
	Fill(img, img.Bounds(), Black)

	// border
	Fill(img, image.Rect(0, 0, DefaultWidth, borderThickness), White)
	Fill(img, image.Rect(0, DefaultHeight-borderThickness, DefaultWidth, DefaultHeight), White)
	Fill(img, image.Rect(0, 0, borderThickness, DefaultHeight), White)
	Fill(img, image.Rect(DefaultWidth-borderThickness, 0, DefaultWidth, DefaultHeight), White)

	for _, bar := range []image.Rectangle{
		image.Rect(260, 640, 700, 670),
		image.Rect(1060, 640, 1560, 670),
		image.Rect(560, 380, 1360, 410),
		image.Rect(120, 300, 160, 560),
		image.Rect(1760, 300, 1800, 560),
	} {
		Fill(img, bar, White)
	}

	Fill(img, image.Rect(90, 60, 390, 160), Red)
	Fill(img, image.Rect(810, 40, 1110, 140), Green)
	Fill(img, image.Rect(1530, 60, 1830, 160), Blue)
	return img
}

// NewDefault classifies DefaultCourse with the default palette.
func NewDefault() (*Track, error) {
	return FromImage(DefaultCourse(), DefaultPalette(), DefaultWidth, DefaultHeight)
}
