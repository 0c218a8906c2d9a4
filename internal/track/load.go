package track

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
)

// Load decodes a PNG or BMP map from disk and classifies it.
func Load(path string, palette Palette, width, height int) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Decode(f, palette, width, height)
	if err != nil {
		return nil, fmt.Errorf("load track %s: %w", path, err)
	}
	return t, nil
}

func Decode(r io.Reader, palette Palette, width, height int) (*Track, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode track image: %w", err)
	}
	t, err := FromImage(img, palette, width, height)
	if err != nil {
		return nil, fmt.Errorf("classify %s track: %w", format, err)
	}
	return t, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Fill paints a rectangle of img in the given color.
func Fill(img draw.Image, r image.Rectangle, c Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}
