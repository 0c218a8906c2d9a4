package track

import (
	"bytes"
	"errors"
	"image"
	"testing"
)

func blankImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	Fill(img, img.Bounds(), Black)
	return img
}

func TestFromImageClassifiesPalette(t *testing.T) {
	img := blankImage(40, 20)
	Fill(img, image.Rect(10, 0, 12, 20), White)
	Fill(img, image.Rect(30, 5, 35, 10), Green)
	img.Set(2, 2, Color{R: 10, G: 20, B: 30})

	tr, err := FromImage(img, DefaultPalette(), 40, 20)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if got := tr.At(11, 7).Class; got != Wall {
		t.Fatalf("expected wall, got %s", got)
	}
	if got := tr.At(0, 0).Class; got != Free {
		t.Fatalf("expected free, got %s", got)
	}
	if got := tr.At(2, 2).Class; got != Free {
		t.Fatalf("unknown colors should be free in lenient mode, got %s", got)
	}
	cell := tr.Classify(31.9, 6.2)
	if !cell.IsGoalFor(Green) || cell.IsGoalFor(Red) {
		t.Fatalf("expected green goal cell, got %+v", cell)
	}
	if got := tr.At(-1, 0).Class; got != OutOfBounds {
		t.Fatalf("expected out of bounds, got %s", got)
	}
	if got := tr.At(40, 0); !got.Obstructs() {
		t.Fatalf("out of bounds must obstruct, got %+v", got)
	}
	goals := tr.GoalColors()
	if len(goals) != 1 || goals[0] != Green {
		t.Fatalf("unexpected goal colors: %v", goals)
	}
}

func TestFromImageNearWhiteIsNotWall(t *testing.T) {
	img := blankImage(8, 8)
	img.Set(3, 3, Color{R: 254, G: 255, B: 255})
	img.Set(7, 7, Red)
	tr, err := FromImage(img, DefaultPalette(), 0, 0)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if tr.At(3, 3).Class != Free {
		t.Fatalf("near-white must not classify as wall")
	}
}

func TestFromImageRejectsDimensionMismatch(t *testing.T) {
	img := blankImage(10, 10)
	img.Set(1, 1, Red)
	_, err := FromImage(img, DefaultPalette(), 20, 10)
	if !errors.Is(err, ErrDimensions) {
		t.Fatalf("expected ErrDimensions, got %v", err)
	}
}

func TestFromImageRequiresGoal(t *testing.T) {
	_, err := FromImage(blankImage(10, 10), DefaultPalette(), 10, 10)
	if !errors.Is(err, ErrNoGoal) {
		t.Fatalf("expected ErrNoGoal, got %v", err)
	}
}

func TestFromImageStrictPaletteRejectsUnknownColors(t *testing.T) {
	img := blankImage(10, 10)
	img.Set(1, 1, Red)
	img.Set(4, 4, Color{R: 1, G: 2, B: 3})
	palette := DefaultPalette()
	palette.Strict = true
	_, err := FromImage(img, palette, 10, 10)
	if !errors.Is(err, ErrUnknownColor) {
		t.Fatalf("expected ErrUnknownColor, got %v", err)
	}
}

func TestPaletteRejectsDuplicateColors(t *testing.T) {
	palette := Palette{Wall: White, Goals: []Color{Red, White}}
	if _, err := FromImage(blankImage(4, 4), palette, 0, 0); err == nil {
		t.Fatal("expected duplicate palette color error")
	}
}

func TestClamp(t *testing.T) {
	img := blankImage(100, 50)
	img.Set(0, 0, Blue)
	tr, err := FromImage(img, DefaultPalette(), 100, 50)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	x, y := tr.Clamp(-3, 70.5)
	if x != 0 || y != 49 {
		t.Fatalf("unexpected clamp: %f,%f", x, y)
	}
	x, y = tr.Clamp(12.25, 7.5)
	if x != 12.25 || y != 7.5 {
		t.Fatalf("in-bounds coordinates must pass through, got %f,%f", x, y)
	}
}

func TestDecodePNGRoundTrip(t *testing.T) {
	img := blankImage(30, 30)
	Fill(img, image.Rect(0, 0, 30, 2), White)
	Fill(img, image.Rect(20, 20, 25, 25), Blue)

	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	tr, err := Decode(&buf, DefaultPalette(), 30, 30)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.At(5, 1).Class != Wall {
		t.Fatalf("expected wall row")
	}
	if !tr.At(22, 22).IsGoalFor(Blue) {
		t.Fatalf("expected blue goal")
	}
}

func TestDefaultCourse(t *testing.T) {
	tr, err := NewDefault()
	if err != nil {
		t.Fatalf("default course: %v", err)
	}
	if tr.Width() != DefaultWidth || tr.Height() != DefaultHeight {
		t.Fatalf("unexpected dimensions %dx%d", tr.Width(), tr.Height())
	}
	if got := tr.At(DefaultStartX, DefaultStartY).Class; got != Free {
		t.Fatalf("start must be free, got %s", got)
	}
	if len(tr.GoalColors()) != 3 {
		t.Fatalf("expected three goal colors, got %v", tr.GoalColors())
	}
	census := tr.Census()
	if census[Wall] == 0 || census[Goal] == 0 || census[Free] == 0 {
		t.Fatalf("unexpected census %+v", census)
	}
}
