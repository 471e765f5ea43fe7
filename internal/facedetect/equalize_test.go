package facedetect

import (
	"image"
	"image/color"
	"testing"
)

func TestEqualizeHist_StretchesRange(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 1))
	for i, v := range []uint8{100, 101, 102, 103} {
		src.SetGray(i, 0, color.Gray{Y: v})
	}
	dst := EqualizeHist(src)
	if dst.GrayAt(0, 0).Y != 0 {
		t.Fatalf("darkest pixel should map to 0, got %d", dst.GrayAt(0, 0).Y)
	}
	if dst.GrayAt(3, 0).Y != 255 {
		t.Fatalf("brightest pixel should map to 255, got %d", dst.GrayAt(3, 0).Y)
	}
	if src.GrayAt(0, 0).Y != 100 {
		t.Fatalf("source modified")
	}
}

func TestEqualizeHist_FlatImageUnchanged(t *testing.T) {
	src := Grayscale(solidRGBA(8, 8, color.Gray{Y: 77}))
	dst := EqualizeHist(src)
	if dst.GrayAt(3, 3).Y != 77 {
		t.Fatalf("flat image changed: %d", dst.GrayAt(3, 3).Y)
	}
}

func TestGrayscale_RebasesOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 30, 20))
	g := Grayscale(img)
	if g.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Fatalf("bounds=%v", g.Bounds())
	}
}
