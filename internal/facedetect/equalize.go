package facedetect

import (
	"image"
	"image/draw"
)

// Grayscale converts img to an 8-bit gray image whose bounds start at 0,0.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// EqualizeHist spreads the intensity histogram of src over the full 0..255
// range, matching OpenCV's equalizeHist. src is not modified.
func EqualizeHist(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	total := b.Dx() * b.Dy()
	if total == 0 {
		return dst
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, y):][:b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}

	first := 0
	for hist[first] == 0 {
		first++
	}
	if hist[first] == total {
		copy(dst.Pix, src.Pix)
		return dst
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		v := float64(sum)*scale + 0.5
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		so := src.PixOffset(b.Min.X, y)
		do := dst.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[do+x] = lut[src.Pix[so+x]]
		}
	}
	return dst
}
