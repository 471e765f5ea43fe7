package facedetect

import "image"

// Padding fractions of the face box. The bottom gets the most room so the
// crop includes chin and neck.
const (
	padTop    = 0.10
	padBottom = 0.25
	padLeft   = 0.12
	padRight  = 0.08
)

// Pad expands r asymmetrically and clips the result to bounds.
func Pad(r image.Rectangle, bounds image.Rectangle) image.Rectangle {
	w, h := float64(r.Dx()), float64(r.Dy())
	out := image.Rect(
		r.Min.X-int(w*padLeft),
		r.Min.Y-int(h*padTop),
		r.Max.X+int(w*padRight),
		r.Max.Y+int(h*padBottom),
	)
	return out.Intersect(bounds)
}
