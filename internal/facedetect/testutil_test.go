package facedetect

import (
	"image"
	"image/color"
	"sync"
)

// fakeCascade returns scripted results per call and records the params it saw.
type fakeCascade struct {
	mu      sync.Mutex
	results [][]image.Rectangle
	err     error
	panicOn int // 1-based call index that panics; 0 disables
	calls   []CascadeParams
	closed  bool
}

func (f *fakeCascade) DetectMultiScale(img *image.Gray, p CascadeParams) ([]image.Rectangle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	n := len(f.calls)
	if f.panicOn == n {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if n-1 < len(f.results) {
		return f.results[n-1], nil
	}
	return nil, nil
}

func (f *fakeCascade) Close() error { f.closed = true; return nil }

// solidRGBA returns a w×h image filled with c.
func solidRGBA(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
