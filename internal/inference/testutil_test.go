package inference

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// fakeBackend returns fixed logits per crop and records forward calls.
type fakeBackend struct {
	mu       sync.Mutex
	w, h     int
	labels   []string
	logits   []float32
	err      error
	forwards []int
	lastLen  int
	closed   bool
}

func (f *fakeBackend) InputSize() (int, int) { return f.w, f.h }
func (f *fakeBackend) Labels() []string      { return f.labels }

func (f *fakeBackend) Forward(ctx context.Context, batch []float32, n int) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, n)
	f.lastLen = len(batch)
	if f.err != nil {
		return nil, f.err
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = append([]float32(nil), f.logits...)
	}
	return rows, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
