package inference

import (
	"image"

	"github.com/nfnt/resize"
)

// Tensor resizes every crop to width×height and packs them as NCHW float32
// normalized to [-1, 1] with mean 0.5 and std 0.5 per channel.
func Tensor(crops []image.Image, width, height int) []float32 {
	plane := width * height
	out := make([]float32, len(crops)*3*plane)
	for n, crop := range crops {
		resized := crop
		if b := crop.Bounds(); b.Dx() != width || b.Dy() != height {
			resized = resize.Resize(uint(width), uint(height), crop, resize.Bilinear)
		}
		b := resized.Bounds()
		base := n * 3 * plane
		idx := 0
		for y := b.Min.Y; y < b.Min.Y+height; y++ {
			for x := b.Min.X; x < b.Min.X+width; x++ {
				r, g, bl, _ := resized.At(x, y).RGBA()
				out[base+idx] = normalize(r)
				out[base+plane+idx] = normalize(g)
				out[base+2*plane+idx] = normalize(bl)
				idx++
			}
		}
	}
	return out
}

func normalize(v uint32) float32 {
	return (float32(v>>8)/255 - 0.5) / 0.5
}
