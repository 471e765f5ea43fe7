package facedetect

import (
	"image"
	"sort"
)

// OverlapThreshold is the intersection-over-area ratio at which two
// candidates collapse into one.
const OverlapThreshold = 0.3

// Suppress merges overlapping candidates. Boxes are visited by descending
// bottom-right extent; each kept box removes every remaining box whose own
// area is covered by it at or above threshold.
func Suppress(boxes []image.Rectangle, threshold float64) []image.Rectangle {
	if len(boxes) < 2 {
		return append([]image.Rectangle(nil), boxes...)
	}
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := boxes[order[a]], boxes[order[b]]
		if ra.Max.Y != rb.Max.Y {
			return ra.Max.Y > rb.Max.Y
		}
		return ra.Max.X > rb.Max.X
	})

	suppressed := make([]bool, len(boxes))
	kept := make([]image.Rectangle, 0, len(boxes))
	for i, oi := range order {
		if suppressed[oi] {
			continue
		}
		keep := boxes[oi]
		kept = append(kept, keep)
		for _, oj := range order[i+1:] {
			if suppressed[oj] {
				continue
			}
			if overlapRatio(keep, boxes[oj]) >= threshold {
				suppressed[oj] = true
			}
		}
	}
	return kept
}

// overlapRatio is area(a ∩ b) / area(b).
func overlapRatio(a, b image.Rectangle) float64 {
	area := b.Dx() * b.Dy()
	if area <= 0 {
		return 1
	}
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	return float64(inter.Dx()*inter.Dy()) / float64(area)
}
