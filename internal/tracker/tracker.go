// Package tracker gives detected faces stable identities across the frames
// of one connection by greedy nearest-centroid matching.
package tracker

import (
	"image"
	"math"
	"sort"
	"strconv"
	"time"
)

// DefaultMaxDistance is the centroid displacement, in original-resolution
// pixels, below which a detection keeps its previous identity.
const DefaultMaxDistance = 100.0

// Point is a centroid in pixel space.
type Point struct {
	X, Y float64
}

// Track is the last known position of one face identity.
type Track struct {
	ID        string
	seq       int
	Centroid  Point
	UpdatedAt time.Time
}

// Tracker is owned by a single connection and is not safe for concurrent use.
type Tracker struct {
	maxDistance float64
	tracks      []Track
	next        int
}

// New returns a tracker; maxDistance <= 0 selects DefaultMaxDistance.
func New(maxDistance float64) *Tracker {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Tracker{maxDistance: maxDistance}
}

// Centroid returns the integer center of r, as (x + w/2, y + h/2).
func Centroid(r image.Rectangle) Point {
	return Point{
		X: float64(r.Min.X + r.Dx()/2),
		Y: float64(r.Min.Y + r.Dy()/2),
	}
}

// Assign returns one identity per box, in input order. Each box claims the
// closest track from the previous frame that no earlier box has claimed,
// provided it lies within the distance threshold; otherwise a new identity
// is minted. The track table is then replaced by this frame's assignments.
func (t *Tracker) Assign(boxes []image.Rectangle, now time.Time) []string {
	ids := make([]string, len(boxes))
	claimed := make([]bool, len(t.tracks))
	current := make([]Track, 0, len(boxes))

	for i, b := range boxes {
		c := Centroid(b)
		best := -1
		bestDist := math.Inf(1)
		for j, tr := range t.tracks {
			if claimed[j] {
				continue
			}
			if d := distance(c, tr.Centroid); d < bestDist {
				best, bestDist = j, d
			}
		}
		var tr Track
		if best >= 0 && bestDist < t.maxDistance {
			claimed[best] = true
			tr = t.tracks[best]
		} else {
			tr = Track{ID: "face_" + strconv.Itoa(t.next), seq: t.next}
			t.next++
		}
		tr.Centroid = c
		tr.UpdatedAt = now
		ids[i] = tr.ID
		current = append(current, tr)
	}

	sort.Slice(current, func(a, b int) bool { return current[a].seq < current[b].seq })
	t.tracks = current
	return ids
}

// Tracks returns a copy of the current track table ordered by identity.
func (t *Tracker) Tracks() []Track {
	return append([]Track(nil), t.tracks...)
}

// Len reports how many identities are currently tracked.
func (t *Tracker) Len() int { return len(t.tracks) }

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
