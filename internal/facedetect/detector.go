// Package facedetect locates face regions in a frame. It drives a Haar
// cascade through a staged search that relaxes its thresholds until a face
// turns up, then merges overlapping candidates and pads the survivors.
//
// Files by concern:
//
//   - detector.go: Detector, Params and the staged search.
//   - nms.go: overlap-based merging of candidate boxes.
//   - pad.go: asymmetric padding and clipping.
//   - equalize.go: grayscale conversion and histogram equalization.
//   - cascade_gocv.go / cascade_stub.go: OpenCV cascade backend (build tag
//     `gocv`) and the CGO-free stub.
package facedetect

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
)

// Search tuning. The strict pass favours precision; later passes trade
// precision for recall.
const (
	minStrictScale     = 1.1
	minStrictNeighbors = 5
	minFaceFraction    = 0.075
	minFacePixels      = 24
	relaxedFacePixels  = 20
)

// CascadeParams are the knobs handed to a single cascade pass.
type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

// Cascade runs one multi-scale cascade pass over a grayscale image.
// Implementations must be safe for concurrent use.
type Cascade interface {
	DetectMultiScale(img *image.Gray, p CascadeParams) ([]image.Rectangle, error)
	Close() error
}

// Params are the per-connection detection settings.
type Params struct {
	// ScaleFactor is the requested cascade scale step (detection_confidence).
	ScaleFactor float64
	// MinNeighbors is the requested neighbour count for the strict pass.
	MinNeighbors int
	// MinFaceSize is a pixel floor for the strict pass, in the coordinate
	// space of the image passed to Detect.
	MinFaceSize int
	// Exhaustive adds a last, very permissive pass when every other pass
	// came back empty.
	Exhaustive bool
}

type stage struct {
	name      string
	equalized bool
	params    CascadeParams
}

// Detector finds faces using a Cascade. A Detector without a cascade
// reports no faces.
type Detector struct {
	cascade Cascade
	log     zerolog.Logger
}

// NewDetector wraps a cascade. c may be nil when no backend is available.
func NewDetector(c Cascade, log zerolog.Logger) *Detector {
	return &Detector{cascade: c, log: log.With().Str("component", "facedetect").Logger()}
}

// Ready reports whether a cascade backend is attached.
func (d *Detector) Ready() bool { return d != nil && d.cascade != nil }

// Close releases the cascade backend.
func (d *Detector) Close() error {
	if d.cascade == nil {
		return nil
	}
	return d.cascade.Close()
}

// Detect returns padded face boxes in img's coordinate space (origin 0,0).
// Failures inside any pass degrade to no faces.
func (d *Detector) Detect(img image.Image, p Params) []image.Rectangle {
	if !d.Ready() || img == nil {
		return nil
	}
	gray := Grayscale(img)
	bounds := gray.Bounds()
	if bounds.Empty() {
		return nil
	}

	var equalized *image.Gray
	for _, st := range plan(bounds, p) {
		src := gray
		if st.equalized {
			if equalized == nil {
				equalized = EqualizeHist(gray)
			}
			src = equalized
		}
		boxes, err := d.runStage(src, st)
		if err != nil {
			d.log.Warn().Err(err).Str("stage", st.name).Msg("cascade pass failed")
			return nil
		}
		if len(boxes) == 0 {
			continue
		}
		merged := Suppress(boxes, OverlapThreshold)
		out := make([]image.Rectangle, 0, len(merged))
		for _, b := range merged {
			if padded := Pad(b, bounds); !padded.Empty() {
				out = append(out, padded)
			}
		}
		d.log.Debug().Str("stage", st.name).Int("candidates", len(boxes)).Int("faces", len(out)).Msg("faces found")
		return out
	}
	return nil
}

func (d *Detector) runStage(img *image.Gray, st stage) (boxes []image.Rectangle, err error) {
	defer func() {
		if r := recover(); r != nil {
			boxes = nil
			err = fmt.Errorf("cascade panic: %v", r)
		}
	}()
	return d.cascade.DetectMultiScale(img, st.params)
}

// plan builds the ordered list of passes for an image of the given bounds.
func plan(bounds image.Rectangle, p Params) []stage {
	smaller := bounds.Dx()
	if bounds.Dy() < smaller {
		smaller = bounds.Dy()
	}
	strictSize := max(int(float64(smaller)*minFaceFraction), p.MinFaceSize, minFacePixels)
	strictScale := max(p.ScaleFactor, minStrictScale)
	strictNeighbors := max(p.MinNeighbors, minStrictNeighbors)

	stages := []stage{
		{
			name: "strict",
			params: CascadeParams{
				ScaleFactor:  strictScale,
				MinNeighbors: strictNeighbors,
				MinSize:      square(strictSize),
			},
		},
		{
			name:      "equalized",
			equalized: true,
			params: CascadeParams{
				ScaleFactor:  1.08,
				MinNeighbors: max(strictNeighbors-2, 3),
				MinSize:      square(max(int(float64(strictSize)*0.8), relaxedFacePixels)),
			},
		},
		{
			name: "relaxed",
			params: CascadeParams{
				ScaleFactor:  1.05,
				MinNeighbors: max(strictNeighbors-3, 2),
				MinSize:      square(max(int(float64(strictSize)*0.6), relaxedFacePixels)),
			},
		},
	}
	if p.Exhaustive {
		stages = append(stages, stage{
			name:      "exhaustive",
			equalized: true,
			params: CascadeParams{
				ScaleFactor:  1.03,
				MinNeighbors: 2,
				MinSize:      square(relaxedFacePixels),
			},
		})
	}
	return stages
}

func square(n int) image.Point { return image.Pt(n, n) }
