package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"emotiond/internal/facedetect"
	"emotiond/internal/inference"
	"emotiond/internal/tracker"
	"emotiond/pkg/types"
)

// FaceDetector finds face boxes in a frame.
type FaceDetector interface {
	Detect(img image.Image, p facedetect.Params) []image.Rectangle
}

// HandleLoader yields the shared inference handle.
type HandleLoader interface {
	Get(ctx context.Context) (*inference.Handle, error)
}

// Processor runs one detection cycle for a session. A Processor belongs to a
// single session and is never called concurrently.
type Processor interface {
	Process(ctx context.Context, f *types.FrameMessage) (*types.DetectionResult, error)
	Reconfigure(cfg Config)
	TrackedFaces() int
}

// ProcessorFactory builds a fresh Processor for a session.
type ProcessorFactory func(cfg Config, log zerolog.Logger) Processor

// NewPipelineFactory returns the production ProcessorFactory.
func NewPipelineFactory(det FaceDetector, loader HandleLoader, maxTrackDistance float64) ProcessorFactory {
	return func(cfg Config, log zerolog.Logger) Processor {
		return NewPipeline(cfg, det, loader, tracker.New(maxTrackDistance), log)
	}
}

// Pipeline decodes a frame, downscales it, detects faces, classifies them in
// one batch and assigns track identities.
type Pipeline struct {
	cfg     Config
	det     FaceDetector
	loader  HandleLoader
	tracker *tracker.Tracker
	log     zerolog.Logger

	frames    int
	lastBoxes []image.Rectangle
	now       func() time.Time
}

// NewPipeline builds a Pipeline. det and loader may be nil, in which case no
// faces are reported.
func NewPipeline(cfg Config, det FaceDetector, loader HandleLoader, tr *tracker.Tracker, log zerolog.Logger) *Pipeline {
	if tr == nil {
		tr = tracker.New(0)
	}
	return &Pipeline{cfg: cfg, det: det, loader: loader, tracker: tr, log: log, now: time.Now}
}

// Reconfigure swaps the config used by later cycles.
func (p *Pipeline) Reconfigure(cfg Config) { p.cfg = cfg }

// TrackedFaces is the size of the current track table.
func (p *Pipeline) TrackedFaces() int { return p.tracker.Len() }

// Process runs one cycle. Only decode failures are returned as errors;
// detector and classifier failures degrade to a result with no faces.
func (p *Pipeline) Process(ctx context.Context, f *types.FrameMessage) (*types.DetectionResult, error) {
	img, err := DecodeFrame(f.Data)
	if err != nil {
		return nil, err
	}
	work, scale := downscale(img, p.cfg.ProcessingResolution)
	p.frames++

	var boxes []image.Rectangle
	detected := true
	if p.cfg.DetectionInterval > 1 && (p.frames-1)%p.cfg.DetectionInterval != 0 && p.lastBoxes != nil {
		boxes = p.lastBoxes
		detected = false
	} else if p.det != nil {
		boxes = p.det.Detect(work, facedetect.Params{
			ScaleFactor:  p.cfg.DetectionConfidence,
			MinNeighbors: p.cfg.MinNeighbors,
			MinFaceSize:  int(float64(p.cfg.MinFaceSize) * scale),
			Exhaustive:   !p.cfg.PrioritizeRealtime,
		})
		p.lastBoxes = boxes
	}

	// Boxes live in the downscaled frame; tracking and the reported boxes use
	// source coordinates.
	src := make([]image.Rectangle, len(boxes))
	for i, b := range boxes {
		src[i] = upscaleRect(b, scale)
	}
	ids := p.tracker.Assign(src, p.now())

	res := &types.DetectionResult{
		FrameID:       f.FrameID,
		Faces:         []types.FaceResult{},
		DetectionUsed: detected,
	}
	if len(boxes) == 0 {
		return res, nil
	}

	scores, err := p.classify(ctx, work, boxes)
	if err != nil {
		p.log.Warn().Err(err).Str("frame_id", f.FrameID.String()).Int("faces", len(boxes)).Msg("emotion inference failed")
		return res, nil
	}
	for i := range boxes {
		face := types.FaceResult{FaceID: ids[i], Emotions: scores[i]}
		if p.cfg.ReturnBoundingBoxes {
			r := src[i]
			face.Box = &[4]int{r.Min.X, r.Min.Y, r.Dx(), r.Dy()}
		}
		res.Faces = append(res.Faces, face)
	}
	res.FaceDetected = len(res.Faces) > 0
	return res, nil
}

func (p *Pipeline) classify(ctx context.Context, img image.Image, boxes []image.Rectangle) (out [][]types.EmotionScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	if p.loader == nil {
		return nil, inference.ErrDependencyUnavailable("no inference backend configured")
	}
	h, err := p.loader.Get(ctx)
	if err != nil {
		return nil, err
	}
	crops := make([]image.Image, len(boxes))
	for i, b := range boxes {
		crops[i] = crop(img, b)
	}
	out, err = h.Classify(ctx, crops)
	if err != nil {
		return nil, err
	}
	if len(out) != len(boxes) {
		return nil, fmt.Errorf("classifier returned %d results for %d faces", len(out), len(boxes))
	}
	return out, nil
}

// SplitDataURI separates an optional data URI header from the base64 body.
// The returned media type is empty when there is no header.
func SplitDataURI(s string) (mediaType, body string, hasHeader bool) {
	header, rest, ok := strings.Cut(s, ",")
	if !ok {
		return "", s, false
	}
	mt := strings.TrimPrefix(header, "data:")
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt)), rest, true
}

// DecodeFrame turns a base64 payload, optionally data URI prefixed, into an
// image.
func DecodeFrame(data string) (image.Image, error) {
	_, body, _ := SplitDataURI(data)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return nil, decodeError{cause: err}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, decodeError{cause: err}
	}
	if img.Bounds().Empty() {
		return nil, decodeError{cause: fmt.Errorf("empty image")}
	}
	return img, nil
}

// downscale shrinks img to fit within target (floored at 320×240), keeping
// the aspect ratio. It never enlarges. The returned scale maps source
// coordinates to the working image.
func downscale(img image.Image, target [2]int) (image.Image, float64) {
	tw, th := max(target[0], minProcessingWidth), max(target[1], minProcessingHeight)
	b := img.Bounds()
	scale := min(float64(tw)/float64(b.Dx()), float64(th)/float64(b.Dy()))
	if scale >= 1 {
		return img, 1
	}
	w := uint(float64(b.Dx()) * scale)
	h := uint(float64(b.Dy()) * scale)
	return resize.Resize(w, h, img, resize.Bilinear), scale
}

func upscaleRect(r image.Rectangle, scale float64) image.Rectangle {
	if scale == 1 {
		return r
	}
	x, y := int(float64(r.Min.X)/scale), int(float64(r.Min.Y)/scale)
	w, h := int(float64(r.Dx())/scale), int(float64(r.Dy())/scale)
	return image.Rect(x, y, x+w, y+h)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Add(img.Bounds().Min).Intersect(img.Bounds())
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
