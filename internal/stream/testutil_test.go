package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"emotiond/internal/auth"
	"emotiond/internal/facedetect"
	"emotiond/internal/inference"
	"emotiond/pkg/types"
)

// recordingEmitter keeps every emitted event, JSON round-tripped so tests
// see exactly what a client would.
type recordingEmitter struct {
	mu     sync.Mutex
	events []types.Envelope
}

func (r *recordingEmitter) Emit(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, types.Envelope{Event: event, Data: b})
	r.mu.Unlock()
	return nil
}

func (r *recordingEmitter) named(name string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []json.RawMessage
	for _, e := range r.events {
		if e.Event == name {
			out = append(out, e.Data)
		}
	}
	return out
}

func (r *recordingEmitter) results(t *testing.T) []types.DetectionResult {
	t.Helper()
	var out []types.DetectionResult
	for _, raw := range r.named(types.EventDetectionResult) {
		var res types.DetectionResult
		if err := json.Unmarshal(raw, &res); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		out = append(out, res)
	}
	return out
}

func (r *recordingEmitter) errors(t *testing.T) []types.ErrorPayload {
	t.Helper()
	var out []types.ErrorPayload
	for _, raw := range r.named(types.EventErrorMessage) {
		var e types.ErrorPayload
		if err := json.Unmarshal(raw, &e); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func (r *recordingEmitter) statuses(t *testing.T) []types.StatusPayload {
	t.Helper()
	var out []types.StatusPayload
	for _, raw := range r.named(types.EventStatus) {
		var s types.StatusPayload
		if err := json.Unmarshal(raw, &s); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		out = append(out, s)
	}
	return out
}

// fakeProcessor sleeps for delay (or until release is closed), records the
// frames it saw and the peak number of concurrent Process calls.
type fakeProcessor struct {
	delay   time.Duration
	release chan struct{}
	err     error

	mu       sync.Mutex
	seen     []string
	cfgs     []Config
	active   int32
	peak     int32
	finished int32
}

func (p *fakeProcessor) Process(ctx context.Context, f *types.FrameMessage) (*types.DetectionResult, error) {
	n := atomic.AddInt32(&p.active, 1)
	for {
		old := atomic.LoadInt32(&p.peak)
		if n <= old || atomic.CompareAndSwapInt32(&p.peak, old, n) {
			break
		}
	}
	defer func() {
		atomic.AddInt32(&p.active, -1)
		atomic.AddInt32(&p.finished, 1)
	}()
	p.mu.Lock()
	p.seen = append(p.seen, f.FrameID.String())
	p.mu.Unlock()
	if p.release != nil {
		<-p.release
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &types.DetectionResult{FrameID: f.FrameID, Faces: []types.FaceResult{}, DetectionUsed: true}, nil
}

func (p *fakeProcessor) Reconfigure(cfg Config) {
	p.mu.Lock()
	p.cfgs = append(p.cfgs, cfg)
	p.mu.Unlock()
}

func (p *fakeProcessor) TrackedFaces() int { return 0 }

func (p *fakeProcessor) frames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

// fakeMetrics counts updates.
type fakeMetrics struct {
	mu        sync.Mutex
	active    int
	fps       float64
	received  int
	dropped   int
	processed int
	errs      map[string]int
	rejected  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errs: map[string]int{}, rejected: map[string]int{}}
}

func (m *fakeMetrics) SetActiveConnections(n int) { m.mu.Lock(); m.active = n; m.mu.Unlock() }
func (m *fakeMetrics) SetProcessingFPS(f float64) { m.mu.Lock(); m.fps = f; m.mu.Unlock() }
func (m *fakeMetrics) IncFramesReceived()         { m.mu.Lock(); m.received++; m.mu.Unlock() }
func (m *fakeMetrics) IncFramesDropped()          { m.mu.Lock(); m.dropped++; m.mu.Unlock() }
func (m *fakeMetrics) IncFramesProcessed()        { m.mu.Lock(); m.processed++; m.mu.Unlock() }
func (m *fakeMetrics) IncFrameErrors(kind string) { m.mu.Lock(); m.errs[kind]++; m.mu.Unlock() }
func (m *fakeMetrics) IncRejectedConnections(reason string) {
	m.mu.Lock()
	m.rejected[reason]++
	m.mu.Unlock()
}

type metricsSnap struct {
	active, dropped, processed, received int
}

func (m *fakeMetrics) snapshot() metricsSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metricsSnap{active: m.active, dropped: m.dropped, processed: m.processed, received: m.received}
}

// tokenVerifier accepts "ok-<user>" tokens.
var tokenVerifier = auth.VerifierFunc(func(ctx context.Context, token string) (auth.Identity, error) {
	if len(token) > 3 && token[:3] == "ok-" {
		return auth.Identity{UserID: token[3:]}, nil
	}
	return auth.Identity{}, errors.New("bad token")
})

type harness struct {
	reg     *Registry
	pub     *MemoryPublisher
	metrics *fakeMetrics
}

func newHarness(t *testing.T, factory ProcessorFactory, mutate func(*RegistryConfig)) *harness {
	t.Helper()
	h := &harness{pub: NewMemoryPublisher(), metrics: newFakeMetrics()}
	cfg := RegistryConfig{
		Verifier:     tokenVerifier,
		NewProcessor: factory,
		Metrics:      h.metrics,
		Publisher:    h.pub,
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	h.reg = reg
	return h
}

func fixedProcessor(p Processor) ProcessorFactory {
	return func(Config, zerolog.Logger) Processor { return p }
}

// connect opens a session with a recording emitter and starts processing.
func (h *harness) connect(t *testing.T, user string, start bool) (*Session, *recordingEmitter) {
	t.Helper()
	s, err := h.reg.Connect(context.Background(), "ok-"+user)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec := &recordingEmitter{}
	s.Attach(rec)
	if err := s.Initialize("", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if start {
		if err := s.Control(ActionStart, nil); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	return s, rec
}

// validPayload passes ValidateFrame without being a decodable image.
var validPayload = base64.StdEncoding.EncodeToString(make([]byte, 120))

func frame(id int) *types.FrameMessage {
	return &types.FrameMessage{
		FrameID:   types.NewFrameID(strconv.Itoa(id)),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      "data:image/jpeg;base64," + validPayload,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// pngFrame encodes a w×h image as a base64 data URI.
func pngFrame(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// fakeDetector returns fixed boxes and records what it was asked.
type fakeDetector struct {
	mu     sync.Mutex
	boxes  []image.Rectangle
	calls  int
	params []facedetect.Params
	sizes  []image.Point
}

func (d *fakeDetector) Detect(img image.Image, p facedetect.Params) []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.params = append(d.params, p)
	d.sizes = append(d.sizes, img.Bounds().Size())
	return append([]image.Rectangle(nil), d.boxes...)
}

// fakeBackend returns the same logits for every crop.
type fakeBackend struct {
	logits []float32
	err    error
	calls  int32
}

func (b *fakeBackend) InputSize() (int, int) { return 8, 8 }
func (b *fakeBackend) Labels() []string      { return nil }
func (b *fakeBackend) Close() error          { return nil }

func (b *fakeBackend) Forward(ctx context.Context, batch []float32, n int) ([][]float32, error) {
	atomic.AddInt32(&b.calls, 1)
	if b.err != nil {
		return nil, b.err
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = b.logits
	}
	return rows, nil
}

func loaderFor(b inference.Backend) *inference.Loader {
	return inference.NewLoader(func(context.Context) (inference.Backend, error) { return b, nil }, zerolog.Nop())
}

func jsonDecode(raw json.RawMessage, v any) error { return json.Unmarshal(raw, v) }
