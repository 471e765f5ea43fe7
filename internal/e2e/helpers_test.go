package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"emotiond/internal/auth"
	"emotiond/internal/facedetect"
	"emotiond/internal/httpapi"
	"emotiond/internal/inference"
	"emotiond/internal/stream"
	"emotiond/internal/tracker"
	"emotiond/pkg/types"
)

const testSecret = "e2e-secret"

// boxCascade reports one fixed face box on every pass.
type boxCascade struct {
	box image.Rectangle

	mu    sync.Mutex
	calls int
}

func (c *boxCascade) DetectMultiScale(img *image.Gray, p facedetect.CascadeParams) ([]image.Rectangle, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return []image.Rectangle{c.box}, nil
}

func (c *boxCascade) Close() error { return nil }

// newClassifierServer serves the remote classifier protocol. Every crop
// scores happy highest.
func newClassifierServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"input_size": []int{16, 16},
			"labels":     []string{"angry", "happy", "neutral"},
		})
	})
	mux.HandleFunc("/classify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Batch  int       `json:"batch"`
			Width  int       `json:"width"`
			Height int       `json:"height"`
			Pixels []float32 `json:"pixels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Pixels) != req.Batch*3*req.Width*req.Height {
			http.Error(w, "pixel count mismatch", http.StatusBadRequest)
			return
		}
		logits := make([][]float32, req.Batch)
		for i := range logits {
			logits[i] = []float32{0, 3, 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"logits": logits})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stack struct {
	srv      *httptest.Server
	registry *stream.Registry
	loader   *inference.Loader
	cascade  *boxCascade
	events   *stream.MemoryPublisher
}

// newStack wires the production pipeline with a fixed-box cascade and the
// remote classifier backend.
func newStack(t *testing.T, maxConns int, defaults stream.ConfigPatch) *stack {
	t.Helper()
	classifier := newClassifierServer(t)
	cascade := &boxCascade{box: image.Rect(180, 100, 300, 220)}
	log := zerolog.Nop()
	det := facedetect.NewDetector(cascade, log)
	loader := inference.NewLoader(inference.OpenRemote(inference.RemoteOptions{URL: classifier.URL, RequestTimeout: 5 * time.Second}), log)
	t.Cleanup(func() { _ = loader.Close() })

	events := &stream.MemoryPublisher{}
	reg, err := stream.NewRegistry(stream.RegistryConfig{
		MaxConnections: maxConns,
		Verifier:       auth.NewJWTVerifier(testSecret),
		NewProcessor:   stream.NewPipelineFactory(det, loader, tracker.DefaultMaxDistance),
		Defaults:       defaults,
		Metrics:        httpapi.PromMetrics{},
		Publisher:      events,
		Logger:         log,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc := &httpapi.Realtime{Registry: reg, Handle: loader}
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return &stack{srv: srv, registry: reg, loader: loader, cascade: cascade, events: events}
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, user, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (s *stack) wsURL(tok string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/emotion-detection?token=" + tok
}

func (s *stack) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(s.wsURL(token(t, user)), nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, code)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.WriteJSON(types.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// recvUntil reads envelopes until one named event arrives.
func recvUntil(t *testing.T, c *websocket.Conn, event string) types.Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		var env types.Envelope
		if err := c.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// pngFrame encodes a w×h gradient as a data URI.
func pngFrame(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
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
