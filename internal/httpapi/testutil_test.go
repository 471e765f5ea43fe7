package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"emotiond/internal/stream"
	"emotiond/pkg/types"
)

type mockService struct {
	models []types.Model
	status types.StatusResponse
	ready  bool
	// connectErr is returned by Connect when set.
	connectErr error

	mu           sync.Mutex
	sessions     []*mockSession
	disconnected []string
	gotToken     string
}

func (m *mockService) ListModels() []types.Model   { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) Connect(ctx context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotToken = token
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	s := &mockSession{id: "sess-" + itoa(len(m.sessions)+1)}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *mockService) Disconnect(id string) {
	m.mu.Lock()
	m.disconnected = append(m.disconnected, id)
	m.mu.Unlock()
}

func (m *mockService) disconnectedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.disconnected...)
}

func (m *mockService) session(i int) *mockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.sessions) {
		return nil
	}
	return m.sessions[i]
}

// mockSession echoes what it receives so tests can see the dispatch.
type mockSession struct {
	id string

	mu     sync.Mutex
	em     stream.Emitter
	frames []types.FrameMessage
	rooms  []string
}

func (s *mockSession) ID() string { return s.id }

func (s *mockSession) Attach(e stream.Emitter) {
	s.mu.Lock()
	s.em = e
	s.mu.Unlock()
}

func (s *mockSession) emit(event string, payload any) {
	s.mu.Lock()
	em := s.em
	s.mu.Unlock()
	if em != nil {
		_ = em.Emit(event, payload)
	}
}

func (s *mockSession) Initialize(clientID string, raw json.RawMessage) error {
	s.emit(types.EventInitialized, types.InitializedPayload{SessionID: s.id})
	return nil
}

func (s *mockSession) Control(action string, raw json.RawMessage) error {
	s.emit(types.EventStatus, types.StatusPayload{Code: 200, Message: "control:" + action})
	return nil
}

func (s *mockSession) SubmitFrame(f *types.FrameMessage) error {
	s.mu.Lock()
	s.frames = append(s.frames, *f)
	s.mu.Unlock()
	s.emit(types.EventDetectionResult, types.DetectionResult{FrameID: f.FrameID, Faces: []types.FaceResult{}})
	return nil
}

func (s *mockSession) JoinRoom(room string) error {
	s.mu.Lock()
	s.rooms = append(s.rooms, room)
	s.mu.Unlock()
	s.emit(types.EventStatus, types.StatusPayload{Code: 200, Message: "Joined room: " + room})
	return nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

var errBadToken = errors.New("bad token")

// dialWS starts srv for h and opens a websocket with the given token.
func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/emotion-detection"
	if token != "" {
		u += "?token=" + token
	}
	c, resp, err := websocket.DefaultDialer.Dial(u, nil)
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

func recv(t *testing.T, c *websocket.Conn) types.Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env types.Envelope
	if err := c.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
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
