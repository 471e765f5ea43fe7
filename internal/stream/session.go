package stream

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emotiond/internal/perf"
	"emotiond/pkg/types"
)

// State is the processing state of a session.
type State int

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Session is one realtime connection. It is created by Registry.Connect and
// destroyed by Registry.Disconnect.
type Session struct {
	id      string
	userID  string
	created time.Time
	reg     *Registry
	log     zerolog.Logger

	mu          sync.Mutex
	emitter     Emitter
	clientID    string
	cfg         Config
	state       State
	initialized bool
	cfgDirty    bool
	proc        Processor
	mon         *perf.Monitor
	pending     *types.FrameMessage
	inflight    bool
	closed      bool
	dropped     uint64
	processed   int
	fps         float64
	rooms       map[string]struct{}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user.
func (s *Session) UserID() string { return s.userID }

// Attach sets the connection events are delivered to. Events emitted before
// Attach are dropped.
func (s *Session) Attach(e Emitter) {
	s.mu.Lock()
	s.emitter = e
	s.mu.Unlock()
}

// Config returns a copy of the live config.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the current processing state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether the session has been disconnected.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Initialize seeds a fresh processor and monitor from patch merged over the
// server defaults and replies with initialized. The processing state is
// left alone.
func (s *Session) Initialize(clientID string, rawConfig json.RawMessage) error {
	patch, err := ParseConfigPatch(rawConfig)
	if err != nil {
		s.emitError(400, err.Error(), types.FrameID{})
		return err
	}
	cfg, err := s.reg.defaults.Apply(patch)
	if err != nil {
		s.emitError(400, err.Error(), types.FrameID{})
		return err
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = s.id
	}

	s.mu.Lock()
	s.clientID = clientID
	s.cfg = cfg
	s.proc = s.reg.newProcessor(cfg, s.log)
	s.mon = perf.NewMonitor(s.reg.cfg.Monitor)
	s.initialized = true
	s.mu.Unlock()

	s.log.Info().Str("client_id", clientID).Msg("session initialized")
	s.emit(types.EventInitialized, types.InitializedPayload{
		SessionID: s.id,
		Timestamp: unixSeconds(time.Now()),
		Config: types.ServerLimits{
			MaxFrameRate:     MaxFrameRate,
			MaxResolution:    MaxResolution,
			SupportedActions: append([]string(nil), SupportedActions...),
		},
	})
	return nil
}

// JoinRoom adds the session to a named room. Detection results are then
// shared with every other member of the room.
func (s *Session) JoinRoom(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		s.emitError(400, "Room name is required", types.FrameID{})
		return ErrInvalidConfig("room name is required")
	}
	if !s.reg.joinRoom(s, room) {
		return nil
	}
	s.emitStatus("Joined room: "+room, nil)
	return nil
}

// Rooms lists the joined rooms in sorted order.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Status summarizes the session for the status endpoint.
func (s *Session) Status() types.SessionStatus {
	rooms := s.Rooms()
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionStatus{
		SessionID:       s.id,
		UserID:          s.userID,
		ClientID:        s.clientID,
		State:           s.state.String(),
		Inflight:        s.inflight,
		ProcessedFrames: s.processed,
		DroppedFrames:   s.dropped,
		FPS:             s.fps,
		ConnectedAt:     s.created.Unix(),
		Rooms:           rooms,
	}
}

// ensureProcessorLocked lazily builds the processor for sessions that sent frames
// without initialize. Callers hold s.mu.
func (s *Session) ensureProcessorLocked() {
	if s.proc == nil {
		s.proc = s.reg.newProcessor(s.cfg, s.log)
		s.log.Info().Msg("processor created without initialize")
	}
	if s.mon == nil {
		s.mon = perf.NewMonitor(s.reg.cfg.Monitor)
	}
}

func (s *Session) emit(event string, payload any) {
	s.mu.Lock()
	e, closed := s.emitter, s.closed
	s.mu.Unlock()
	if e == nil || closed {
		return
	}
	if err := e.Emit(event, payload); err != nil {
		s.log.Debug().Err(err).Str("event", event).Msg("emit failed")
	}
}

func (s *Session) emitStatus(msg string, metrics *types.PerformanceMetrics) {
	s.emit(types.EventStatus, types.StatusPayload{
		Code:      200,
		Message:   msg,
		Timestamp: unixSeconds(time.Now()),
		Metrics:   metrics,
	})
}

func (s *Session) emitError(code int, msg string, frameID types.FrameID) {
	s.emit(types.EventErrorMessage, types.ErrorPayload{
		Code:      code,
		Message:   msg,
		FrameID:   frameID,
		Timestamp: unixSeconds(time.Now()),
	})
}

// close marks the session dead; in-flight results are discarded from now on.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
}

func (s *Session) context() context.Context { return s.reg.baseCtx }

func unixSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }
