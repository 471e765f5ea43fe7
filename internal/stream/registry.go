package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"emotiond/internal/auth"
	"emotiond/internal/perf"
	"emotiond/pkg/types"
)

// Default registry settings.
const (
	DefaultMaxConnections = 20
)

// RegistryConfig configures a Registry. Zero values select defaults.
type RegistryConfig struct {
	// MaxConnections caps live sessions; connects beyond it are rejected
	// before authentication.
	MaxConnections int
	Verifier       auth.Verifier
	// NewProcessor builds a session's pipeline.
	NewProcessor ProcessorFactory
	// Defaults are merged over DefaultConfig for every new session.
	Defaults  ConfigPatch
	Monitor   perf.MonitorConfig
	Metrics   Metrics
	Publisher EventPublisher
	Logger    zerolog.Logger
	// BaseContext is handed to processors. In-flight cycles keep running
	// after their session disconnects, so it must outlive sessions.
	BaseContext context.Context
}

// Registry owns every live session and the connection count.
type Registry struct {
	cfg       RegistryConfig
	defaults  Config
	metrics   Metrics
	publisher EventPublisher
	log       zerolog.Logger
	baseCtx   context.Context
	started   time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	reserved int
	rooms    map[string]map[string]*Session
}

// NewRegistry validates cfg and returns an empty Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	defaults, err := DefaultConfig().Apply(cfg.Defaults)
	if err != nil {
		return nil, err
	}
	if cfg.NewProcessor == nil {
		cfg.NewProcessor = NewPipelineFactory(nil, nil, 0)
	}
	r := &Registry{
		cfg:       cfg,
		defaults:  defaults,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "stream").Logger(),
		baseCtx:   cfg.BaseContext,
		started:   time.Now(),
		sessions:  make(map[string]*Session),
		rooms:     make(map[string]map[string]*Session),
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	if r.publisher == nil {
		r.publisher = noopPublisher{}
	}
	if r.baseCtx == nil {
		r.baseCtx = context.Background()
	}
	r.metrics.SetActiveConnections(0)
	return r, nil
}

// Connect admits a new session. Capacity is checked first and a slot is
// reserved while the token is verified, so concurrent connects cannot
// overshoot MaxConnections.
func (r *Registry) Connect(ctx context.Context, token string) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions)+r.reserved >= r.cfg.MaxConnections {
		live := len(r.sessions)
		r.mu.Unlock()
		r.metrics.IncRejectedConnections("capacity")
		r.log.Warn().Int("live", live).Int("max", r.cfg.MaxConnections).Msg("connection limit reached")
		return nil, ErrCapacityExceeded(r.cfg.MaxConnections)
	}
	r.reserved++
	r.mu.Unlock()

	id, err := r.verify(ctx, token)
	if err != nil {
		r.mu.Lock()
		r.reserved--
		r.mu.Unlock()
		r.metrics.IncRejectedConnections("auth")
		r.log.Warn().Err(err).Msg("authentication failed")
		return nil, ErrAuthentication(err)
	}

	s := &Session{
		id:      uuid.NewString(),
		userID:  id.UserID,
		created: time.Now(),
		reg:     r,
		cfg:     r.defaults,
		state:   Idle,
		rooms:   make(map[string]struct{}),
	}
	s.clientID = s.id
	s.log = r.log.With().Str("session_id", s.id).Str("user_id", s.userID).Logger()

	r.mu.Lock()
	r.reserved--
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveConnections(n)
	r.publish(Event{Name: EventSessionConnected, SessionID: s.id, Fields: map[string]any{"user_id": s.userID}})
	s.log.Info().Int("live", n).Msg("client connected")
	return s, nil
}

func (r *Registry) verify(ctx context.Context, token string) (auth.Identity, error) {
	if r.cfg.Verifier == nil {
		return auth.Identity{}, errNoVerifier
	}
	if token == "" {
		return auth.Identity{}, errTokenRequired
	}
	id, err := r.cfg.Verifier.Verify(ctx, token)
	if err != nil {
		return auth.Identity{}, err
	}
	if id.UserID == "" {
		return auth.Identity{}, errNoSubject
	}
	return id, nil
}

// Disconnect removes a session. A cycle already running for it completes in
// the background and its result is discarded.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	for room, members := range r.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	s.close()
	r.metrics.SetActiveConnections(n)
	r.publish(Event{Name: EventSessionDisconnected, SessionID: id})
	s.log.Info().Int("live", n).Msg("client disconnected")
}

// Get returns a live session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// MaxConnections is the configured cap.
func (r *Registry) MaxConnections() int { return r.cfg.MaxConnections }

// Defaults returns the per-session config new sessions start from.
func (r *Registry) Defaults() Config { return r.defaults }

// Uptime is the time since the registry was created.
func (r *Registry) Uptime() time.Duration { return time.Since(r.started) }

// Sessions snapshots live sessions ordered by connect time.
func (r *Registry) Sessions() []types.SessionStatus {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()
	out := make([]types.SessionStatus, 0, len(list))
	for _, s := range list {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (r *Registry) joinRoom(s *Session, room string) bool {
	r.mu.Lock()
	if _, live := r.sessions[s.id]; !live {
		r.mu.Unlock()
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[s.id] = s
	r.mu.Unlock()

	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
	s.log.Info().Str("room", room).Msg("joined room")
	return true
}

// shareWithRooms delivers a result to every other member of the sender's
// rooms, once per peer.
func (r *Registry) shareWithRooms(from *Session, res *types.DetectionResult) {
	rooms := from.Rooms()
	if len(rooms) == 0 {
		return
	}
	r.mu.Lock()
	peers := make(map[string]*Session)
	for _, room := range rooms {
		for id, peer := range r.rooms[room] {
			if id != from.id {
				peers[id] = peer
			}
		}
	}
	r.mu.Unlock()
	for _, peer := range peers {
		peer.emit(types.EventDetectionResult, res)
	}
}

func (r *Registry) newProcessor(cfg Config, log zerolog.Logger) Processor {
	return r.cfg.NewProcessor(cfg, log)
}

func (r *Registry) publish(e Event) { r.publisher.Publish(e) }
