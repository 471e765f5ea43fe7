package stream

import "github.com/rs/zerolog"

// Lifecycle event names.
const (
	EventSessionConnected    = "session_connected"
	EventSessionDisconnected = "session_disconnected"
	EventFrameDropped        = "frame_dropped"
	EventCycleDone           = "cycle_done"
	EventSuggestion          = "suggestion"
)

// Event is a session lifecycle event: a name, the session it concerns and
// optional key/value fields.
type Event struct {
	Name      string
	SessionID string
	Fields    map[string]any
}

// EventPublisher receives lifecycle events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to a zerolog logger at debug level, with
// session lifecycle transitions at info.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	var ev *zerolog.Event
	switch e.Name {
	case EventSessionConnected, EventSessionDisconnected, EventSuggestion:
		ev = p.Log.Info()
	default:
		ev = p.Log.Debug()
	}
	ev.Str("event", e.Name).Str("session_id", e.SessionID).Fields(e.Fields).Msg("stream event")
}
