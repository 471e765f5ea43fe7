package stream

// Metrics receives gauge and counter updates from the registry and sessions.
// The transport layer backs it with Prometheus collectors.
type Metrics interface {
	SetActiveConnections(n int)
	SetProcessingFPS(fps float64)
	IncFramesReceived()
	IncFramesDropped()
	IncFramesProcessed()
	IncFrameErrors(kind string)
	IncRejectedConnections(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveConnections(int)      {}
func (noopMetrics) SetProcessingFPS(float64)      {}
func (noopMetrics) IncFramesReceived()            {}
func (noopMetrics) IncFramesDropped()             {}
func (noopMetrics) IncFramesProcessed()           {}
func (noopMetrics) IncFrameErrors(string)         {}
func (noopMetrics) IncRejectedConnections(string) {}

// Emitter delivers an event to one client connection. Implementations must
// serialise concurrent calls.
type Emitter interface {
	Emit(event string, payload any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, payload any) error

// Emit calls f.
func (f EmitterFunc) Emit(event string, payload any) error { return f(event, payload) }
