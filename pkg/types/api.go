package types

import (
	"bytes"
	"encoding/json"
)

// Event names carried in Envelope.Event.
const (
	EventInitialize            = "initialize"
	EventControl               = "control"
	EventVideoFrame            = "video_frame"
	EventJoinRoom              = "join_room"
	EventInitialized           = "initialized"
	EventDetectionResult       = "detection_result"
	EventStatus                = "status"
	EventPerformanceSuggestion = "performance_suggestion"
	EventErrorMessage          = "error_message"
)

// Envelope is the JSON frame exchanged over the realtime channel.
type Envelope struct {
	// Event name, e.g. video_frame or detection_result.
	// example: video_frame
	Event string `json:"event" example:"video_frame"`
	// Event payload; shape depends on Event.
	Data json.RawMessage `json:"data,omitempty" swaggertype:"object"`
}

// FrameID is a client-assigned frame identifier. Clients send either a
// JSON number or a string; the text is kept verbatim and echoed back in the
// form it arrived in.
type FrameID struct {
	text   string
	number bool
}

// NewFrameID returns a string frame id.
func NewFrameID(s string) FrameID { return FrameID{text: s} }

// NumericFrameID returns a frame id that encodes as a JSON number. n must be
// a valid JSON number literal.
func NumericFrameID(n json.Number) FrameID { return FrameID{text: string(n), number: true} }

func (id FrameID) String() string { return id.text }

// IsZero reports whether the id is absent.
func (id FrameID) IsZero() bool { return id.text == "" }

// Numeric reports whether the id arrived as a JSON number.
func (id FrameID) Numeric() bool { return id.number }

// UnmarshalJSON accepts numbers and strings.
func (id *FrameID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = FrameID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = NewFrameID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = NumericFrameID(n)
	return nil
}

// MarshalJSON emits ids that arrived as numbers as numbers, everything else
// as a string.
func (id FrameID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if id.number && json.Valid([]byte(id.text)) {
		return []byte(id.text), nil
	}
	return json.Marshal(id.text)
}

// FrameMessage is the payload of a video_frame event.
type FrameMessage struct {
	// Client-assigned identifier used for correlation only.
	// example: 42
	FrameID FrameID `json:"frame_id" swaggertype:"string" example:"42"`
	// Capture time in unix seconds.
	// example: 1700000000.25
	Timestamp float64 `json:"timestamp,omitempty" example:"1700000000.25"`
	// Base64 image, optionally prefixed with a data URI header.
	Data string `json:"data"`
	// Declared source resolution [width, height].
	// example: [640,480]
	Resolution []int `json:"resolution,omitempty" example:"640,480"`
}

// InitializeRequest is the payload of an initialize event.
type InitializeRequest struct {
	// example: webcam-1
	ClientID string          `json:"client_id,omitempty" example:"webcam-1"`
	Config   json.RawMessage `json:"config,omitempty" swaggertype:"object"`
}

// ControlRequest is the payload of a control event.
type ControlRequest struct {
	// One of start, stop, configure.
	// example: start
	Action string          `json:"action" example:"start"`
	Config json.RawMessage `json:"config,omitempty" swaggertype:"object"`
}

// JoinRoomRequest is the payload of a join_room event.
type JoinRoomRequest struct {
	// example: classroom-7
	Room string `json:"room" example:"classroom-7"`
}

// ServerLimits tells clients how hard they may push the server.
type ServerLimits struct {
	// example: 10
	MaxFrameRate int `json:"max_frame_rate" example:"10"`
	// example: [640,480]
	MaxResolution [2]int `json:"max_resolution"`
	// example: ["start","stop","configure"]
	SupportedActions []string `json:"supported_actions"`
}

// InitializedPayload is emitted in response to initialize.
type InitializedPayload struct {
	SessionID string       `json:"session_id"`
	Timestamp float64      `json:"timestamp"`
	Config    ServerLimits `json:"config"`
}

// EmotionScore is one ranked emotion for a face.
type EmotionScore struct {
	// example: happy
	Emotion string `json:"emotion" example:"happy"`
	// Softmax probability in [0,1].
	// example: 0.91
	Score float64 `json:"score" example:"0.91"`
	// example: 91
	Percentage float64 `json:"percentage" example:"91"`
}

// FaceResult is one detected face with its emotion ranking.
type FaceResult struct {
	// example: face_3
	FaceID string `json:"face_id" example:"face_3"`
	// Bounding box [x, y, w, h] in original-resolution pixels.
	Box      *[4]int        `json:"box,omitempty"`
	Emotions []EmotionScore `json:"emotions"`
}

// DetectionResult is emitted for every processed frame.
type DetectionResult struct {
	FrameID        FrameID      `json:"frame_id" swaggertype:"string"`
	Timestamp      float64      `json:"timestamp"`
	ProcessingTime float64      `json:"processing_time"`
	Latency        float64      `json:"latency"`
	FPS            float64      `json:"fps"`
	Faces          []FaceResult `json:"faces"`
	FaceDetected   bool         `json:"face_detected"`
	DetectionUsed  bool         `json:"detection_used"`
}

// PerformanceMetrics is attached to periodic status events.
type PerformanceMetrics struct {
	ProcessedFrames       int     `json:"processed_frames"`
	CurrentFPS            float64 `json:"current_fps"`
	AverageProcessingTime float64 `json:"average_processing_time"`
	LastDetectionTime     float64 `json:"last_detection_time"`
	TrackingFaces         int     `json:"tracking_faces"`
}

// StatusPayload is emitted for control acknowledgements and metrics.
type StatusPayload struct {
	Code      int                 `json:"code"`
	Message   string              `json:"message"`
	Timestamp float64             `json:"timestamp"`
	Metrics   *PerformanceMetrics `json:"metrics,omitempty"`
}

// SuggestedConfig is the advisory config in a performance_suggestion.
type SuggestedConfig struct {
	ProcessingResolution [2]int `json:"processing_resolution"`
}

// SuggestionPayload is emitted when throughput degrades.
type SuggestionPayload struct {
	Code            int             `json:"code"`
	Message         string          `json:"message"`
	SuggestedConfig SuggestedConfig `json:"suggested_config"`
	Timestamp       float64         `json:"timestamp"`
}

// ErrorPayload is emitted for per-connection failures.
type ErrorPayload struct {
	Code      int     `json:"code"`
	Message   string  `json:"message"`
	FrameID   FrameID `json:"frame_id,omitzero" swaggertype:"string"`
	Timestamp float64 `json:"timestamp"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available classifier models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: server is at capacity
	Error string `json:"error" example:"server is at capacity"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// SessionStatus summarizes a live realtime session for /status.
type SessionStatus struct {
	// example: 9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d
	SessionID string `json:"session_id"`
	// example: user-17
	UserID string `json:"user_id"`
	// example: webcam-1
	ClientID string `json:"client_id,omitempty"`
	// Idle or processing.
	// example: processing
	State string `json:"state" example:"processing"`
	// example: true
	Inflight bool `json:"inflight"`
	// example: 120
	ProcessedFrames int `json:"processed_frames"`
	// example: 4
	DroppedFrames uint64 `json:"dropped_frames"`
	// example: 8.5
	FPS float64 `json:"fps"`
	// Connection time (unix seconds).
	// example: 1700000000
	ConnectedAt int64    `json:"connected_at_unix"`
	Rooms       []string `json:"rooms,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Sessions []SessionStatus `json:"sessions"`
	// example: 3
	ActiveConnections int `json:"active_connections"`
	// example: 20
	MaxConnections int `json:"max_connections"`
	// Whether the shared inference handle has been loaded.
	// example: true
	ModelLoaded bool `json:"model_loaded"`
	// Last inference initialization error, if any.
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix"`
}
