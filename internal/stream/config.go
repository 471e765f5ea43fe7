package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Server limits advertised in the initialized event.
const (
	MaxFrameRate = 10
)

var (
	MaxResolution    = [2]int{640, 480}
	SupportedActions = []string{ActionStart, ActionStop, ActionConfigure}
)

// Floors applied to processing_resolution when downscaling a frame.
const (
	minProcessingWidth  = 320
	minProcessingHeight = 240
)

// Config is the per-connection detection configuration.
type Config struct {
	// DetectionInterval runs the detector on every Nth processed frame and
	// reuses the last boxes in between.
	DetectionInterval int `json:"detection_interval" yaml:"detection_interval" toml:"detection_interval"`
	// MinFaceSize is a pixel floor on face size in source coordinates.
	MinFaceSize int `json:"min_face_size" yaml:"min_face_size" toml:"min_face_size"`
	// ProcessingResolution bounds the frame before detection, [w, h].
	ProcessingResolution [2]int `json:"processing_resolution" yaml:"processing_resolution" toml:"processing_resolution"`
	// DetectionConfidence is the cascade scale factor; higher is stricter.
	DetectionConfidence float64 `json:"detection_confidence" yaml:"detection_confidence" toml:"detection_confidence"`
	MinNeighbors        int     `json:"min_neighbors" yaml:"min_neighbors" toml:"min_neighbors"`
	ReturnBoundingBoxes bool    `json:"return_bounding_boxes" yaml:"return_bounding_boxes" toml:"return_bounding_boxes"`
	// PrioritizeRealtime skips the exhaustive last detection pass.
	PrioritizeRealtime bool `json:"prioritize_realtime" yaml:"prioritize_realtime" toml:"prioritize_realtime"`
}

// DefaultConfig returns the built-in per-connection defaults.
func DefaultConfig() Config {
	return Config{
		DetectionInterval:    1,
		MinFaceSize:          64,
		ProcessingResolution: [2]int{480, 360},
		DetectionConfidence:  1.1,
		MinNeighbors:         5,
		ReturnBoundingBoxes:  true,
		PrioritizeRealtime:   true,
	}
}

// ConfigPatch is a partial Config; nil fields are left unchanged.
type ConfigPatch struct {
	DetectionInterval    *int     `json:"detection_interval,omitempty" yaml:"detection_interval,omitempty" toml:"detection_interval,omitempty"`
	MinFaceSize          *int     `json:"min_face_size,omitempty" yaml:"min_face_size,omitempty" toml:"min_face_size,omitempty"`
	ProcessingResolution *[2]int  `json:"processing_resolution,omitempty" yaml:"processing_resolution,omitempty" toml:"processing_resolution,omitempty"`
	DetectionConfidence  *float64 `json:"detection_confidence,omitempty" yaml:"detection_confidence,omitempty" toml:"detection_confidence,omitempty"`
	MinNeighbors         *int     `json:"min_neighbors,omitempty" yaml:"min_neighbors,omitempty" toml:"min_neighbors,omitempty"`
	ReturnBoundingBoxes  *bool    `json:"return_bounding_boxes,omitempty" yaml:"return_bounding_boxes,omitempty" toml:"return_bounding_boxes,omitempty"`
	PrioritizeRealtime   *bool    `json:"prioritize_realtime,omitempty" yaml:"prioritize_realtime,omitempty" toml:"prioritize_realtime,omitempty"`
}

// ParseConfigPatch decodes a JSON object into a patch. Unknown keys are
// ignored; empty input and null yield an empty patch.
func ParseConfigPatch(raw json.RawMessage) (ConfigPatch, error) {
	var p ConfigPatch
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ConfigPatch{}, ErrInvalidConfig(err.Error())
	}
	return p, nil
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool { return p == ConfigPatch{} }

// Apply returns c with p merged over it. The result is validated as a whole
// and c is returned unchanged alongside the error when it is invalid.
func (c Config) Apply(p ConfigPatch) (Config, error) {
	out := c
	if p.DetectionInterval != nil {
		out.DetectionInterval = *p.DetectionInterval
	}
	if p.MinFaceSize != nil {
		out.MinFaceSize = *p.MinFaceSize
	}
	if p.ProcessingResolution != nil {
		out.ProcessingResolution = *p.ProcessingResolution
	}
	if p.DetectionConfidence != nil {
		out.DetectionConfidence = *p.DetectionConfidence
	}
	if p.MinNeighbors != nil {
		out.MinNeighbors = *p.MinNeighbors
	}
	if p.ReturnBoundingBoxes != nil {
		out.ReturnBoundingBoxes = *p.ReturnBoundingBoxes
	}
	if p.PrioritizeRealtime != nil {
		out.PrioritizeRealtime = *p.PrioritizeRealtime
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.DetectionInterval < 1:
		return ErrInvalidConfig(fmt.Sprintf("detection_interval must be >= 1, got %d", c.DetectionInterval))
	case c.MinFaceSize < 0:
		return ErrInvalidConfig(fmt.Sprintf("min_face_size must be >= 0, got %d", c.MinFaceSize))
	case c.ProcessingResolution[0] <= 0 || c.ProcessingResolution[1] <= 0:
		return ErrInvalidConfig(fmt.Sprintf("processing_resolution must be positive, got %v", c.ProcessingResolution))
	case c.DetectionConfidence <= 1:
		return ErrInvalidConfig(fmt.Sprintf("detection_confidence must be > 1, got %v", c.DetectionConfidence))
	case c.MinNeighbors < 0:
		return ErrInvalidConfig(fmt.Sprintf("min_neighbors must be >= 0, got %d", c.MinNeighbors))
	}
	return nil
}
