// Package inference turns face crops into ranked emotion scores. A single
// process-wide Handle wraps a Backend (ONNX Runtime in-process, or a remote
// classifier over HTTP) and is created lazily by a Loader on first use.
package inference

import (
	"context"
)

// DefaultLabels is used when the backend carries no label metadata. Index
// order matches the logits.
var DefaultLabels = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// Backend runs one batched forward pass over preprocessed crops.
//
// Forward receives n crops packed as NCHW float32 values, each crop being
// 3×H×W with H and W from InputSize, and returns one logit row per crop.
// Implementations must be safe for concurrent use.
type Backend interface {
	InputSize() (width, height int)
	// Labels returns the class names by logit index, or nil to use
	// DefaultLabels.
	Labels() []string
	Forward(ctx context.Context, batch []float32, n int) ([][]float32, error)
	Close() error
}

// Opener constructs a Backend. It is called by the Loader on first use and
// again after every failed attempt.
type Opener func(ctx context.Context) (Backend, error)
