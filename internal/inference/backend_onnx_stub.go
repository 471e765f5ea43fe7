//go:build !onnx

package inference

import "context"

// This file provides a CGO-free stub for the ONNX backend. It is compiled
// when the 'onnx' build tag is NOT set; the real backend lives in
// backend_onnx.go.

// onnxBuilt indicates this binary was compiled without ONNX Runtime support.
var onnxBuilt = false

// ONNXOptions configures the in-process ONNX Runtime backend.
type ONNXOptions struct {
	ModelPath     string
	SharedLibrary string
	Threads       int
}

// OpenONNX returns an Opener that always fails in this build.
func OpenONNX(opts ONNXOptions) Opener {
	return func(ctx context.Context) (Backend, error) {
		return nil, ErrDependencyUnavailable("onnx support not built (missing 'onnx' build tag)")
	}
}
