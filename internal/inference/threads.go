package inference

import "fmt"

// threadSetter is the part of the ONNX Runtime session options that controls
// parallelism.
type threadSetter interface {
	SetIntraOpNumThreads(n int) error
	SetInterOpNumThreads(n int) error
}

// applyThreads pins intra-op parallelism to n and runs operators one at a
// time. n <= 0 keeps the runtime defaults.
func applyThreads(so threadSetter, n int) error {
	if n <= 0 {
		return nil
	}
	if err := so.SetIntraOpNumThreads(n); err != nil {
		return fmt.Errorf("onnx intra-op threads: %w", err)
	}
	if err := so.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("onnx inter-op threads: %w", err)
	}
	return nil
}
