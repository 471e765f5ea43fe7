package inference

import "fmt"

// dependencyUnavailableError signals that a backend cannot run in this
// build (missing build tag) or configuration.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}

// shapeError reports a backend answer that does not fit the request.
type shapeError struct {
	want, got int
	what      string
}

func (e shapeError) Error() string {
	return fmt.Sprintf("inference %s mismatch: want %d, got %d", e.what, e.want, e.got)
}

// ONNXBuilt reports whether this binary carries the ONNX Runtime backend.
func ONNXBuilt() bool { return onnxBuilt }
