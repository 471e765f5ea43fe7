package facedetect

// backendUnavailableError signals that no cascade backend was compiled in.
type backendUnavailableError struct{ msg string }

func (e backendUnavailableError) Error() string { return e.msg }

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(msg string) error { return backendUnavailableError{msg: msg} }

// IsBackendUnavailable reports whether err indicates a missing cascade backend.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(backendUnavailableError)
	return ok
}

// Built reports whether this binary carries the OpenCV cascade backend.
func Built() bool { return cascadeBuilt }
