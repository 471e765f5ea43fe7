package stream

import "errors"

// capacityExceededError signals the live connection cap was hit (HTTP 503).
type capacityExceededError struct{ max int }

func (e capacityExceededError) Error() string { return "server is at capacity, please try again later" }

// ErrCapacityExceeded constructs a capacityExceededError.
func ErrCapacityExceeded(max int) error { return capacityExceededError{max: max} }

// IsCapacityExceeded reports whether err is a capacity rejection.
func IsCapacityExceeded(err error) bool {
	var e capacityExceededError
	return errors.As(err, &e)
}

// authenticationError signals a rejected token (HTTP 401).
type authenticationError struct{ cause error }

func (e authenticationError) Error() string {
	if e.cause == nil {
		return "authentication failed"
	}
	return "authentication failed: " + e.cause.Error()
}

func (e authenticationError) Unwrap() error { return e.cause }

// ErrAuthentication wraps a verifier failure.
func ErrAuthentication(cause error) error { return authenticationError{cause: cause} }

// IsAuthenticationFailure reports whether err is an authentication rejection.
func IsAuthenticationFailure(err error) bool {
	var e authenticationError
	return errors.As(err, &e)
}

// malformedFrameError marks a frame that failed structural validation.
type malformedFrameError struct{ msg string }

func (e malformedFrameError) Error() string { return "invalid frame: " + e.msg }

// ErrMalformedFrame constructs a malformedFrameError.
func ErrMalformedFrame(msg string) error { return malformedFrameError{msg: msg} }

// IsMalformedFrame reports whether err is a validation failure.
func IsMalformedFrame(err error) bool {
	var e malformedFrameError
	return errors.As(err, &e)
}

// decodeError marks a payload whose image bytes could not be decoded.
type decodeError struct{ cause error }

func (e decodeError) Error() string { return "failed to decode frame: " + e.cause.Error() }

func (e decodeError) Unwrap() error { return e.cause }

// IsDecodeFailure reports whether err is a decode failure.
func IsDecodeFailure(err error) bool {
	var e decodeError
	return errors.As(err, &e)
}

// unknownActionError is returned for control actions outside start/stop/configure.
type unknownActionError struct{ action string }

func (e unknownActionError) Error() string { return "Unknown action: " + e.action }

// IsUnknownAction reports whether err is an unknown control action.
func IsUnknownAction(err error) bool {
	var e unknownActionError
	return errors.As(err, &e)
}

// invalidConfigError marks a config patch with bad types or values.
type invalidConfigError struct{ msg string }

func (e invalidConfigError) Error() string { return "invalid config: " + e.msg }

// ErrInvalidConfig constructs an invalidConfigError.
func ErrInvalidConfig(msg string) error { return invalidConfigError{msg: msg} }

// IsInvalidConfig reports whether err is a config validation failure.
func IsInvalidConfig(err error) bool {
	var e invalidConfigError
	return errors.As(err, &e)
}

// notStartedError is returned for frames that arrive while the session is idle.
type notStartedError struct{}

func (notStartedError) Error() string { return "Processing not started" }

// IsNotStarted reports whether err is an idle-session frame rejection.
func IsNotStarted(err error) bool {
	var e notStartedError
	return errors.As(err, &e)
}

var (
	errNoVerifier    = errors.New("no token verifier configured")
	errTokenRequired = errors.New("authentication required")
	errNoSubject     = errors.New("invalid authentication token")
)
