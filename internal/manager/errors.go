package manager

import "errors"

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// ErrTooBusy constructs a tooBusyError for modelID.
func ErrTooBusy(modelID string) error { return tooBusyError{modelID: modelID} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notConfiguredError is returned for unknown model ids and for descriptors
// whose kind does not fit the requested operation. It is never retried.
type notConfiguredError struct {
	id     string
	reason string
}

func (e notConfiguredError) Error() string {
	if e.reason != "" {
		return "model not configured: " + e.id + " (" + e.reason + ")"
	}
	return "model not configured: " + e.id
}

// ErrNotConfigured constructs a notConfiguredError for id.
func ErrNotConfigured(id, reason string) error { return notConfiguredError{id: id, reason: reason} }

// IsNotConfigured reports whether err indicates an unknown or mismatched model.
func IsNotConfigured(err error) bool {
	var e notConfiguredError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp)
// so the HTTP layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// unsupportedFormatError is raised before any load work for formats this
// host cannot execute.
type unsupportedFormatError struct{ format string }

func (e unsupportedFormatError) Error() string { return "unsupported model format: " + e.format }

// ErrUnsupportedFormat constructs an unsupportedFormatError.
func ErrUnsupportedFormat(format string) error { return unsupportedFormatError{format: format} }

// IsUnsupportedFormat reports whether err indicates an unsupported weight format.
func IsUnsupportedFormat(err error) bool {
	var e unsupportedFormatError
	return errors.As(err, &e)
}
