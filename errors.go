package scopelog

import "errors"

// Error kinds that callers can test for with errors.Is. Functions in this
// package wrap them with the details of the failure.
var (
	// ErrInvalidConfiguration is returned when a RunConfig fails validation.
	// Only the configuration collector validates; the loops assume valid input.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrHardwareTimeout means a blocking read did not deliver a full batch
	// within the session's wait bound.
	ErrHardwareTimeout = errors.New("hardware read timed out")

	// ErrPartialRow marks a sink row that is truncated or malformed.
	ErrPartialRow = errors.New("partial row in sink")

	// ErrSinkUnavailable means the sink file cannot be created, written, or read.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrNeverReady is returned by RunStatus.WaitReady when the run finished
	// without ever opening the readiness gate.
	ErrNeverReady = errors.New("run finished before any data was ready")
)
