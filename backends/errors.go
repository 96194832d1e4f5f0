package backends

import "github.com/pkg/errors"

var (
	// ErrOutOfMemory is wrapped by errors returned when a device allocation can't be satisfied.
	ErrOutOfMemory = errors.New("backends: device out of memory")

	// ErrInvalidBuffer is wrapped by errors returned when a buffer is of the wrong backend, was already
	// finalized, or has an unexpected size for the operation.
	ErrInvalidBuffer = errors.New("backends: invalid buffer")

	// ErrBackendFinalized is wrapped by errors returned when the backend was already finalized.
	ErrBackendFinalized = errors.New("backends: backend finalized")
)
