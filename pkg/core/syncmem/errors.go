// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package syncmem

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAllocation is wrapped by errors returned when host or device memory could not be allocated.
	// It is not retried internally.
	ErrAllocation = errors.New("syncmem: allocation failure")

	// ErrTransfer is wrapped by errors returned when a host<->device copy could not complete.
	// The head is left unchanged when a transfer fails.
	ErrTransfer = errors.New("syncmem: transfer failure")

	// ErrOutOfRange is wrapped by errors returned by indexed accesses outside of [0, Count()).
	// It is the only caller-recoverable error.
	ErrOutOfRange = errors.New("syncmem: index out of range")

	// ErrInvalidState is used in panics when the coherence invariants are broken. It indicates a bug in
	// this package or in the typed views built on it, and it is not meant to be handled.
	ErrInvalidState = errors.New("syncmem: invalid state")

	// ErrFinalized is wrapped by errors returned when using a SyncMem after Finalize.
	ErrFinalized = errors.New("syncmem: already finalized")
)

// invalidStatef returns an error wrapping ErrInvalidState, to be used with panic.
func invalidStatef(format string, args ...any) error {
	return errors.WithMessagef(ErrInvalidState, format, args...)
}

// markf returns an error that matches both kind (one of the sentinels above) and the cause with errors.Is,
// so backend sentinels like backends.ErrOutOfMemory are preserved.
func markf(kind, cause error, format string, args ...any) error {
	return errors.WithStack(fmt.Errorf("%w: %s: %w", kind, fmt.Sprintf(format, args...), cause))
}

// must panics if err is not nil.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
