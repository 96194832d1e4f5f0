// Package backendtest provides helpers to test code that uses backends.
package backendtest

import (
	"sync"

	"github.com/gomlx/syncmem/backends"
	"github.com/pkg/errors"
)

// ErrInjected is wrapped by the failures injected by Faulty.
var ErrInjected = errors.New("backendtest: injected failure")

// Faulty wraps a backend and fails the operations selected with FailAllocs, FailFromHost and FailToHost.
// It also counts the calls to each operation.
type Faulty struct {
	backends.Backend

	mu                                   sync.Mutex
	failAllocs, failFromHost, failToHost int
	Allocs, Frees, FromHost, ToHost      int
}

var _ backends.Backend = (*Faulty)(nil)

// NewFaulty wraps backend.
func NewFaulty(backend backends.Backend) *Faulty {
	return &Faulty{Backend: backend}
}

// FailAllocs makes the next n allocations fail with an error wrapping backends.ErrOutOfMemory.
func (f *Faulty) FailAllocs(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAllocs = n
}

// FailFromHost makes the next n host to device transfers fail.
func (f *Faulty) FailFromHost(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFromHost = n
}

// FailToHost makes the next n device to host transfers fail.
func (f *Faulty) FailToHost(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failToHost = n
}

// take decrements counter if positive and reports whether the operation should fail.
func take(counter *int) bool {
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

// BufferAlloc implements backends.DataInterface.
func (f *Faulty) BufferAlloc(size int) (backends.Buffer, error) {
	f.mu.Lock()
	f.Allocs++
	fail := take(&f.failAllocs)
	f.mu.Unlock()
	if fail {
		return nil, errors.Wrapf(backends.ErrOutOfMemory, "%v: allocation of %d bytes", ErrInjected, size)
	}
	return f.Backend.BufferAlloc(size)
}

// BufferFinalize implements backends.DataInterface.
func (f *Faulty) BufferFinalize(buffer backends.Buffer) error {
	f.mu.Lock()
	f.Frees++
	f.mu.Unlock()
	return f.Backend.BufferFinalize(buffer)
}

// BufferFromHost implements backends.DataInterface.
func (f *Faulty) BufferFromHost(buffer backends.Buffer, src []byte) error {
	f.mu.Lock()
	f.FromHost++
	fail := take(&f.failFromHost)
	f.mu.Unlock()
	if fail {
		return errors.Wrap(ErrInjected, "host to device transfer")
	}
	return f.Backend.BufferFromHost(buffer, src)
}

// BufferToHost implements backends.DataInterface.
func (f *Faulty) BufferToHost(buffer backends.Buffer, dst []byte) error {
	f.mu.Lock()
	f.ToHost++
	fail := take(&f.failToHost)
	f.mu.Unlock()
	if fail {
		return errors.Wrap(ErrInjected, "device to host transfer")
	}
	return f.Backend.BufferToHost(buffer, dst)
}
