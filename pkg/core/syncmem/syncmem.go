// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package syncmem implements SyncMem, a lazily synchronized block of memory shadowed in the host and in a
// device (accelerator), with exactly one authoritative copy at any time.
//
// A SyncMem owns at most one host allocation and at most one device allocation, both of the same fixed byte
// size. Allocations happen on first access of each side, and copies happen only when the side requested is not
// the authoritative one (see Head). Requesting a side (HostData, DeviceData) marks it as authoritative, since
// the caller is assumed to write through the returned memory: "the last accessor wins".
//
// SyncMem knows nothing about element types, see package syncdata for a typed view.
//
// A SyncMem is not safe for concurrent use: it has a single owner, and callers needing concurrent access must
// provide their own synchronization. Memory returned by HostData or DeviceData is only valid until the next
// call that changes the head or the size (HostData, DeviceData, ToHost, ToDevice, Resize, Finalize): it must not
// be retained across them.
package syncmem

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/syncmem/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// noCopy may be embedded into structs which must not be copied after the first use.
// See https://golang.org/issues/8005#issuecomment-190753527 for details: it is checked by `go vet`.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// SyncMem is a block of memory with a host side and a device side, see package documentation.
//
// It must be created with New and used through a pointer.
type SyncMem struct {
	_ noCopy

	backend backends.Backend
	size    int

	// host and device are owned by SyncMem and lazily allocated: nil if not allocated.
	host   []byte
	device backends.Buffer

	head      Head
	stats     Stats
	finalized bool
}

// New creates a SyncMem with size bytes on the given backend.
// No memory is allocated until one of the sides is accessed, and the head starts as Uninitialized.
func New(backend backends.Backend, size int) (*SyncMem, error) {
	if backend == nil {
		return nil, errors.New("syncmem.New: backend cannot be nil")
	}
	if size < 0 {
		return nil, errors.Errorf("syncmem.New: size cannot be negative, got %d", size)
	}
	return &SyncMem{backend: backend, size: size}, nil
}

// MustNew creates a SyncMem with size bytes on the given backend, and panics on error.
func MustNew(backend backends.Backend, size int) *SyncMem {
	m, err := New(backend, size)
	must(err)
	return m
}

// Size returns the size in bytes.
func (m *SyncMem) Size() int { return m.size }

// Head returns which side holds the authoritative value. It doesn't change any state.
func (m *SyncMem) Head() Head { return m.head }

// Backend used for the device side.
func (m *SyncMem) Backend() backends.Backend { return m.backend }

// Stats returns the counters of allocations and transfers so far.
func (m *SyncMem) Stats() Stats { return m.stats }

// IsFinalized returns whether Finalize was called.
func (m *SyncMem) IsFinalized() bool { return m.finalized }

// HasHost returns whether the host side is allocated. Its contents are only meaningful if Head is HostValid.
func (m *SyncMem) HasHost() bool { return m.host != nil }

// HasDevice returns whether the device side is allocated. Its contents are only meaningful if Head is DeviceValid.
func (m *SyncMem) HasDevice() bool { return m.device != nil }

// HostData returns the host memory, allocating it if needed and copying from the device if the device is
// authoritative. The host becomes authoritative.
//
// The returned slice has exactly Size() bytes (it is not nil even if Size() is 0), and it is only valid until the
// next call that changes the head or the size.
func (m *SyncMem) HostData() ([]byte, error) {
	if err := m.sync(requestHost); err != nil {
		return nil, err
	}
	return m.host, nil
}

// MustHostData is like HostData, but panics on error.
func (m *SyncMem) MustHostData() []byte {
	host, err := m.HostData()
	must(err)
	return host
}

// DeviceData returns the device buffer, allocating it if needed and copying from the host if the host is
// authoritative. The device becomes authoritative.
//
// The returned buffer is only valid until the next call that changes the head or the size, and it remains owned
// by the SyncMem: it must not be finalized by the caller.
func (m *SyncMem) DeviceData() (backends.Buffer, error) {
	if err := m.sync(requestDevice); err != nil {
		return nil, err
	}
	return m.device, nil
}

// MustDeviceData is like DeviceData, but panics on error.
func (m *SyncMem) MustDeviceData() backends.Buffer {
	device, err := m.DeviceData()
	must(err)
	return device
}

// ToHost makes the host authoritative: if the device is authoritative it is copied to the host; if the SyncMem is
// uninitialized, the host is allocated but no copy happens (its contents are undefined, not necessarily zeros).
// It is a no-op if the host is already authoritative.
func (m *SyncMem) ToHost() error {
	return m.sync(forceHost)
}

// MustToHost is like ToHost, but panics on error.
func (m *SyncMem) MustToHost() {
	must(m.ToHost())
}

// ToDevice makes the device authoritative, it is the mirror of ToHost.
func (m *SyncMem) ToDevice() error {
	return m.sync(forceDevice)
}

// MustToDevice is like ToDevice, but panics on error.
func (m *SyncMem) MustToDevice() {
	must(m.ToDevice())
}

// Resize releases both sides, changes the size and resets the head to Uninitialized, regardless of the previous
// state. The previous contents are lost, and memory previously returned by HostData or DeviceData becomes invalid.
func (m *SyncMem) Resize(size int) error {
	if size < 0 {
		return errors.Errorf("SyncMem.Resize: size cannot be negative, got %d", size)
	}
	if err := m.sync(resize); err != nil {
		return err
	}
	klog.V(1).Infof("syncmem: resized from %d to %d bytes", m.size, size)
	m.size = size
	return nil
}

// MustResize is like Resize, but panics on error.
func (m *SyncMem) MustResize(size int) {
	must(m.Resize(size))
}

// Finalize releases both sides immediately. Any later use of the SyncMem returns an error wrapping ErrFinalized.
// It is a no-op if already finalized.
//
// If the backend was already finalized, the device buffer is assumed to be already released.
func (m *SyncMem) Finalize() error {
	if m.finalized {
		return nil
	}
	err := m.release()
	m.finalized = true
	return err
}

// sync executes the transition for the request, see plan.
func (m *SyncMem) sync(req request) error {
	if m.finalized {
		return errors.Wrapf(ErrFinalized, "SyncMem.%s", req)
	}
	act := plan(m.head, req)
	if act != actionNone && klog.V(3).Enabled() {
		klog.Infof("syncmem: %s with head %s: %s (%d bytes)", req, m.head, act, m.size)
	}
	switch act {
	case actionNone:
		// Already authoritative.
	case actionClaimHost:
		if err := m.allocHost(); err != nil {
			return err
		}
		m.head = HostValid
	case actionClaimDevice:
		if err := m.allocDevice(); err != nil {
			return err
		}
		m.head = DeviceValid
	case actionCopyToHost:
		if err := m.allocHost(); err != nil {
			return err
		}
		if err := m.backend.BufferToHost(m.device, m.host); err != nil {
			return markf(ErrTransfer, err, "device->host copy of %d bytes", m.size)
		}
		m.stats.DeviceToHost++
		m.stats.BytesDeviceToHost += int64(m.size)
		m.head = HostValid
	case actionCopyToDevice:
		if err := m.allocDevice(); err != nil {
			return err
		}
		if err := m.backend.BufferFromHost(m.device, m.host); err != nil {
			return markf(ErrTransfer, err, "host->device copy of %d bytes", m.size)
		}
		m.stats.HostToDevice++
		m.stats.BytesHostToDevice += int64(m.size)
		m.head = DeviceValid
	case actionRelease:
		if err := m.release(); err != nil {
			return err
		}
	default:
		panic(invalidStatef("unknown action %s for request %s", act, req))
	}
	m.checkInvariants()
	return nil
}

// allocHost allocates the host side if not yet allocated.
func (m *SyncMem) allocHost() error {
	if m.host != nil {
		return nil
	}
	host, err := allocHostBytes(m.size)
	if err != nil {
		return err
	}
	m.host = host
	m.stats.HostAllocs++
	klog.V(2).Infof("syncmem: allocated %s in host", humanize.IBytes(uint64(m.size)))
	return nil
}

// allocDevice allocates the device side if not yet allocated.
func (m *SyncMem) allocDevice() error {
	if m.device != nil {
		return nil
	}
	device, err := m.backend.BufferAlloc(m.size)
	if err != nil {
		return markf(ErrAllocation, err, "device allocation of %d bytes in backend %q", m.size, m.backend.Name())
	}
	if device == nil {
		panic(invalidStatef("backend %q returned a nil buffer without an error", m.backend.Name()))
	}
	m.device = device
	m.stats.DeviceAllocs++
	klog.V(2).Infof("syncmem: allocated %s in device (%s)", humanize.IBytes(uint64(m.size)), m.backend.Name())
	return nil
}

// release frees both sides and resets the head to Uninitialized.
// References to the memory are dropped even if the backend fails to finalize the buffer.
func (m *SyncMem) release() error {
	m.host = nil
	m.head = Uninitialized
	if m.device == nil {
		return nil
	}
	device := m.device
	m.device = nil
	if m.backend.IsFinalized() {
		return nil
	}
	if err := m.backend.BufferFinalize(device); err != nil {
		return errors.WithMessagef(err, "SyncMem: failed to release device buffer of %d bytes", m.size)
	}
	return nil
}

// checkInvariants panics with ErrInvalidState if the coherence invariants are broken.
func (m *SyncMem) checkInvariants() {
	switch m.head {
	case Uninitialized:
	case HostValid:
		if m.host == nil || len(m.host) != m.size {
			panic(invalidStatef("head is %s but host has %d bytes allocated (nil=%v), expected %d",
				m.head, len(m.host), m.host == nil, m.size))
		}
	case DeviceValid:
		if m.device == nil {
			panic(invalidStatef("head is %s but device is not allocated", m.head))
		}
	default:
		panic(invalidStatef("unknown head %d", int(m.head)))
	}
}

// String implements fmt.Stringer. It doesn't change any state.
func (m *SyncMem) String() string {
	if m == nil {
		return "SyncMem(nil)"
	}
	if m.finalized {
		return "SyncMem(finalized)"
	}
	sides := func(allocated bool) string {
		if allocated {
			return "allocated"
		}
		return "none"
	}
	return fmt.Sprintf("SyncMem(%s, head=%s, host=%s, device=%s, backend=%s)",
		humanize.IBytes(uint64(m.size)), m.head, sides(m.host != nil), sides(m.device != nil), m.backend.Name())
}
