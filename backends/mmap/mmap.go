//go:build unix

// Package mmap implements a simulated device backend whose memory lives outside the Go heap, in anonymous
// memory mappings obtained with mmap(2) and released with munmap(2).
//
// It behaves like a discrete accelerator with pinned memory: buffers are not managed by the garbage
// collector, and the memory is returned to the operating system as soon as a buffer is finalized.
// Sizes are rounded up to the page size.
//
// There are no configuration options.
package mmap

import (
	"sync"

	"github.com/gomlx/syncmem/backends"
	"github.com/gomlx/syncmem/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// BackendName to be used in SYNCMEM_BACKEND to specify this backend.
const BackendName = "mmap"

func init() {
	backends.Register(BackendName, New)
}

// New constructs a new mmap Backend.
func New(config string) (backends.Backend, error) {
	opts, err := backends.ParseOptions(config)
	if err != nil {
		return nil, err
	}
	if err = opts.CheckKnown(BackendName); err != nil {
		return nil, err
	}
	return &Backend{
		pageSize: unix.Getpagesize(),
		live:     sets.Make[*Buffer](),
	}, nil
}

// Backend implements backends.Backend with anonymous memory mappings.
type Backend struct {
	pageSize int

	mu        sync.Mutex
	live      sets.Set[*Buffer]
	mapped    int64
	finalized bool
}

var (
	_ backends.Backend     = (*Backend)(nil)
	_ backends.Addressable = (*Buffer)(nil)
)

// Buffer is a memory mapped region. For zero-sized buffers nothing is mapped.
type Buffer struct {
	id     uuid.UUID
	size   int
	region []byte // The whole mapping, with len rounded up to the page size.
	valid  bool
}

// Data implements backends.Addressable.
func (buf *Buffer) Data() []byte {
	if buf.region == nil {
		return nil
	}
	return buf.region[:buf.size]
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return "Memory mapped simulated device"
}

// BytesMapped returns the number of bytes currently mapped, including the rounding to page size.
func (b *Backend) BytesMapped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapped
}

// BufferAlloc implements backends.DataInterface.
func (b *Backend) BufferAlloc(size int) (backends.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("mmap: cannot allocate buffer with negative size %d", size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, errors.WithStack(backends.ErrBackendFinalized)
	}
	buf := &Buffer{id: uuid.New(), size: size, valid: true}
	if size > 0 {
		length := (size + b.pageSize - 1) / b.pageSize * b.pageSize
		region, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, errors.Wrapf(backends.ErrOutOfMemory, "mmap: failed to map %d bytes: %v", length, err)
		}
		buf.region = region
		b.mapped += int64(length)
	}
	b.live.Insert(buf)
	klog.V(2).Infof("mmap: allocated buffer %s with %d bytes", buf.id, size)
	return buf, nil
}

func (b *Backend) castBuffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, errors.Wrapf(backends.ErrInvalidBuffer, "buffer (%T) is not a %q backend buffer", buffer, BackendName)
	}
	if !buf.valid {
		return nil, errors.Wrapf(backends.ErrInvalidBuffer, "buffer %s was already finalized", buf.id)
	}
	b.mu.Lock()
	owned := b.live.Has(buf)
	b.mu.Unlock()
	if !owned {
		return nil, errors.Wrapf(backends.ErrInvalidBuffer, "buffer %s belongs to another %q backend", buf.id, BackendName)
	}
	return buf, nil
}

// unmapLocked releases the buffer mapping. b.mu must be held.
func (b *Backend) unmapLocked(buf *Buffer) error {
	buf.valid = false
	b.live.Delete(buf)
	if buf.region == nil {
		return nil
	}
	length := len(buf.region)
	err := unix.Munmap(buf.region)
	buf.region = nil
	if err != nil {
		return errors.Wrapf(err, "mmap: failed to unmap buffer %s", buf.id)
	}
	b.mapped -= int64(length)
	return nil
}

// BufferFinalize implements backends.DataInterface.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	klog.V(2).Infof("mmap: finalized buffer %s", buf.id)
	return b.unmapLocked(buf)
}

// BufferSize implements backends.DataInterface.
func (b *Backend) BufferSize(buffer backends.Buffer) (int, error) {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return 0, err
	}
	return buf.size, nil
}

// BufferFromHost implements backends.DataInterface.
func (b *Backend) BufferFromHost(buffer backends.Buffer, src []byte) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	if len(src) != buf.size {
		return errors.Wrapf(backends.ErrInvalidBuffer, "mmap: transfer of %d bytes to buffer %s of %d bytes",
			len(src), buf.id, buf.size)
	}
	copy(buf.Data(), src)
	return nil
}

// BufferToHost implements backends.DataInterface.
func (b *Backend) BufferToHost(buffer backends.Buffer, dst []byte) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	if len(dst) != buf.size {
		return errors.Wrapf(backends.ErrInvalidBuffer, "mmap: transfer of buffer %s of %d bytes to %d bytes",
			buf.id, buf.size, len(dst))
	}
	copy(dst, buf.Data())
	return nil
}

// Finalize unmaps all live buffers and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return
	}
	b.finalized = true
	for buf := range b.live.All() {
		if err := b.unmapLocked(buf); err != nil {
			klog.Errorf("mmap: %+v", err)
		}
	}
}

// IsFinalized implements backends.Backend.
func (b *Backend) IsFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}
