package simplego

import (
	"sync"

	"github.com/gomlx/syncmem/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Compile-time check:
var (
	_ backends.DataInterface = (*Backend)(nil)
	_ backends.Addressable   = (*Buffer)(nil)
)

// Buffer for SimpleGo backend holds the simulated device memory.
type Buffer struct {
	id    uuid.UUID
	valid bool

	// flat is the device memory, owned by the buffer while valid.
	flat []byte
}

// ID identifies the buffer in logs.
func (buf *Buffer) ID() uuid.UUID { return buf.id }

// Data implements backends.Addressable: it returns the device memory itself.
func (buf *Buffer) Data() []byte { return buf.flat }

type bufferPoolKey struct {
	size int
}

// getBufferPool for given size.
func (b *Backend) getBufferPool(size int) *sync.Pool {
	key := bufferPoolKey{size: size}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				return &Buffer{flat: make([]byte, size)}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers, or a newly allocated one.
// Sizes the Go runtime refuses to allocate are returned as an error wrapping backends.ErrOutOfMemory.
func (b *Backend) getBuffer(size int) (buf *Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.Wrapf(backends.ErrOutOfMemory, "simplego: allocation of %d bytes: %v", size, r)
		}
	}()
	if b.usePool {
		buf = b.getBufferPool(size).Get().(*Buffer)
	} else {
		buf = &Buffer{flat: make([]byte, size)}
	}
	buf.id = uuid.New()
	buf.valid = true
	return buf, nil
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped.
func (b *Backend) putBuffer(buf *Buffer) {
	buf.valid = false
	if !b.usePool {
		buf.flat = nil
		return
	}
	b.getBufferPool(len(buf.flat)).Put(buf)
}

// castBuffer checks that buffer is a valid buffer of this backend.
func (b *Backend) castBuffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, errors.Wrapf(backends.ErrInvalidBuffer, "buffer (%T) is not a %q backend buffer", buffer, BackendName)
	}
	if !buf.valid {
		return nil, errors.Wrapf(backends.ErrInvalidBuffer, "buffer %s was already finalized", buf.id)
	}
	return buf, nil
}

// BufferAlloc implements backends.DataInterface.
func (b *Backend) BufferAlloc(size int) (backends.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("simplego: cannot allocate buffer with negative size %d", size)
	}
	b.mu.Lock()
	if b.finalized {
		b.mu.Unlock()
		return nil, errors.WithStack(backends.ErrBackendFinalized)
	}
	if b.limit > 0 && b.inUse+int64(size) > b.limit {
		inUse := b.inUse
		b.mu.Unlock()
		return nil, errors.Wrapf(backends.ErrOutOfMemory, "simplego: requested %d bytes, %d of %d bytes in use",
			size, inUse, b.limit)
	}
	b.inUse += int64(size)
	b.numBuffers++
	b.mu.Unlock()

	buf, err := b.getBuffer(size)
	if err != nil {
		b.mu.Lock()
		b.inUse -= int64(size)
		b.numBuffers--
		b.mu.Unlock()
		return nil, err
	}
	klog.V(2).Infof("simplego: allocated buffer %s with %d bytes", buf.id, size)
	return buf, nil
}

// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
// freed immediately.
//
// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.finalized {
		// All buffers were already released with the backend.
		b.mu.Unlock()
		buf.valid = false
		return nil
	}
	b.inUse -= int64(len(buf.flat))
	b.numBuffers--
	b.mu.Unlock()
	klog.V(2).Infof("simplego: finalized buffer %s", buf.id)
	b.putBuffer(buf)
	return nil
}

// BufferSize implements backends.DataInterface.
func (b *Backend) BufferSize(buffer backends.Buffer) (int, error) {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return 0, err
	}
	return len(buf.flat), nil
}

// BufferFromHost implements backends.DataInterface.
func (b *Backend) BufferFromHost(buffer backends.Buffer, src []byte) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	if len(src) != len(buf.flat) {
		return errors.Wrapf(backends.ErrInvalidBuffer, "simplego: transfer of %d bytes to buffer %s of %d bytes",
			len(src), buf.id, len(buf.flat))
	}
	if b.IsFinalized() {
		return errors.WithStack(backends.ErrBackendFinalized)
	}
	copy(buf.flat, src)
	return nil
}

// BufferToHost implements backends.DataInterface.
func (b *Backend) BufferToHost(buffer backends.Buffer, dst []byte) error {
	buf, err := b.castBuffer(buffer)
	if err != nil {
		return err
	}
	if len(dst) != len(buf.flat) {
		return errors.Wrapf(backends.ErrInvalidBuffer, "simplego: transfer of buffer %s of %d bytes to %d bytes",
			buf.id, len(buf.flat), len(dst))
	}
	if b.IsFinalized() {
		return errors.WithStack(backends.ErrBackendFinalized)
	}
	copy(dst, buf.flat)
	return nil
}
