// Package syncdata implements SyncData, a typed view of a syncmem.SyncMem.
//
// SyncData[T] translates element counts to byte sizes and exposes the host memory as a []T.
// It owns its SyncMem exclusively and has no other state: all coherence decisions (allocation, copies and
// which side is authoritative) are taken by the SyncMem.
//
// Example:
//
//	data := syncdata.MustNew[float32](backend, 10)
//	host := data.MustHostData() // Host becomes authoritative.
//	for ii := range host {
//		host[ii] = float32(ii)
//	}
//	buffer := data.MustDeviceData() // Copied to the device, which becomes authoritative.
//	runKernel(buffer)
//	v := data.MustElementAt(3) // Copied back to the host.
//
// Like SyncMem, it is not safe for concurrent use, and slices or buffers returned must not be retained across
// calls that change the head or the size.
package syncdata

import (
	"unsafe"

	"github.com/gomlx/syncmem/backends"
	"github.com/gomlx/syncmem/pkg/core/dtypes"
	"github.com/gomlx/syncmem/pkg/core/syncmem"
	"github.com/pkg/errors"
)

// noCopy may be embedded into structs which must not be copied after the first use, checked by `go vet`.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// SyncData is a typed view of a SyncMem holding Count() elements of type T.
//
// It must be created with New (or FromValues) and used through a pointer.
type SyncData[T dtypes.Supported] struct {
	_ noCopy

	mem   *syncmem.SyncMem
	count int
}

// byteSize returns the size in bytes of count elements of T. A size that overflows int is reported as
// an allocation failure.
func byteSize[T dtypes.Supported](count int) (int, error) {
	dtype := dtypes.FromGenericsType[T]()
	size, err := dtype.SizeForCount(count)
	if err != nil {
		if errors.Is(err, dtypes.ErrSizeOverflow) {
			return 0, errors.Wrapf(syncmem.ErrAllocation, "SyncData[%s] with %d elements: %v", dtype, count, err)
		}
		return 0, err
	}
	return size, nil
}

// New creates a SyncData with count elements on the given backend. No memory is allocated, and the head
// starts as syncmem.Uninitialized.
func New[T dtypes.Supported](backend backends.Backend, count int) (*SyncData[T], error) {
	if count < 0 {
		return nil, errors.Errorf("syncdata.New[%s]: count cannot be negative, got %d",
			dtypes.FromGenericsType[T](), count)
	}
	size, err := byteSize[T](count)
	if err != nil {
		return nil, err
	}
	mem, err := syncmem.New(backend, size)
	if err != nil {
		return nil, err
	}
	return &SyncData[T]{mem: mem, count: count}, nil
}

// MustNew is like New, but panics on error.
func MustNew[T dtypes.Supported](backend backends.Backend, count int) *SyncData[T] {
	d, err := New[T](backend, count)
	must(err)
	return d
}

// FromValues creates a SyncData with a copy of values in the host, which is authoritative.
func FromValues[T dtypes.Supported](backend backends.Backend, values []T) (*SyncData[T], error) {
	d, err := New[T](backend, len(values))
	if err != nil {
		return nil, err
	}
	if err = d.CopyFrom(values); err != nil {
		_ = d.Finalize()
		return nil, err
	}
	return d, nil
}

// DType of the elements.
func (d *SyncData[T]) DType() dtypes.DType { return dtypes.FromGenericsType[T]() }

// Count returns the number of elements.
func (d *SyncData[T]) Count() int { return d.count }

// Size returns the size in bytes, always Count() times the size of T.
func (d *SyncData[T]) Size() int { return d.mem.Size() }

// Head returns which side holds the authoritative value, see syncmem.Head.
func (d *SyncData[T]) Head() syncmem.Head { return d.mem.Head() }

// Stats returns the allocation and transfer counters of the underlying SyncMem.
func (d *SyncData[T]) Stats() syncmem.Stats { return d.mem.Stats() }

// Backend used for the device side.
func (d *SyncData[T]) Backend() backends.Backend { return d.mem.Backend() }

// checkSize panics with syncmem.ErrInvalidState if the SyncMem size doesn't match the element count.
func (d *SyncData[T]) checkSize() {
	if size, err := byteSize[T](d.count); err != nil || d.mem.Size() != size {
		panic(errors.WithMessagef(syncmem.ErrInvalidState, "SyncData[%s] has %d elements but %d bytes",
			d.DType(), d.count, d.mem.Size()))
	}
}

// HostData returns the host memory as a []T with Count() elements, copying from the device if needed.
// The host becomes authoritative. See syncmem.SyncMem.HostData.
func (d *SyncData[T]) HostData() ([]T, error) {
	d.checkSize()
	host, err := d.mem.HostData()
	if err != nil {
		return nil, err
	}
	return bytesAsSlice[T](host, d.count), nil
}

// MustHostData is like HostData, but panics on error.
func (d *SyncData[T]) MustHostData() []T {
	host, err := d.HostData()
	must(err)
	return host
}

// DeviceData returns the device buffer, copying from the host if needed.
// The device becomes authoritative. See syncmem.SyncMem.DeviceData.
func (d *SyncData[T]) DeviceData() (backends.Buffer, error) {
	d.checkSize()
	return d.mem.DeviceData()
}

// MustDeviceData is like DeviceData, but panics on error.
func (d *SyncData[T]) MustDeviceData() backends.Buffer {
	buffer, err := d.DeviceData()
	must(err)
	return buffer
}

// DeviceSlice is like DeviceData, but returns the device memory as a []T.
// It only works with backends whose buffers are backends.Addressable (the simulated ones), where it is used to
// write device "kernels" in Go.
func (d *SyncData[T]) DeviceSlice() ([]T, error) {
	buffer, err := d.DeviceData()
	if err != nil {
		return nil, err
	}
	addressable, ok := buffer.(backends.Addressable)
	if !ok {
		return nil, errors.Errorf("SyncData.DeviceSlice: backend %q buffers are not addressable from Go",
			d.mem.Backend().Name())
	}
	return bytesAsSlice[T](addressable.Data(), d.count), nil
}

// ToHost makes the host authoritative, see syncmem.SyncMem.ToHost.
func (d *SyncData[T]) ToHost() error { return d.mem.ToHost() }

// MustToHost is like ToHost, but panics on error.
func (d *SyncData[T]) MustToHost() { must(d.ToHost()) }

// ToDevice makes the device authoritative, see syncmem.SyncMem.ToDevice.
func (d *SyncData[T]) ToDevice() error { return d.mem.ToDevice() }

// MustToDevice is like ToDevice, but panics on error.
func (d *SyncData[T]) MustToDevice() { must(d.ToDevice()) }

// Resize changes the number of elements, releasing both sides: the contents are lost and the head becomes
// syncmem.Uninitialized, regardless of the previous state.
func (d *SyncData[T]) Resize(count int) error {
	if count < 0 {
		return errors.Errorf("SyncData.Resize: count cannot be negative, got %d", count)
	}
	size, err := byteSize[T](count)
	if err != nil {
		return err
	}
	if err = d.mem.Resize(size); err != nil {
		return err
	}
	d.count = count
	return nil
}

// MustResize is like Resize, but panics on error.
func (d *SyncData[T]) MustResize(count int) { must(d.Resize(count)) }

// Finalize releases both sides immediately, see syncmem.SyncMem.Finalize.
func (d *SyncData[T]) Finalize() error { return d.mem.Finalize() }

// checkIndex returns an error wrapping syncmem.ErrOutOfRange if index is not in [0, Count()).
func (d *SyncData[T]) checkIndex(index int) error {
	if index < 0 || index >= d.count {
		return errors.Wrapf(syncmem.ErrOutOfRange, "index %d for SyncData[%s] with %d elements",
			index, d.DType(), d.count)
	}
	return nil
}

// ElementAt returns the element at index, after synchronizing the host as HostData does: the host becomes
// authoritative.
//
// It returns an error wrapping syncmem.ErrOutOfRange if index is not in [0, Count()), in which case no
// synchronization happens.
func (d *SyncData[T]) ElementAt(index int) (T, error) {
	var zero T
	if err := d.checkIndex(index); err != nil {
		return zero, err
	}
	host, err := d.HostData()
	if err != nil {
		return zero, err
	}
	return host[index], nil
}

// MustElementAt is like ElementAt, but panics on error.
func (d *SyncData[T]) MustElementAt(index int) T {
	v, err := d.ElementAt(index)
	must(err)
	return v
}

// ElementPtr returns a pointer to the element at index in the host memory, after synchronizing it as HostData
// does. The pointer is valid until the next call that changes the head or the size.
func (d *SyncData[T]) ElementPtr(index int) (*T, error) {
	if err := d.checkIndex(index); err != nil {
		return nil, err
	}
	host, err := d.HostData()
	if err != nil {
		return nil, err
	}
	return &host[index], nil
}

// SetElementAt sets the element at index in the host memory, after synchronizing it as HostData does.
func (d *SyncData[T]) SetElementAt(index int, value T) error {
	ptr, err := d.ElementPtr(index)
	if err != nil {
		return err
	}
	*ptr = value
	return nil
}

// CopyFrom copies values to the host memory, which becomes authoritative. len(values) must be Count().
func (d *SyncData[T]) CopyFrom(values []T) error {
	if len(values) != d.count {
		return errors.Errorf("SyncData.CopyFrom: %d values given, expected %d", len(values), d.count)
	}
	host, err := d.HostData()
	if err != nil {
		return err
	}
	copy(host, values)
	return nil
}

// CopyTo copies the values, synchronized to the host, to dst. len(dst) must be Count().
func (d *SyncData[T]) CopyTo(dst []T) error {
	if len(dst) != d.count {
		return errors.Errorf("SyncData.CopyTo: destination has %d elements, expected %d", len(dst), d.count)
	}
	host, err := d.HostData()
	if err != nil {
		return err
	}
	copy(dst, host)
	return nil
}

// Values returns a copy of the values, synchronized to the host.
func (d *SyncData[T]) Values() ([]T, error) {
	values := make([]T, d.count)
	if err := d.CopyTo(values); err != nil {
		return nil, err
	}
	return values, nil
}

// bytesAsSlice interprets the bytes as a []T with count elements.
// A zero count returns a non-nil empty slice.
func bytesAsSlice[T any](b []byte, count int) []T {
	if count == 0 || len(b) == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), count)
}

// must panics if err is not nil.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
