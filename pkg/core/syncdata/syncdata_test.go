package syncdata_test

import (
	"fmt"
	"math"
	"testing"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/syncmem/backends"
	"github.com/gomlx/syncmem/backends/backendtest"
	_ "github.com/gomlx/syncmem/backends/default"
	"github.com/gomlx/syncmem/pkg/core/dtypes"
	"github.com/gomlx/syncmem/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/syncmem/pkg/core/syncdata"
	"github.com/gomlx/syncmem/pkg/core/syncmem"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// forEachBackend runs testFn on every registered backend.
func forEachBackend(t *testing.T, testFn func(t *testing.T, backend backends.Backend)) {
	for _, name := range backends.List() {
		t.Run(name, func(t *testing.T) {
			backend := must.M1(backends.NewWithConfig(name))
			defer backend.Finalize()
			testFn(t, backend)
		})
	}
}

func TestNew(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	for _, count := range []int{0, 1, 100} {
		d := syncdata.MustNew[float64](backend, count)
		assert.Equal(t, count, d.Count())
		assert.Equal(t, count*8, d.Size())
		assert.Equal(t, syncmem.Uninitialized, d.Head())
		assert.Equal(t, dtypes.Float64, d.DType())

		c := syncdata.MustNew[complex128](backend, count)
		assert.Equal(t, count*16, c.Size())
		b := syncdata.MustNew[bool](backend, count)
		assert.Equal(t, count, b.Size())
	}
	_, err := syncdata.New[int32](backend, -1)
	require.Error(t, err)
	_, err = syncdata.New[int32](nil, 1)
	require.Error(t, err)
}

func TestHostAllocate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend backends.Backend) {
		d := syncdata.MustNew[int32](backend, 100)
		host, err := d.HostData()
		require.NoError(t, err)
		require.NotNil(t, host)
		require.Len(t, host, 100)
		assert.Equal(t, syncmem.HostValid, d.Head())
		assert.Equal(t, int(unsafe.Sizeof(int32(0)))*100, d.Size())
		assert.Equal(t, 100, d.Count())

		require.NoError(t, d.Resize(20))
		assert.Equal(t, syncmem.Uninitialized, d.Head())
		assert.Equal(t, 20, d.Count())
		assert.Equal(t, 80, d.Size())
	})
}

func TestDeviceAllocate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend backends.Backend) {
		d := syncdata.MustNew[int32](backend, 100)
		buffer, err := d.DeviceData()
		require.NoError(t, err)
		require.NotNil(t, buffer)
		assert.Equal(t, syncmem.DeviceValid, d.Head())
		assert.Equal(t, 400, d.Size())
		assert.Equal(t, 100, d.Count())

		require.NoError(t, d.Resize(20))
		assert.Equal(t, syncmem.Uninitialized, d.Head())
		assert.Equal(t, 20, d.Count())
	})
}

func TestHostToDevice(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend backends.Backend) {
		d := syncdata.MustNew[int](backend, 10)
		data := d.MustHostData()
		for i := range 10 {
			data[i] = i
		}
		require.NoError(t, d.ToDevice())
		assert.Equal(t, syncmem.DeviceValid, d.Head())

		// Host memory is still allocated, but no longer authoritative.
		for i := range 10 {
			data[i] = -1
		}
		require.NoError(t, d.ToHost())
		assert.Equal(t, syncmem.HostValid, d.Head())
		data = d.MustHostData()
		for i := range 10 {
			assert.Equal(t, i, data[i])
		}
		for i := range 10 {
			assert.Equal(t, i, d.MustElementAt(i))
		}
	})
}

func testRoundTrip[T dtypes.Supported](t *testing.T, backend backends.Backend, values []T) {
	var zero T
	t.Run(fmt.Sprintf("%T", zero), func(t *testing.T) {
		d, err := syncdata.FromValues(backend, values)
		require.NoError(t, err)
		defer func() { require.NoError(t, d.Finalize()) }()
		require.Equal(t, syncmem.HostValid, d.Head())

		d.MustToDevice()
		host := d.MustHostData()
		for ii := range host {
			host[ii] = zero
		}
		// MustHostData above claimed the host, so the zeros are now authoritative.
		require.Equal(t, syncmem.HostValid, d.Head())
		require.NoError(t, d.CopyFrom(values))
		d.MustToDevice()
		d.MustToHost()
		got, err := d.Values()
		require.NoError(t, err)
		require.Equal(t, values, got)
		for ii, want := range values {
			require.Equal(t, want, d.MustElementAt(ii))
		}
	})
}

func TestRoundTripDTypes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend backends.Backend) {
		testRoundTrip(t, backend, []float32{1, -2.5, 3e10})
		testRoundTrip(t, backend, []float64{0.1, 0.2})
		testRoundTrip(t, backend, []int8{-128, 0, 127})
		testRoundTrip(t, backend, []uint16{1, 65535})
		testRoundTrip(t, backend, []int64{1 << 40, -7})
		testRoundTrip(t, backend, []bool{true, false, true})
		testRoundTrip(t, backend, []complex64{1 + 2i, -3i})
		testRoundTrip(t, backend, []complex128{7 - 1i})
		testRoundTrip(t, backend, []float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)})
		testRoundTrip(t, backend, []bfloat16.BFloat16{bfloat16.FromFloat32(3), bfloat16.FromFloat32(0.5)})
	})
}

func TestDeviceKernel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend backends.Backend) {
		d := must.M1(syncdata.FromValues(backend, []float32{1, 2, 3, 4}))
		onDevice, err := d.DeviceSlice()
		require.NoError(t, err)
		require.Equal(t, syncmem.DeviceValid, d.Head())
		for ii := range onDevice {
			onDevice[ii] *= 2
		}
		require.Equal(t, []float32{2, 4, 6, 8}, must.M1(d.Values()))
		require.Equal(t, 1, d.Stats().HostToDevice)
		require.Equal(t, 1, d.Stats().DeviceToHost)
	})
}

func TestElementAt(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	d := syncdata.MustNew[int64](backend, 5)
	for ii := range 5 {
		require.NoError(t, d.SetElementAt(ii, int64(ii*ii)))
	}
	d.MustToDevice()

	// Out of range: no synchronization happens.
	for _, index := range []int{-1, 5, 100} {
		_, err := d.ElementAt(index)
		require.ErrorIs(t, err, syncmem.ErrOutOfRange)
		_, err = d.ElementPtr(index)
		require.ErrorIs(t, err, syncmem.ErrOutOfRange)
		require.ErrorIs(t, d.SetElementAt(index, 1), syncmem.ErrOutOfRange)
	}
	require.Equal(t, syncmem.DeviceValid, d.Head())
	err := exceptions.TryCatch[error](func() { d.MustElementAt(5) })
	require.ErrorIs(t, err, syncmem.ErrOutOfRange)

	// In range: synchronizes the host.
	v, err := d.ElementAt(3)
	require.NoError(t, err)
	require.Equal(t, int64(9), v)
	require.Equal(t, syncmem.HostValid, d.Head())

	ptr, err := d.ElementPtr(4)
	require.NoError(t, err)
	*ptr = -16
	require.Equal(t, int64(-16), d.MustElementAt(4))
	d.MustToDevice()
	d.MustToHost()
	require.Equal(t, []int64{0, 1, 4, 9, -16}, must.M1(d.Values()))
}

func TestIdempotentToHost(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	d := must.M1(syncdata.FromValues(backend, []uint8{1, 2, 3}))
	d.MustToDevice()
	d.MustToHost()
	stats := d.Stats()
	d.MustToHost()
	require.Equal(t, stats, d.Stats())
	require.Equal(t, syncmem.HostValid, d.Head())
	require.Equal(t, []uint8{1, 2, 3}, d.MustHostData())
}

func TestResize(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	d := must.M1(syncdata.FromValues(backend, []float32{1, 2, 3}))
	for _, count := range []int{5, 5, 0, 2} {
		d.MustToDevice()
		d.MustResize(count)
		assert.Equal(t, syncmem.Uninitialized, d.Head())
		assert.Equal(t, count, d.Count())
		assert.Equal(t, count*4, d.Size())
		assert.Len(t, d.MustHostData(), count)
	}
	require.Error(t, d.Resize(-2))
	assert.Equal(t, 2, d.Count())
}

func TestSizeOverflow(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	for _, count := range []int{math.MaxInt/4 + 1, math.MaxInt/2 + 1, math.MaxInt} {
		_, err := syncdata.New[int32](backend, count)
		require.ErrorIs(t, err, syncmem.ErrAllocation, "count=%d", count)
	}
	_, err := syncdata.New[complex128](backend, math.MaxInt/16+1)
	require.ErrorIs(t, err, syncmem.ErrAllocation)

	// A failed resize leaves the data untouched.
	d := must.M1(syncdata.FromValues(backend, []int32{1, 2, 3}))
	require.ErrorIs(t, d.Resize(math.MaxInt/2+1), syncmem.ErrAllocation)
	require.Equal(t, 3, d.Count())
	require.Equal(t, 12, d.Size())
	require.Equal(t, syncmem.HostValid, d.Head())
	require.Equal(t, []int32{1, 2, 3}, must.M1(d.Values()))
}

func TestCopyErrors(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	d := syncdata.MustNew[int32](backend, 3)
	require.Error(t, d.CopyFrom([]int32{1}))
	require.Error(t, d.CopyTo(make([]int32, 4)))
	require.NoError(t, d.Finalize())
	_, err := d.HostData()
	require.ErrorIs(t, err, syncmem.ErrFinalized)
	require.ErrorIs(t, d.CopyFrom([]int32{1, 2, 3}), syncmem.ErrFinalized)
	_, err = d.Values()
	require.ErrorIs(t, err, syncmem.ErrFinalized)
}

func TestFailures(t *testing.T) {
	faulty := backendtest.NewFaulty(backends.MustNew())
	defer faulty.Finalize()
	d := must.M1(syncdata.FromValues(faulty, []float64{1, 2}))
	faulty.FailAllocs(1)
	_, err := d.DeviceData()
	require.ErrorIs(t, err, syncmem.ErrAllocation)
	require.Equal(t, syncmem.HostValid, d.Head())

	d.MustToDevice()
	faulty.FailToHost(1)
	_, err = d.ElementAt(0)
	require.ErrorIs(t, err, syncmem.ErrTransfer)
	require.Equal(t, syncmem.DeviceValid, d.Head())
	require.Equal(t, 2.0, d.MustElementAt(1))
}

func TestDeviceSliceNotAddressable(t *testing.T) {
	d := syncdata.MustNew[float32](opaqueBackend{backends.MustNew()}, 3)
	_, err := d.DeviceSlice()
	require.ErrorContains(t, err, "not addressable")
}

// opaqueBackend hides the Addressable interface of the wrapped backend buffers.
type opaqueBackend struct {
	backends.Backend
}

type opaqueBuffer struct {
	buffer backends.Buffer
}

func (b opaqueBackend) BufferAlloc(size int) (backends.Buffer, error) {
	buffer, err := b.Backend.BufferAlloc(size)
	if err != nil {
		return nil, err
	}
	return &opaqueBuffer{buffer}, nil
}

func (b opaqueBackend) BufferFinalize(buffer backends.Buffer) error {
	return b.Backend.BufferFinalize(buffer.(*opaqueBuffer).buffer)
}

func (b opaqueBackend) BufferFromHost(buffer backends.Buffer, src []byte) error {
	return b.Backend.BufferFromHost(buffer.(*opaqueBuffer).buffer, src)
}

func (b opaqueBackend) BufferToHost(buffer backends.Buffer, dst []byte) error {
	return b.Backend.BufferToHost(buffer.(*opaqueBuffer).buffer, dst)
}

func TestSummary(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	d := syncdata.MustNew[int32](backend, 10)
	require.Equal(t, "SyncData[Int32](count=10, 40 B, head=Uninitialized)", d.String())
	data := d.MustHostData()
	for ii := range data {
		data[ii] = int32(ii)
	}
	require.Equal(t, "SyncData[Int32](count=10, 40 B, head=HostValid, values={0, 1, 2, ..., 7, 8, 9})", d.String())
	d.MustToDevice()
	stats := d.Stats()
	require.Equal(t, "SyncData[Int32](count=10, 40 B, head=DeviceValid)", d.String())
	require.Equal(t, stats, d.Stats(), "printing must not transfer")

	f := must.M1(syncdata.FromValues(backend, []float32{0.25, 1.0 / 3}))
	require.Equal(t, "SyncData[Float32](count=2, 8 B, head=HostValid, values={0.25, 0.33})", f.Summary(2))
	require.NoError(t, f.Finalize())
	require.Equal(t, "SyncData[Float32](finalized)", f.String())
}
