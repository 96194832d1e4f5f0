// Package simplego implements a simple, very portable, simulated device backend.
//
// Device memory is Go memory owned by the backend: it is never aliased with the host side of a SyncMem, so
// transfers are real copies, and forgetting one shows up as stale data exactly as it would with a
// discrete accelerator. It is the default backend, and the one used in tests.
//
// Configuration options (see backends.ParseOptions), e.g. "simplego:limit=64MiB,pool=false":
//
//   - limit=<size>: maximum number of bytes allocated at any time; allocations beyond it fail with
//     backends.ErrOutOfMemory. Humanized sizes are accepted. Default is no limit.
//   - pool=<bool>: whether to reuse freed buffers of the same size. Default is true.
package simplego

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/syncmem/backends"
	"k8s.io/klog/v2"
)

// BackendName to be used in SYNCMEM_BACKEND to specify this backend.
const BackendName = "simplego"

// Registers New() as the constructor for the "simplego" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend.
// See package documentation for the configuration options.
func New(config string) (backends.Backend, error) {
	opts, err := backends.ParseOptions(config)
	if err != nil {
		return nil, err
	}
	if err = opts.CheckKnown(BackendName, "limit", "pool"); err != nil {
		return nil, err
	}
	b := newBackend()
	if b.limit, err = opts.Bytes("limit", 0); err != nil {
		return nil, err
	}
	if b.usePool, err = opts.Bool("pool", true); err != nil {
		return nil, err
	}
	return b, nil
}

func newBackend() *Backend {
	return &Backend{usePool: true}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map
	usePool     bool

	// mu protects the accounting below.
	mu         sync.Mutex
	limit      int64
	inUse      int64
	numBuffers int
	finalized  bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	if b.limit > 0 {
		return fmt.Sprintf("SimpleGo simulated device (limit %s)", humanize.IBytes(uint64(b.limit)))
	}
	return "SimpleGo simulated device"
}

// BytesInUse returns the number of bytes currently allocated in live buffers.
func (b *Backend) BytesInUse() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// NumBuffers returns the number of live (not finalized) buffers.
func (b *Backend) NumBuffers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numBuffers
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return
	}
	b.finalized = true
	b.bufferPools.Clear()
	if b.numBuffers > 0 {
		klog.V(1).Infof("simplego: finalized with %d live buffers (%s)", b.numBuffers, humanize.IBytes(uint64(b.inUse)))
	}
	b.inUse = 0
	b.numBuffers = 0
}

// IsFinalized returns true if the backend is finalized.
func (b *Backend) IsFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}
