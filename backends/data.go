package backends

// Buffer represents a block of raw memory allocated in the device.
//
// It is opaque from syncmem's perspective: it can only be used as input to the backend methods that created it.
// A Buffer handle doesn't own the memory in the Go sense: memory is released with DataInterface.BufferFinalize.
type Buffer any

// DataInterface is the Backend's subinterface that defines the API to allocate device memory and to transfer it
// to/from the host.
//
// All transfers are synchronous: when the method returns, the copy has completed (or failed).
type DataInterface interface {
	// BufferAlloc allocates a device buffer with size bytes. A size of 0 is valid and returns a zero-length buffer.
	//
	// The contents of a new buffer are undefined: it may hold the data of a previously freed buffer.
	// Errors wrap ErrOutOfMemory if the device can't satisfy the request.
	BufferAlloc(size int) (Buffer, error)

	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately.
	//
	// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
	BufferFinalize(buffer Buffer) error

	// BufferSize returns the size in bytes of the buffer.
	BufferSize(buffer Buffer) (int, error)

	// BufferFromHost transfers the bytes in src (host memory) to the device buffer.
	// len(src) must be exactly the size of the buffer.
	BufferFromHost(buffer Buffer, src []byte) error

	// BufferToHost transfers the contents of the device buffer to dst (host memory).
	// len(dst) must be exactly the size of the buffer.
	BufferToHost(buffer Buffer, dst []byte) error
}

// Addressable is implemented by buffers whose device memory can be read and written directly from Go.
// This is the case of the simulated devices (simplego and mmap backends), where "device kernels" are
// plain Go functions.
//
// The returned slice is device memory: writing to it is a device-side write.
// It becomes invalid after the buffer is finalized.
type Addressable interface {
	Data() []byte
}
