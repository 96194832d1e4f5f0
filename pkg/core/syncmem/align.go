// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package syncmem

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// HostAlignment of the host memory allocated by SyncMem, a common cache line size.
// It is also enough for any of the supported element types, including complex128.
const HostAlignment = 64

// allocHostBytes allocates a byte slice of the given size with its underlying array aligned to HostAlignment.
// A size of 0 returns a non-nil empty slice.
//
// Sizes the Go runtime refuses to allocate are reported as an error wrapping ErrAllocation.
func allocHostBytes(size int) (buf []byte, err error) {
	if size == 0 {
		return []byte{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = errors.Wrapf(ErrAllocation, "host allocation of %d bytes: %v", size, fmt.Sprint(r))
		}
	}()
	// Allocate extra space to allow for alignment.
	raw := make([]byte, size+HostAlignment-1)
	offset := 0
	if mod := uintptrOf(raw) % HostAlignment; mod != 0 {
		offset = int(HostAlignment - mod)
	}
	return raw[offset : offset+size : offset+size], nil
}

// uintptrOf returns the address of the first byte of buf, which must not be empty.
func uintptrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}
