// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package syncmem

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats counts the allocations and transfers performed by a SyncMem since it was created.
// They are not reset by Resize.
type Stats struct {
	HostAllocs, DeviceAllocs int

	// HostToDevice and DeviceToHost count the copies in each direction.
	HostToDevice, DeviceToHost int

	// BytesHostToDevice and BytesDeviceToHost count the bytes copied in each direction.
	BytesHostToDevice, BytesDeviceToHost int64
}

// Transfers returns the total number of copies, in either direction.
func (s Stats) Transfers() int { return s.HostToDevice + s.DeviceToHost }

// BytesTransferred returns the total number of bytes copied, in either direction.
func (s Stats) BytesTransferred() int64 { return s.BytesHostToDevice + s.BytesDeviceToHost }

// Add returns the sum of the two Stats.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		HostAllocs:        s.HostAllocs + other.HostAllocs,
		DeviceAllocs:      s.DeviceAllocs + other.DeviceAllocs,
		HostToDevice:      s.HostToDevice + other.HostToDevice,
		DeviceToHost:      s.DeviceToHost + other.DeviceToHost,
		BytesHostToDevice: s.BytesHostToDevice + other.BytesHostToDevice,
		BytesDeviceToHost: s.BytesDeviceToHost + other.BytesDeviceToHost,
	}
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("allocs(host=%d, device=%d), host->device=%d (%s), device->host=%d (%s)",
		s.HostAllocs, s.DeviceAllocs,
		s.HostToDevice, humanize.IBytes(uint64(s.BytesHostToDevice)),
		s.DeviceToHost, humanize.IBytes(uint64(s.BytesDeviceToHost)))
}
