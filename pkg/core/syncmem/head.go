// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package syncmem

// Head tells which side of a SyncMem, if any, holds the authoritative value.
//
// At most one side is ever valid: the contents of the other side are undefined until a copy occurs.
type Head int

const (
	// Uninitialized means no side was accessed since construction or the last resize.
	Uninitialized Head = iota

	// HostValid means the host memory holds the authoritative value.
	HostValid

	// DeviceValid means the device memory holds the authoritative value.
	DeviceValid
)

// String implements fmt.Stringer.
func (h Head) String() string {
	switch h {
	case Uninitialized:
		return "Uninitialized"
	case HostValid:
		return "HostValid"
	case DeviceValid:
		return "DeviceValid"
	default:
		return "Head(?)"
	}
}

// request is the kind of call made on a SyncMem.
type request int

const (
	requestHost request = iota
	requestDevice
	forceHost
	forceDevice
	resize
)

func (r request) String() string {
	switch r {
	case requestHost:
		return "HostData"
	case requestDevice:
		return "DeviceData"
	case forceHost:
		return "ToHost"
	case forceDevice:
		return "ToDevice"
	case resize:
		return "Resize"
	default:
		return "request(?)"
	}
}

// action is what a SyncMem has to do to serve a request.
type action int

const (
	// actionNone: the requested side is already authoritative.
	actionNone action = iota

	// actionClaimHost / actionClaimDevice: make sure the side is allocated and mark it authoritative, no copy.
	actionClaimHost
	actionClaimDevice

	// actionCopyToHost / actionCopyToDevice: allocate the side if needed, copy from the other side and mark it
	// authoritative.
	actionCopyToHost
	actionCopyToDevice

	// actionRelease: release both sides and reset to Uninitialized.
	actionRelease
)

func (a action) String() string {
	switch a {
	case actionNone:
		return "none"
	case actionClaimHost:
		return "claim-host"
	case actionClaimDevice:
		return "claim-device"
	case actionCopyToHost:
		return "copy-to-host"
	case actionCopyToDevice:
		return "copy-to-device"
	case actionRelease:
		return "release"
	default:
		return "action(?)"
	}
}

// plan returns the action needed to serve the request given the current head.
//
// Requesting a pointer and forcing a side are the same transition: returning a pointer is taken as a
// declaration that the caller will write through it, so that side becomes authoritative.
// Unknown heads or requests are an invariant violation and panic.
func plan(head Head, req request) action {
	switch req {
	case requestHost, forceHost:
		switch head {
		case Uninitialized:
			return actionClaimHost
		case HostValid:
			return actionNone
		case DeviceValid:
			return actionCopyToHost
		}
	case requestDevice, forceDevice:
		switch head {
		case Uninitialized:
			return actionClaimDevice
		case HostValid:
			return actionCopyToDevice
		case DeviceValid:
			return actionNone
		}
	case resize:
		switch head {
		case Uninitialized, HostValid, DeviceValid:
			return actionRelease
		}
	}
	panic(invalidStatef("no transition for head %s and request %s", head, req))
}
