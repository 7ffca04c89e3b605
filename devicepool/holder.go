// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
)

// State is the lifecycle state of a Holder.
type State int

const (
	// StateFree means the holder is idle and may be reserved.
	StateFree State = iota
	// StateReserved means a caller owns the holder but has not started a test.
	StateReserved
	// StateAcquired means a test is running on the device.
	StateAcquired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateAcquired:
		return "acquired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Holder owns one device in a Pool. Holders are created by Pool.Reserve and
// must be returned with Pool.Release.
type Holder struct {
	pool   *Pool
	key    Key
	desc   *gputypes.DeviceDescriptor
	device backend.Device

	// Guarded by pool.mu.
	state    State
	expected *backend.LostReason
	evicted  bool
	node     *lruNode
}

// Key returns the canonical descriptor key.
func (h *Holder) Key() Key { return h.key }

// Descriptor returns the canonical descriptor the device was created with.
func (h *Holder) Descriptor() *gputypes.DeviceDescriptor { return h.desc }

// Device returns the underlying device.
func (h *Holder) Device() backend.Device { return h.device }

// State returns the current state.
func (h *Holder) State() State {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.state
}

// Acquire starts a test on a reserved holder. It opens an out-of-memory and
// then a validation error scope, which Release closes.
func (h *Holder) Acquire() (backend.Device, error) {
	h.pool.mu.Lock()
	if h.state != StateReserved {
		st := h.state
		h.pool.mu.Unlock()
		return nil, fmt.Errorf("%w: acquire in state %s", ErrHolderState, st)
	}
	h.state = StateAcquired
	h.pool.mu.Unlock()

	h.device.PushErrorScope(backend.FilterOutOfMemory)
	h.device.PushErrorScope(backend.FilterValidation)
	return h.device, nil
}

// ExpectDeviceLost declares that the running test will lose the device with
// reason. Release then swallows a matching loss and fails if none occurs.
func (h *Holder) ExpectDeviceLost(reason backend.LostReason) error {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	if h.state != StateAcquired {
		return fmt.Errorf("%w: expect device lost in state %s", ErrHolderState, h.state)
	}
	h.expected = &reason
	return nil
}
