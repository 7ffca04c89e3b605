// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import (
	"errors"
	"fmt"

	"github.com/gogpu/cts/backend"
)

// Sentinel errors returned by the pool.
var (
	// ErrPoolFailed is returned by every Reserve after the initial device
	// could not be created. The original cause is wrapped alongside it.
	ErrPoolFailed = errors.New("devicepool: device pool failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("devicepool: pool closed")

	// ErrReleaseTimeout is returned when ending a test scope takes longer
	// than the release timeout.
	ErrReleaseTimeout = errors.New("devicepool: release timed out")

	// ErrHolderState is returned when a holder is used in the wrong state.
	ErrHolderState = errors.New("devicepool: holder in wrong state")

	// ErrForeignHolder is returned when a holder is released to a pool
	// that did not create it.
	ErrForeignHolder = errors.New("devicepool: holder belongs to another pool")

	// ErrExpectedLossMissing is returned when ExpectDeviceLost was called
	// but the device was not lost.
	ErrExpectedLossMissing = errors.New("devicepool: expected device loss did not happen")

	// ErrScopeLeaked is returned when a test left an error scope open.
	// The scopes popped on release no longer line up, so the device is
	// discarded.
	ErrScopeLeaked = errors.New("devicepool: error scope left open by the test")
)

// SkipError reports that a descriptor cannot be satisfied by the backend.
// Callers should skip the test rather than fail it. It matches
// backend.ErrUnsupported with errors.Is.
type SkipError struct {
	Key Key
	Err error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("devicepool: skip %s: %v", e.Key, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Is matches backend.ErrUnsupported even when Err does not wrap it.
func (e *SkipError) Is(target error) bool { return target == backend.ErrUnsupported }

// ReusableError reports a validation error raised inside a test. The test
// failed but its device was kept for reuse.
type ReusableError struct {
	GPU *backend.GPUError
}

func (e *ReusableError) Error() string {
	return fmt.Sprintf("devicepool: test failed, device reusable: %v", e.GPU)
}

func (e *ReusableError) Unwrap() error { return e.GPU }
