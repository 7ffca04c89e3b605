// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
)

// Device wraps a wgpu.Device.
type Device struct {
	raw   *wgpu.Device
	info  gputypes.AdapterInfo
	label string

	mu       sync.Mutex
	depth    int
	lost     chan struct{}
	lostInfo *backend.LostInfo
}

func newDevice(raw *wgpu.Device, info gputypes.AdapterInfo, label string) *Device {
	return &Device{raw: raw, info: info, label: label, lost: make(chan struct{})}
}

// Raw returns the underlying wgpu device.
func (d *Device) Raw() *wgpu.Device { return d.raw }

// Device returns the *wgpu.Device.
func (d *Device) Device() gpucontext.Device { return d.raw }

// Queue returns the *wgpu.Queue.
func (d *Device) Queue() gpucontext.Queue { return d.raw.Queue() }

// Adapter returns nil; the adapter is owned by the Backend.
func (d *Device) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns TextureFormatUndefined; test devices are headless.
func (d *Device) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo describes the adapter the device was created from.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: d.info.Name, Type: adapterType(d.info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU, gputypes.DeviceTypeVirtualGPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Label returns the descriptor label.
func (d *Device) Label() string { return d.label }

// Features returns the features enabled on the device.
func (d *Device) Features() gputypes.Features { return d.raw.Features() }

// Limits returns the device limits.
func (d *Device) Limits() gputypes.Limits { return d.raw.Limits() }

// PushErrorScope opens an error scope.
func (d *Device) PushErrorScope(filter backend.ErrorFilter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depth++
	d.raw.PushErrorScope(toErrorFilter(filter))
}

// PopErrorScope closes the innermost error scope.
func (d *Device) PopErrorScope(ctx context.Context) (*backend.GPUError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.depth == 0 {
		return nil, backend.ErrScopeUnderflow
	}
	d.depth--
	gerr := d.raw.PopErrorScope()
	if gerr == nil {
		return nil, nil
	}
	return &backend.GPUError{Filter: fromErrorFilter(gerr.Type), Message: gerr.Message}, nil
}

func toErrorFilter(f backend.ErrorFilter) wgpu.ErrorFilter {
	switch f {
	case backend.FilterOutOfMemory:
		return wgpu.ErrorFilterOutOfMemory
	case backend.FilterInternal:
		return wgpu.ErrorFilterInternal
	default:
		return wgpu.ErrorFilterValidation
	}
}

func fromErrorFilter(f wgpu.ErrorFilter) backend.ErrorFilter {
	switch f {
	case wgpu.ErrorFilterOutOfMemory:
		return backend.FilterOutOfMemory
	case wgpu.ErrorFilterInternal:
		return backend.FilterInternal
	default:
		return backend.FilterValidation
	}
}

// Flush waits until the device is idle or ctx is done.
func (d *Device) Flush(ctx context.Context) error {
	if info, ok := d.LostInfo(); ok {
		return fmt.Errorf("%w: %s", backend.ErrDeviceLost, info)
	}

	done := make(chan error, 1)
	go func() {
		done <- d.raw.WaitIdle()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return d.mapWaitError(err)
	}
}

func (d *Device) mapWaitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wgpu.ErrDeviceLost), errors.Is(err, wgpu.ErrReleased):
		d.markLost(backend.LostReasonUnknown, err.Error())
		return fmt.Errorf("%w: %w", backend.ErrDeviceLost, err)
	case errors.Is(err, wgpu.ErrOutOfMemory):
		return fmt.Errorf("%w: %w", backend.ErrOutOfMemory, err)
	default:
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
}

// markLost records the first loss and closes the lost channel.
func (d *Device) markLost(reason backend.LostReason, message string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lostInfo != nil {
		return false
	}
	d.lostInfo = &backend.LostInfo{Reason: reason, Message: message}
	close(d.lost)
	return true
}

// Lost returns a channel closed when the device is lost.
func (d *Device) Lost() <-chan struct{} { return d.lost }

// LostInfo returns the loss details.
func (d *Device) LostInfo() (backend.LostInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lostInfo == nil {
		return backend.LostInfo{}, false
	}
	return *d.lostInfo, true
}

// Destroy releases the device. It is safe to call more than once.
func (d *Device) Destroy() {
	d.markLost(backend.LostReasonDestroyed, "device destroyed")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.raw == nil {
		return
	}
	cts.Logger().Debug("wgpu: releasing device", "label", d.label)
	d.raw.Release()
}

var _ backend.Device = (*Device)(nil)
