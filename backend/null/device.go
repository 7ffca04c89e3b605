package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
)

// scope is one open error scope.
type scope struct {
	filter backend.ErrorFilter
	err    *backend.GPUError
}

// Device is an in-memory device.
type Device struct {
	id       int
	label    string
	features gputypes.Features
	limits   gputypes.Limits

	mu         sync.Mutex
	scopes     []scope
	uncaptured []*backend.GPUError
	hang       bool
	lost       chan struct{}
	lostInfo   *backend.LostInfo
	destroyed  bool
}

func newDevice(desc *gputypes.DeviceDescriptor, limits gputypes.Limits) *Device {
	d := &Device{limits: limits, lost: make(chan struct{})}
	if desc != nil {
		d.label = desc.Label
		for _, f := range desc.RequiredFeatures {
			d.features.Insert(f)
		}
	}
	return d
}

// ID returns the creation index of the device within its backend.
func (d *Device) ID() int { return d.id }

// Device returns the device itself as the native handle.
func (d *Device) Device() gpucontext.Device { return d }

// Queue returns nil; null devices have no queue.
func (d *Device) Queue() gpucontext.Queue { return nil }

// Adapter returns nil; null devices have no adapter.
func (d *Device) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null device.
func (d *Device) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo describes the null device as a software adapter.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "null", Type: gpucontext.AdapterTypeSoftware}
}

// Label returns the descriptor label.
func (d *Device) Label() string { return d.label }

// Features returns the features requested at creation.
func (d *Device) Features() gputypes.Features { return d.features }

// Limits returns the backend limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// PushErrorScope opens an error scope.
func (d *Device) PushErrorScope(filter backend.ErrorFilter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scopes = append(d.scopes, scope{filter: filter})
}

// PopErrorScope closes the innermost scope and returns its captured error.
func (d *Device) PopErrorScope(ctx context.Context) (*backend.GPUError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.scopes)
	if n == 0 {
		return nil, backend.ErrScopeUnderflow
	}
	s := d.scopes[n-1]
	d.scopes = d.scopes[:n-1]
	return s.err, nil
}

// ReportError raises an error on the device as if a GPU operation had
// failed. The innermost open scope with a matching filter captures it; a
// scope keeps only its first error. Errors no scope captures are recorded
// as uncaptured.
func (d *Device) ReportError(filter backend.ErrorFilter, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &backend.GPUError{Filter: filter, Message: message}
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if d.scopes[i].filter == filter {
			if d.scopes[i].err == nil {
				d.scopes[i].err = e
			}
			return
		}
	}
	d.uncaptured = append(d.uncaptured, e)
}

// Uncaptured returns errors reported while no matching scope was open.
func (d *Device) Uncaptured() []*backend.GPUError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*backend.GPUError(nil), d.uncaptured...)
}

// OpenScopes returns the number of open error scopes.
func (d *Device) OpenScopes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scopes)
}

// Lose marks the device lost. Only the first loss is recorded.
func (d *Device) Lose(reason backend.LostReason, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loseLocked(reason, message)
}

func (d *Device) loseLocked(reason backend.LostReason, message string) {
	if d.lostInfo != nil {
		return
	}
	d.lostInfo = &backend.LostInfo{Reason: reason, Message: message}
	close(d.lost)
}

// HangFlush makes Flush block until its context is done.
func (d *Device) HangFlush(hang bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang = hang
}

// Flush returns immediately unless HangFlush was set. It fails with
// backend.ErrDeviceLost after a loss.
func (d *Device) Flush(ctx context.Context) error {
	d.mu.Lock()
	hang, info := d.hang, d.lostInfo
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if info != nil {
		return fmt.Errorf("%w: %s", backend.ErrDeviceLost, info)
	}
	return ctx.Err()
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

// Destroy loses the device with LostReasonDestroyed.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	d.loseLocked(backend.LostReasonDestroyed, "device destroyed")
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

var _ backend.Device = (*Device)(nil)
