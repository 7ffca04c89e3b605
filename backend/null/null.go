// Package null provides an in-memory device backend.
//
// Devices created by this backend do no GPU work. They track error scopes,
// support fault injection (ReportError, Lose, HangFlush) and enforce a
// configurable feature and limit set, which makes them suitable for unit
// tests and for dry runs of a test plan:
//
//	b := null.New(null.WithFeatures(gputypes.FeatureShaderF16))
//	dev, err := b.RequestDevice(ctx, desc)
//
// The backend registers itself as "null".
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
)

func init() {
	backend.Register(backend.NameNull, func() (backend.Backend, error) {
		return New(), nil
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithFeatures sets the features the backend supports.
func WithFeatures(fs ...gputypes.Feature) Option {
	return func(b *Backend) {
		for _, f := range fs {
			b.features.Insert(f)
		}
	}
}

// WithLimits sets the limits the backend supports.
func WithLimits(l gputypes.Limits) Option {
	return func(b *Backend) {
		b.limits = l
	}
}

// WithRequestHook installs a function called before every device request.
// A non-nil error from the hook is returned by RequestDevice.
func WithRequestHook(hook func(desc *gputypes.DeviceDescriptor) error) Option {
	return func(b *Backend) {
		b.hook = hook
	}
}

// Backend creates null devices. It is safe for concurrent use.
type Backend struct {
	features gputypes.Features
	limits   gputypes.Limits
	hook     func(*gputypes.DeviceDescriptor) error

	mu      sync.Mutex
	devices []*Device
	closed  bool
}

// New creates a null backend. By default it supports no optional features
// and the default WebGPU limits.
func New(opts ...Option) *Backend {
	b := &Backend{limits: gputypes.DefaultLimits()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "null".
func (b *Backend) Name() string { return backend.NameNull }

// RequestDevice creates a device for desc.
func (b *Backend) RequestDevice(ctx context.Context, desc *gputypes.DeviceDescriptor) (backend.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.hook != nil {
		if err := b.hook(desc); err != nil {
			return nil, err
		}
	}
	if err := backend.Supported(b.features, b.limits, desc); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	d := newDevice(desc, b.limits)
	d.id = len(b.devices)
	b.devices = append(b.devices, d)
	return d, nil
}

// Devices returns every device created so far, in creation order.
func (b *Backend) Devices() []*Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Device(nil), b.devices...)
}

// Close marks the backend closed. Further requests fail with
// backend.ErrClosed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// String returns a short description for logs.
func (b *Backend) String() string {
	return fmt.Sprintf("null(features=%d)", b.features.Count())
}

var _ backend.Backend = (*Backend)(nil)
