// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"

	// Register HAL backends for the current platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
)

// probeWGSL is loaded into every new device.
const probeWGSL = `
@group(0) @binding(0) var<storage, read_write> out: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    out[gid.x] = gid.x + 1u;
}
`

func init() {
	backend.Register(backend.NameWGPU, func() (backend.Backend, error) {
		return Open()
	})
}

// Option configures Open.
type Option func(*config)

type config struct {
	power    gputypes.PowerPreference
	fallback bool
}

// WithPowerPreference selects the adapter power preference.
// Default: high performance.
func WithPowerPreference(p gputypes.PowerPreference) Option {
	return func(c *config) {
		c.power = p
	}
}

// WithForceFallbackAdapter requests a software adapter.
func WithForceFallbackAdapter(force bool) Option {
	return func(c *config) {
		c.fallback = force
	}
}

// Backend creates wgpu devices from a single adapter.
type Backend struct {
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	probe    []uint32
	closed   bool
}

// Open creates the instance and selects an adapter.
func Open(opts ...Option) (*Backend, error) {
	cfg := config{power: gputypes.PowerPreferenceHighPerformance}
	for _, opt := range opts {
		opt(&cfg)
	}

	probe, err := compileProbe()
	if err != nil {
		return nil, err
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      cfg.power,
		ForceFallbackAdapter: cfg.fallback,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: request adapter: %w", err)
	}

	info := adapter.Info()
	cts.Logger().Info("wgpu: adapter selected",
		"name", info.Name,
		"type", info.DeviceType,
		"driver", info.Driver,
	)

	return &Backend{instance: instance, adapter: adapter, probe: probe}, nil
}

// compileProbe compiles probeWGSL to SPIR-V words.
func compileProbe() ([]uint32, error) {
	spirvBytes, err := naga.Compile(probeWGSL)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile probe shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("wgpu: probe shader has %d bytes, not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Name returns "wgpu".
func (b *Backend) Name() string { return backend.NameWGPU }

// AdapterInfo returns the selected adapter's description.
func (b *Backend) AdapterInfo() gputypes.AdapterInfo { return b.adapter.Info() }

// RequestDevice creates a device satisfying desc. A nil desc requests a
// device with default features and limits.
func (b *Backend) RequestDevice(ctx context.Context, desc *gputypes.DeviceDescriptor) (backend.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}

	if err := backend.Supported(b.adapter.Features(), b.adapter.Limits(), desc); err != nil {
		return nil, err
	}

	raw, err := b.adapter.RequestDevice(toDeviceDescriptor(desc))
	if err != nil {
		return nil, fmt.Errorf("wgpu: request device: %w", err)
	}

	module, err := raw.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "cts-probe",
		SPIRV: b.probe,
	})
	if err != nil {
		raw.Release()
		return nil, fmt.Errorf("wgpu: load probe shader: %w", err)
	}
	module.Release()

	label := ""
	if desc != nil {
		label = desc.Label
	}
	return newDevice(raw, b.adapter.Info(), label), nil
}

// Close releases the adapter and instance. Devices already created stay
// valid until destroyed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.adapter.Release()
	b.instance.Release()
}

// toDeviceDescriptor converts desc into a wgpu descriptor. Zero limits
// fall back to the WebGPU defaults.
func toDeviceDescriptor(desc *gputypes.DeviceDescriptor) *wgpu.DeviceDescriptor {
	out := &wgpu.DeviceDescriptor{RequiredLimits: wgpu.DefaultLimits()}
	if desc == nil {
		return out
	}
	out.Label = desc.Label
	for _, f := range desc.RequiredFeatures {
		out.RequiredFeatures.Insert(f)
	}
	out.RequiredLimits = backend.MergeLimits(out.RequiredLimits, desc.RequiredLimits)
	return out
}

var _ backend.Backend = (*Backend)(nil)
