// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides a device backend on top of gogpu/wgpu.
//
// The backend opens one instance and one adapter and creates a logical
// device per request. It uses the Pure Go WebGPU implementation, which
// selects Vulkan, Metal, DX12 or GLES depending on the platform.
//
// # Opening
//
//	b, err := wgpu.Open(wgpu.WithPowerPreference(gputypes.PowerPreferenceLowPower))
//	if err != nil {
//		// no adapter on this machine
//	}
//	defer b.Close()
//
// Open compiles a small WGSL compute shader with gogpu/naga. Every device
// created afterwards loads it as a SPIR-V module, so a broken shader path is
// reported at device creation rather than inside a test body.
//
// # Capabilities
//
// RequestDevice checks the descriptor against the adapter's features and
// limits first and returns an error wrapping backend.ErrUnsupported when
// they cannot be satisfied. Zero limits in the descriptor keep the WebGPU
// defaults.
//
// # Error scopes and loss
//
// Error scopes map onto wgpu.Device.PushErrorScope and PopErrorScope. The
// wrapper tracks scope depth, so popping an empty stack returns
// backend.ErrScopeUnderflow. Flush waits for the device to go idle; a
// wgpu.ErrDeviceLost from the driver marks the device lost.
//
// The package registers itself as "wgpu" in the backend registry.
package wgpu
