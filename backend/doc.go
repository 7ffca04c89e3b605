// Package backend defines the device layer consumed by the device pool.
//
// A Backend creates Devices from gputypes.DeviceDescriptor values. Devices
// expose error scopes, a flush barrier and loss notification, which is all
// the pool needs to decide whether a device survived a test.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/cts/backend/null"
//	import _ "github.com/gogpu/cts/backend/wgpu"
//
// # Backend Selection
//
// Use Open with an empty name to get the preferred registered backend, or
// pass a specific name:
//
//	b, err := backend.Open("")     // wgpu if registered, otherwise null
//	b, err := backend.Open("null") // in-memory devices
//
// # Available Backends
//
//   - "null": in-memory devices with configurable capabilities and fault
//     injection (always available, used by unit tests)
//   - "wgpu": real devices via gogpu/wgpu
package backend
