package backend

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"
)

// Backend names.
const (
	NameWGPU = "wgpu"
	NameNull = "null"
)

// Factory opens a backend.
type Factory func() (Backend, error)

// registry holds registered backends. Real GPUs are preferred over the
// in-memory device.
var registry = gpucontext.NewRegistry[Factory](
	gpucontext.WithPriority(NameWGPU, NameNull),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registry.Register(name, func() Factory { return factory })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Default returns the name of the preferred registered backend, or "" if
// none is registered.
func Default() string {
	return registry.BestName()
}

// Open opens the backend registered under name. An empty name opens the
// default backend.
func Open(name string) (Backend, error) {
	if name == "" {
		name = Default()
		if name == "" {
			return nil, ErrBackendNotAvailable
		}
	}
	factory := registry.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	return b, nil
}
