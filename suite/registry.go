package suite

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
)

// registry holds the suites compiled into the binary.
var registry = gpucontext.NewRegistry[*Suite]()

// Register makes s available by name. Registering the same name twice
// replaces the earlier suite.
func Register(s *Suite) {
	registry.Register(s.Name(), func() *Suite { return s })
}

// Unregister removes a suite.
func Unregister(name string) {
	registry.Unregister(name)
}

// Lookup returns the suite registered under name.
func Lookup(name string) (*Suite, error) {
	if !registry.Has(name) {
		return nil, fmt.Errorf("suite: unknown suite %q (available: %v)", name, Names())
	}
	return registry.Get(name), nil
}

// Names returns the registered suite names, sorted.
func Names() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}
