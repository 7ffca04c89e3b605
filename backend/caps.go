package backend

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gogpu/gputypes"
)

// Limit is one named field of gputypes.Limits.
type Limit struct {
	Name  string
	Value uint64
}

// IsAlignment reports whether l is a minimum (alignment) limit, for which
// smaller values are stronger.
func (l Limit) IsAlignment() bool { return strings.HasPrefix(l.Name, "Min") }

// EachLimit returns every field of l in declaration order.
func EachLimit(l gputypes.Limits) []Limit {
	v := reflect.ValueOf(l)
	t := v.Type()
	out := make([]Limit, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, Limit{Name: t.Field(i).Name, Value: f.Uint()})
		}
	}
	return out
}

// MergeLimits returns base with every non-zero field of override applied.
func MergeLimits(base, override gputypes.Limits) gputypes.Limits {
	dst := reflect.ValueOf(&base).Elem()
	src := reflect.ValueOf(override)
	for i := 0; i < src.NumField(); i++ {
		f := src.Field(i)
		switch f.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if f.Uint() != 0 {
				dst.Field(i).SetUint(f.Uint())
			}
		}
	}
	return base
}

// SetLimit sets the field of l called name to v. It reports false if no
// such limit exists.
func SetLimit(l *gputypes.Limits, name string, v uint64) bool {
	f := reflect.ValueOf(l).Elem().FieldByName(name)
	if !f.IsValid() {
		return false
	}
	switch f.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.SetUint(v)
		return true
	}
	return false
}

// CheckFeatures returns an error wrapping ErrUnsupported if a required
// feature is missing from supported.
func CheckFeatures(supported gputypes.Features, required []gputypes.Feature) error {
	for _, f := range required {
		if !supported.Contains(f) {
			return fmt.Errorf("%w: feature %s", ErrUnsupported, f)
		}
	}
	return nil
}

// CheckLimits returns an error wrapping ErrUnsupported if a non-zero
// required limit is stronger than the supported one. Zero fields of
// required are treated as unset.
func CheckLimits(supported, required gputypes.Limits) error {
	have := EachLimit(supported)
	for i, want := range EachLimit(required) {
		if want.Value == 0 {
			continue
		}
		got := have[i].Value
		if want.IsAlignment() {
			if want.Value < got {
				return fmt.Errorf("%w: %s %d below minimum %d", ErrUnsupported, want.Name, want.Value, got)
			}
			continue
		}
		if want.Value > got {
			return fmt.Errorf("%w: %s %d above maximum %d", ErrUnsupported, want.Name, want.Value, got)
		}
	}
	return nil
}

// Supported reports whether desc can be satisfied by a device with the
// given features and limits. A nil desc is always supported.
func Supported(features gputypes.Features, limits gputypes.Limits, desc *gputypes.DeviceDescriptor) error {
	if desc == nil {
		return nil
	}
	if err := CheckFeatures(features, desc.RequiredFeatures); err != nil {
		return err
	}
	return CheckLimits(limits, desc.RequiredLimits)
}
