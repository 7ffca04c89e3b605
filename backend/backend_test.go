package backend

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
)

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct{ name string }

func (b stubBackend) Name() string { return b.name }
func (stubBackend) RequestDevice(context.Context, *gputypes.DeviceDescriptor) (Device, error) {
	return nil, ErrUnsupported
}
func (stubBackend) Close() {}

func register(t *testing.T, name string, f Factory) {
	t.Helper()
	Register(name, f)
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryOpen(t *testing.T) {
	register(t, "stub-a", func() (Backend, error) { return stubBackend{"stub-a"}, nil })

	if !IsRegistered("stub-a") {
		t.Fatal("IsRegistered(stub-a) = false")
	}
	if !slices.Contains(Available(), "stub-a") {
		t.Errorf("Available() = %v, missing stub-a", Available())
	}
	b, err := Open("stub-a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.Name() != "stub-a" {
		t.Errorf("Name() = %q, want stub-a", b.Name())
	}
}

func TestRegistryOpenMissing(t *testing.T) {
	if _, err := Open("no-such-backend"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(missing) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryOpenFactoryError(t *testing.T) {
	boom := errors.New("no adapter")
	register(t, "stub-fail", func() (Backend, error) { return nil, boom })
	if _, err := Open("stub-fail"); !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want wrapped %v", err, boom)
	}
}

func TestRegistryPriority(t *testing.T) {
	register(t, NameNull, func() (Backend, error) { return stubBackend{NameNull}, nil })
	if got := Default(); got != NameNull && got != NameWGPU {
		t.Errorf("Default() = %q", got)
	}
	register(t, NameWGPU, func() (Backend, error) { return stubBackend{NameWGPU}, nil })
	if got := Default(); got != NameWGPU {
		t.Errorf("Default() = %q, want %q", got, NameWGPU)
	}
	b, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") error = %v", err)
	}
	if b.Name() != NameWGPU {
		t.Errorf("Open(\"\") = %q, want %q", b.Name(), NameWGPU)
	}
}

func TestEachLimit(t *testing.T) {
	limits := EachLimit(gputypes.DefaultLimits())
	if len(limits) == 0 {
		t.Fatal("EachLimit returned nothing")
	}
	if limits[0].Name != "MaxTextureDimension1D" || limits[0].Value != 8192 {
		t.Errorf("first limit = %+v, want MaxTextureDimension1D=8192", limits[0])
	}
	found := false
	for _, l := range limits {
		if l.Name == "MinUniformBufferOffsetAlignment" {
			found = true
			if !l.IsAlignment() {
				t.Error("MinUniformBufferOffsetAlignment is not an alignment limit")
			}
		}
	}
	if !found {
		t.Error("MinUniformBufferOffsetAlignment missing")
	}
}

func TestCheckLimits(t *testing.T) {
	have := gputypes.DefaultLimits()
	tests := []struct {
		name string
		req  gputypes.Limits
		ok   bool
	}{
		{"zero", gputypes.Limits{}, true},
		{"defaults", gputypes.DefaultLimits(), true},
		{"lower max", gputypes.Limits{MaxBindGroups: 2}, true},
		{"higher max", gputypes.Limits{MaxBindGroups: 8}, false},
		{"looser alignment", gputypes.Limits{MinUniformBufferOffsetAlignment: 512}, true},
		{"stricter alignment", gputypes.Limits{MinUniformBufferOffsetAlignment: 64}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckLimits(have, tt.req)
			if tt.ok && err != nil {
				t.Errorf("CheckLimits() error = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsupported) {
				t.Errorf("CheckLimits() error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestMergeLimits(t *testing.T) {
	got := MergeLimits(gputypes.DefaultLimits(), gputypes.Limits{MaxBindGroups: 2, MaxBufferSize: 1 << 20})
	want := gputypes.DefaultLimits()
	want.MaxBindGroups = 2
	want.MaxBufferSize = 1 << 20
	if got != want {
		t.Errorf("MergeLimits() = %+v, want %+v", got, want)
	}
}

func TestSupported(t *testing.T) {
	var fs gputypes.Features
	fs.Insert(gputypes.FeatureShaderF16)
	limits := gputypes.DefaultLimits()

	if err := Supported(fs, limits, nil); err != nil {
		t.Errorf("Supported(nil) = %v", err)
	}
	ok := &gputypes.DeviceDescriptor{RequiredFeatures: []gputypes.Feature{gputypes.FeatureShaderF16}}
	if err := Supported(fs, limits, ok); err != nil {
		t.Errorf("Supported(shader-f16) = %v", err)
	}
	bad := &gputypes.DeviceDescriptor{RequiredFeatures: []gputypes.Feature{gputypes.FeatureTimestampQuery}}
	if err := Supported(fs, limits, bad); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Supported(timestamp-query) = %v, want ErrUnsupported", err)
	}
}

func TestStrings(t *testing.T) {
	if got := FilterOutOfMemory.String(); got != "out-of-memory" {
		t.Errorf("FilterOutOfMemory.String() = %q", got)
	}
	if got := (LostInfo{Reason: LostReasonDestroyed, Message: "bye"}).String(); got != "destroyed: bye" {
		t.Errorf("LostInfo.String() = %q", got)
	}
	e := &GPUError{Filter: FilterValidation, Message: "bad bind group"}
	if got := e.Error(); got != "GPU validation error: bad bind group" {
		t.Errorf("GPUError.Error() = %q", got)
	}
}
