// Package smoke registers the "smoke" suite: a small set of device checks
// that every backend should pass or skip. It is linked into the cts command
// and doubles as an example of declaring tests.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/params"
	"github.com/gogpu/cts/suite"
)

// Name is the suite name.
const Name = "smoke"

func init() {
	suite.Register(New())
}

// features maps the feature parameter to the device feature it requests.
var features = map[string]gputypes.Feature{
	"depth_clip_control": gputypes.FeatureDepthClipControl,
	"shader_f16":         gputypes.FeatureShaderF16,
	"timestamp_query":    gputypes.FeatureTimestampQuery,
}

// New builds the smoke suite.
func New() *suite.Suite {
	s := suite.MustNew(Name)

	s.MustAdd(suite.Test{
		File:        []string{"api", "device"},
		Name:        []string{"default"},
		Description: "The default device reports the baseline limits.",
		Body:        testDefault,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "device"},
		Name:        []string{"features"},
		Description: "A device created with a feature enables it.",
		Params: params.Options("feature",
			params.String("depth_clip_control"),
			params.String("shader_f16"),
			params.String("timestamp_query"),
		),
		Keys:       []string{"feature"},
		Descriptor: featureDescriptor,
		Body:       testFeatures,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "device"},
		Name:        []string{"limits"},
		Description: "A device created with a raised limit reports at least that limit.",
		Params: params.Variant("limit",
			params.Case{Tag: params.String("MaxBindGroups"), Params: params.Options("value", params.Int(4), params.Int(8))},
			params.Case{Tag: params.String("MaxTextureDimension2D"), Params: params.Options("value", params.Int(8192), params.Int(16384))},
		),
		Keys:       []string{"limit", "value"},
		Descriptor: limitDescriptor,
		Body:       testLimits,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "device"},
		Name:        []string{"destroy"},
		Description: "Destroying a device loses it with reason destroyed.",
		Params:      params.Bools("flush_first"),
		Keys:        []string{"flush_first"},
		Body:        testDestroy,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "error_scope"},
		Name:        []string{"balanced"},
		Description: "Nested error scopes pop empty in reverse order.",
		Params: params.Expand(
			params.Options("filter", params.String("validation"), params.String("out-of-memory"), params.String("internal")),
			"depth",
			func(p params.Spec) []params.Value {
				if v, _ := p.Get("filter"); v == params.String("internal") {
					return []params.Value{params.Int(1)}
				}
				return []params.Value{params.Int(1), params.Int(3)}
			},
		),
		Keys: []string{"filter", "depth"},
		Body: testBalancedScopes,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "error_scope"},
		Name:        []string{"underflow"},
		Description: "Popping with no open scope fails.",
		Body:        testUnderflow,
	})
	s.MustAdd(suite.Test{
		File:        []string{"api", "queue"},
		Name:        []string{"flush"},
		Description: "Flush completes on an idle device.",
		Params: params.Expand(params.Options("repeat", params.Int(1), params.Int(4)), "_budget_ms",
			func(p params.Spec) []params.Value {
				n, _ := p.Get("repeat")
				return []params.Value{params.Int(250) * n.(params.Int)}
			},
		),
		Keys: []string{"repeat", "_budget_ms"},
		Body: testFlush,
	})
	return s
}

func featureDescriptor(p params.Spec) *gputypes.DeviceDescriptor {
	v, _ := p.Get("feature")
	f, ok := features[string(v.(params.String))]
	if !ok {
		return nil
	}
	return &gputypes.DeviceDescriptor{RequiredFeatures: []gputypes.Feature{f}}
}

func limitDescriptor(p params.Spec) *gputypes.DeviceDescriptor {
	name, _ := p.Get("limit")
	value, _ := p.Get("value")
	desc := &gputypes.DeviceDescriptor{}
	backend.SetLimit(&desc.RequiredLimits, string(name.(params.String)), uint64(value.(params.Int)))
	return desc
}

func testDefault(_ context.Context, env suite.Env) error {
	have, want := env.Device().Limits(), gputypes.DefaultLimits()
	if err := backend.CheckLimits(have, want); err != nil {
		return fmt.Errorf("default device below baseline: %w", err)
	}
	return nil
}

func testFeatures(_ context.Context, env suite.Env) error {
	v, _ := env.Params().Get("feature")
	f := features[string(v.(params.String))]
	if !env.Device().Features().Contains(f) {
		return fmt.Errorf("feature %s requested but not enabled", f)
	}
	return nil
}

func testLimits(_ context.Context, env suite.Env) error {
	name, _ := env.Params().Get("limit")
	value, _ := env.Params().Get("value")
	for _, l := range backend.EachLimit(env.Device().Limits()) {
		if l.Name != string(name.(params.String)) {
			continue
		}
		if l.Value < uint64(value.(params.Int)) {
			return fmt.Errorf("%s = %d, requested %s", l.Name, l.Value, value)
		}
		return nil
	}
	return fmt.Errorf("unknown limit %s", name)
}

func testDestroy(ctx context.Context, env suite.Env) error {
	dev := env.Device()
	if v, _ := env.Params().Get("flush_first"); v == params.Bool(true) {
		if err := dev.Flush(ctx); err != nil {
			return err
		}
	}
	if err := env.ExpectDeviceLost(backend.LostReasonDestroyed); err != nil {
		return err
	}
	dev.Destroy()

	select {
	case <-dev.Lost():
	case <-ctx.Done():
		return ctx.Err()
	}
	info, ok := dev.LostInfo()
	if !ok || info.Reason != backend.LostReasonDestroyed {
		return fmt.Errorf("lost info = %v, %v; want destroyed", info, ok)
	}
	return nil
}

var filters = map[params.String]backend.ErrorFilter{
	"validation":    backend.FilterValidation,
	"out-of-memory": backend.FilterOutOfMemory,
	"internal":      backend.FilterInternal,
}

func testBalancedScopes(ctx context.Context, env suite.Env) error {
	v, _ := env.Params().Get("filter")
	d, _ := env.Params().Get("depth")
	filter, depth := filters[v.(params.String)], int(d.(params.Int))

	dev := env.Device()
	for range depth {
		dev.PushErrorScope(filter)
	}
	for i := range depth {
		gpuErr, err := dev.PopErrorScope(ctx)
		if err != nil {
			return fmt.Errorf("pop %d: %w", i, err)
		}
		if gpuErr != nil {
			return fmt.Errorf("pop %d: unexpected %w", i, gpuErr)
		}
	}
	return nil
}

func testUnderflow(ctx context.Context, env suite.Env) error {
	dev := env.Device()
	// The pool keeps two scopes open around the body.
	var popped []*backend.GPUError
	for range 2 {
		gpuErr, err := dev.PopErrorScope(ctx)
		if err != nil {
			return err
		}
		popped = append(popped, gpuErr)
	}
	_, err := dev.PopErrorScope(ctx)
	// Restore the scopes the pool will pop on release.
	dev.PushErrorScope(backend.FilterOutOfMemory)
	dev.PushErrorScope(backend.FilterValidation)
	if !errors.Is(err, backend.ErrScopeUnderflow) {
		return fmt.Errorf("pop with no open scope = %v, want ErrScopeUnderflow", err)
	}
	for _, e := range popped {
		if e != nil {
			return fmt.Errorf("unexpected %w", e)
		}
	}
	return nil
}

func testFlush(ctx context.Context, env suite.Env) error {
	n, _ := env.Params().Get("repeat")
	budget, _ := env.Params().Get("_budget_ms")
	ctx, cancel := context.WithTimeout(ctx, time.Duration(budget.(params.Int))*time.Millisecond)
	defer cancel()
	for range int(n.(params.Int)) {
		if err := env.Device().Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
