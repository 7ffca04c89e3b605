package smoke

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/backend/null"
	"github.com/gogpu/cts/devicepool"
	"github.com/gogpu/cts/query"
	"github.com/gogpu/cts/runner"
	"github.com/gogpu/cts/suite"
)

func runSmoke(t *testing.T, b backend.Backend, q string) runner.Summary {
	t.Helper()
	cases, err := New().Collect(query.MustParse(q))
	if err != nil {
		t.Fatalf("Collect(%s) error = %v", q, err)
	}
	pool := devicepool.New(b)
	t.Cleanup(pool.Close)
	sum, err := runner.New(pool).Run(context.Background(), cases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, r := range sum.Results {
		if r.Status == runner.StatusFail {
			t.Errorf("%s failed: %v", r.Case, r.Err)
		}
	}
	return sum
}

func TestSmokeNull(t *testing.T) {
	sum := runSmoke(t, null.New(), "smoke:")
	if sum.Passed != 13 || sum.Skipped != 5 {
		t.Errorf("Summary pass=%d skip=%d, want 13 and 5", sum.Passed, sum.Skipped)
	}
	for _, r := range sum.Results {
		if r.Status == runner.StatusSkip && !errors.Is(r.Err, backend.ErrUnsupported) {
			t.Errorf("%s skipped with %v, want ErrUnsupported", r.Case, r.Err)
		}
	}
}

func TestSmokeNullAllFeatures(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxBindGroups = 8
	limits.MaxTextureDimension2D = 16384
	b := null.New(
		null.WithFeatures(gputypes.FeatureDepthClipControl, gputypes.FeatureShaderF16, gputypes.FeatureTimestampQuery),
		null.WithLimits(limits),
	)
	sum := runSmoke(t, b, "smoke:api,device:")
	if sum.Passed != 10 || sum.Skipped != 0 {
		t.Errorf("Summary pass=%d skip=%d, want 10 and 0", sum.Passed, sum.Skipped)
	}
}

func TestRegistered(t *testing.T) {
	s, err := suite.Lookup(Name)
	if err != nil {
		t.Fatalf("Lookup(%q) error = %v", Name, err)
	}
	qs, err := s.Queries()
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 18 {
		t.Errorf("Queries() = %d cases, want 18", len(qs))
	}
}

func TestLimitDescriptor(t *testing.T) {
	cases, err := New().Collect(query.MustParse(`smoke:api,device:limits:limit="MaxBindGroups",value=8`))
	if err != nil || len(cases) != 1 {
		t.Fatalf("Collect() = %d cases, %v", len(cases), err)
	}
	desc := cases[0].Descriptor()
	if desc == nil || desc.RequiredLimits.MaxBindGroups != 8 {
		t.Errorf("Descriptor() = %+v, want MaxBindGroups 8", desc)
	}
}
