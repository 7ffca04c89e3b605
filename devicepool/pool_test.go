// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/backend/null"
)

// desc returns a distinct supported descriptor for each n.
func desc(n int) *gputypes.DeviceDescriptor {
	return &gputypes.DeviceDescriptor{
		RequiredLimits: gputypes.Limits{MaxBufferSize: uint64(1024 * (n + 1))},
	}
}

func newPool(t *testing.T, b *null.Backend, opts ...Option) *Pool {
	t.Helper()
	p := New(b, opts...)
	t.Cleanup(p.Close)
	return p
}

func nullDevice(t *testing.T, h *Holder) *null.Device {
	t.Helper()
	d, ok := h.Device().(*null.Device)
	if !ok {
		t.Fatalf("Device() = %T, want *null.Device", h.Device())
	}
	return d
}

func reserve(t *testing.T, p *Pool, d *gputypes.DeviceDescriptor) *Holder {
	t.Helper()
	h, err := p.Reserve(context.Background(), d)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	return h
}

func acquire(t *testing.T, h *Holder) *null.Device {
	t.Helper()
	if _, err := h.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	return nullDevice(t, h)
}

func TestReserveReusesFreeHolder(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h1 := reserve(t, p, desc(0))
	if h1.State() != StateReserved {
		t.Errorf("State() = %v, want reserved", h1.State())
	}
	if err := p.Release(ctx, h1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	h2 := reserve(t, p, desc(0))
	if h2 != h1 {
		t.Error("Reserve() of same descriptor returned a different holder while free")
	}
	if err := p.Release(ctx, h2); err != nil {
		t.Fatal(err)
	}

	// The initial device serves the nil descriptor.
	h3 := reserve(t, p, nil)
	if h3.Key() != NilKey {
		t.Errorf("Key() = %q, want nil key", h3.Key())
	}
	if s := p.Stats(); s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats() hits=%d misses=%d, want 2 and 1", s.Hits, s.Misses)
	}
}

func TestReserveWhileAcquired(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h1 := reserve(t, p, desc(0))
	acquire(t, h1)
	h2 := reserve(t, p, desc(0))
	if h2 == h1 {
		t.Fatal("Reserve() returned an acquired holder")
	}
	if h2.Device() == h1.Device() {
		t.Error("holders share a device")
	}
	for _, h := range []*Holder{h1, h2} {
		if err := p.Release(ctx, h); err != nil {
			t.Errorf("Release() error = %v", err)
		}
	}
}

func TestEvictLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New(), WithCapacity(2))

	var hs []*Holder
	for i := 0; i < 3; i++ {
		h := reserve(t, p, desc(i))
		if err := p.Release(ctx, h); err != nil {
			t.Fatal(err)
		}
		hs = append(hs, h)
	}

	if !nullDevice(t, hs[0]).Destroyed() {
		t.Error("evicted free holder was not destroyed")
	}
	h := reserve(t, p, desc(0))
	if h == hs[0] {
		t.Error("evicted holder was reused")
	}
	s := p.Stats()
	if s.Len != 2 || s.Capacity != 2 {
		t.Errorf("Stats() len=%d cap=%d, want 2 and 2", s.Len, s.Capacity)
	}
	// initial device, desc(0), then desc(1)
	if s.Evictions != 3 {
		t.Errorf("Stats().Evictions = %d, want 3", s.Evictions)
	}
}

func TestEvictedBusyHolderDestroyedOnRelease(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New(), WithCapacity(1))

	h0 := reserve(t, p, desc(0))
	dev := acquire(t, h0)
	h1 := reserve(t, p, desc(1))

	if dev.Destroyed() {
		t.Fatal("busy holder destroyed on eviction")
	}
	if err := p.Release(ctx, h0); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !dev.Destroyed() {
		t.Error("evicted holder not destroyed on release")
	}
	if h0.State() != StateFree {
		t.Errorf("State() = %v, want free", h0.State())
	}
	if err := p.Release(ctx, h1); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseUnexpectedLoss(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	dev.Lose(backend.LostReasonUnknown, "gpu reset")

	err := p.Release(ctx, h)
	if !errors.Is(err, backend.ErrDeviceLost) {
		t.Fatalf("Release() error = %v, want ErrDeviceLost", err)
	}
	if h.State() != StateFree {
		t.Errorf("State() = %v, want free", h.State())
	}
	if !dev.Destroyed() {
		t.Error("lost device not destroyed")
	}
	if again := reserve(t, p, desc(0)); again == h {
		t.Error("lost holder was reused")
	}
	if s := p.Stats(); s.Removals != 1 {
		t.Errorf("Stats().Removals = %d, want 1", s.Removals)
	}
}

func TestReleaseExpectedLoss(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	if err := h.ExpectDeviceLost(backend.LostReasonDestroyed); err != nil {
		t.Fatal(err)
	}
	dev.Destroy()

	if err := p.Release(ctx, h); err != nil {
		t.Errorf("Release() error = %v, want nil for expected loss", err)
	}
	if again := reserve(t, p, desc(0)); again == h {
		t.Error("lost holder was reused")
	}
}

func TestReleaseLossWithOtherReason(t *testing.T) {
	p := newPool(t, null.New())
	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	if err := h.ExpectDeviceLost(backend.LostReasonDestroyed); err != nil {
		t.Fatal(err)
	}
	dev.Lose(backend.LostReasonUnknown, "driver crash")

	if err := p.Release(context.Background(), h); !errors.Is(err, backend.ErrDeviceLost) {
		t.Errorf("Release() error = %v, want ErrDeviceLost", err)
	}
}

func TestReleaseExpectedLossMissing(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	if err := h.ExpectDeviceLost(backend.LostReasonDestroyed); err != nil {
		t.Fatal(err)
	}

	if err := p.Release(ctx, h); !errors.Is(err, ErrExpectedLossMissing) {
		t.Errorf("Release() error = %v, want ErrExpectedLossMissing", err)
	}
	if !dev.Destroyed() {
		t.Error("holder kept after missing expected loss")
	}

	// The expectation does not leak into the next use of a holder.
	h2 := reserve(t, p, desc(0))
	acquire(t, h2)
	if err := p.Release(ctx, h2); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestExpectDeviceLostRequiresAcquired(t *testing.T) {
	p := newPool(t, null.New())
	h := reserve(t, p, desc(0))
	if err := h.ExpectDeviceLost(backend.LostReasonDestroyed); !errors.Is(err, ErrHolderState) {
		t.Errorf("ExpectDeviceLost() on reserved holder error = %v, want ErrHolderState", err)
	}
}

func TestReleaseValidationErrorKeepsDevice(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())

	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	dev.ReportError(backend.FilterValidation, "bad bind group")

	err := p.Release(ctx, h)
	var reusable *ReusableError
	if !errors.As(err, &reusable) {
		t.Fatalf("Release() error = %v, want *ReusableError", err)
	}
	if reusable.GPU.Message != "bad bind group" {
		t.Errorf("ReusableError.GPU = %v", reusable.GPU)
	}
	if dev.Destroyed() {
		t.Error("device destroyed after validation error")
	}
	if dev.OpenScopes() != 0 {
		t.Errorf("OpenScopes() = %d, want 0", dev.OpenScopes())
	}
	if again := reserve(t, p, desc(0)); again != h {
		t.Error("holder not reused after validation error")
	}
}

func TestReleaseOutOfMemory(t *testing.T) {
	p := newPool(t, null.New())
	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	dev.ReportError(backend.FilterOutOfMemory, "heap exhausted")

	if err := p.Release(context.Background(), h); !errors.Is(err, backend.ErrOutOfMemory) {
		t.Errorf("Release() error = %v, want ErrOutOfMemory", err)
	}
	if !dev.Destroyed() {
		t.Error("device kept after out-of-memory")
	}
}

func TestReleaseScopeUnderflow(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())
	h := reserve(t, p, desc(0))
	dev := acquire(t, h)

	// The test body unbalances the scope stack.
	for i := 0; i < 2; i++ {
		if _, err := dev.PopErrorScope(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Release(ctx, h); !errors.Is(err, backend.ErrScopeUnderflow) {
		t.Errorf("Release() error = %v, want ErrScopeUnderflow", err)
	}
	if !dev.Destroyed() {
		t.Error("device kept after scope failure")
	}
}

func TestReleaseScopeLeaked(t *testing.T) {
	var logs bytes.Buffer
	orig := cts.Logger()
	cts.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { cts.SetLogger(orig) })

	ctx := context.Background()
	p := newPool(t, null.New())
	h := reserve(t, p, desc(0))
	dev := acquire(t, h)

	// The test body pushes a scope and never pops it.
	dev.PushErrorScope(backend.FilterValidation)

	err := p.Release(ctx, h)
	if !errors.Is(err, ErrScopeLeaked) {
		t.Fatalf("Release() error = %v, want ErrScopeLeaked", err)
	}
	var reusable *ReusableError
	if errors.As(err, &reusable) {
		t.Error("leaked scope reported as reusable")
	}
	if !dev.Destroyed() {
		t.Error("device kept after leaked scope")
	}
	for _, other := range p.Holders() {
		if other == h {
			t.Error("holder still pooled after leaked scope")
		}
	}
	if s := p.Stats(); s.Removals != 1 {
		t.Errorf("Removals = %d, want 1", s.Removals)
	}
	if again := reserve(t, p, desc(0)); again == h {
		t.Error("holder with leaked scope was reused")
	}
	if !strings.Contains(logs.String(), "devicepool: removing device") {
		t.Errorf("removal not logged:\n%s", logs.String())
	}
}

func TestReleaseTimeout(t *testing.T) {
	p := newPool(t, null.New(), WithReleaseTimeout(20*time.Millisecond))
	h := reserve(t, p, desc(0))
	dev := acquire(t, h)
	dev.HangFlush(true)

	start := time.Now()
	err := p.Release(context.Background(), h)
	if !errors.Is(err, ErrReleaseTimeout) {
		t.Fatalf("Release() error = %v, want ErrReleaseTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Release() took %v", elapsed)
	}
	if h.State() != StateFree {
		t.Errorf("State() = %v, want free", h.State())
	}
	if !dev.Destroyed() {
		t.Error("device kept after timeout")
	}
}

func TestReleaseErrors(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New())
	other := newPool(t, null.New())

	h := reserve(t, p, desc(0))
	if err := other.Release(ctx, h); !errors.Is(err, ErrForeignHolder) {
		t.Errorf("Release() on other pool error = %v, want ErrForeignHolder", err)
	}
	if err := p.Release(ctx, nil); !errors.Is(err, ErrForeignHolder) {
		t.Errorf("Release(nil) error = %v, want ErrForeignHolder", err)
	}
	if err := p.Release(ctx, h); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(ctx, h); !errors.Is(err, ErrHolderState) {
		t.Errorf("second Release() error = %v, want ErrHolderState", err)
	}
	if _, err := h.Acquire(); !errors.Is(err, ErrHolderState) {
		t.Errorf("Acquire() on free holder error = %v, want ErrHolderState", err)
	}
}

func TestUnsupportedIsCached(t *testing.T) {
	var calls atomic.Int32
	b := null.New(null.WithRequestHook(func(d *gputypes.DeviceDescriptor) error {
		if d != nil {
			calls.Add(1)
		}
		return nil
	}))
	p := newPool(t, b)
	d := &gputypes.DeviceDescriptor{RequiredFeatures: []gputypes.Feature{gputypes.FeatureTimestampQuery}}

	for i := 0; i < 3; i++ {
		_, err := p.Reserve(context.Background(), d)
		var skip *SkipError
		if !errors.As(err, &skip) {
			t.Fatalf("Reserve() #%d error = %v, want *SkipError", i, err)
		}
		if !errors.Is(err, backend.ErrUnsupported) {
			t.Errorf("SkipError does not match ErrUnsupported")
		}
		if skip.Key != "features=TimestampQuery;limits=" {
			t.Errorf("SkipError.Key = %q", skip.Key)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend asked %d times, want 1", n)
	}
	if s := p.Stats(); s.Skips != 3 {
		t.Errorf("Stats().Skips = %d, want 3", s.Skips)
	}
}

func TestFirstConstructionFailureIsFatal(t *testing.T) {
	boom := errors.New("no driver")
	var calls atomic.Int32
	b := null.New(null.WithRequestHook(func(*gputypes.DeviceDescriptor) error {
		calls.Add(1)
		return boom
	}))
	p := newPool(t, b)

	for i := 0; i < 2; i++ {
		_, err := p.Reserve(context.Background(), desc(0))
		if !errors.Is(err, ErrPoolFailed) {
			t.Fatalf("Reserve() #%d error = %v, want ErrPoolFailed", i, err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("Reserve() #%d error = %v, want cause %v", i, err, boom)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend asked %d times, want 1", n)
	}
}

func TestLaterConstructionFailureIsNotFatal(t *testing.T) {
	boom := errors.New("transient")
	b := null.New(null.WithRequestHook(func(d *gputypes.DeviceDescriptor) error {
		if d != nil && d.RequiredLimits.MaxBufferSize == desc(1).RequiredLimits.MaxBufferSize {
			return boom
		}
		return nil
	}))
	p := newPool(t, b)

	if _, err := p.Reserve(context.Background(), desc(1)); !errors.Is(err, boom) || errors.Is(err, ErrPoolFailed) {
		t.Fatalf("Reserve() error = %v, want %v only", err, boom)
	}
	reserve(t, p, desc(0))
}

func TestCanceledInitializationRetries(t *testing.T) {
	p := newPool(t, null.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Reserve(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Reserve() error = %v, want context.Canceled", err)
	}
	reserve(t, p, nil)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	b := null.New()
	p := New(b)

	free := reserve(t, p, desc(0))
	if err := p.Release(ctx, free); err != nil {
		t.Fatal(err)
	}
	busy := reserve(t, p, desc(1))
	busyDev := acquire(t, busy)

	p.Close()
	if !nullDevice(t, free).Destroyed() {
		t.Error("free device survived Close")
	}
	if busyDev.Destroyed() {
		t.Error("busy device destroyed by Close")
	}
	if _, err := p.Reserve(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Reserve() after Close error = %v, want ErrClosed", err)
	}
	if _, err := b.RequestDevice(ctx, nil); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("backend not closed: %v", err)
	}
	if err := p.Release(ctx, busy); err != nil {
		t.Errorf("Release() after Close error = %v", err)
	}
	if !busyDev.Destroyed() {
		t.Error("busy device not destroyed on release after Close")
	}
	p.Close()
}

func TestConcurrentReserveRelease(t *testing.T) {
	ctx := context.Background()
	p := newPool(t, null.New(), WithCapacity(3))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				h, err := p.Reserve(ctx, desc((i+j)%4))
				if err != nil {
					errs <- err
					return
				}
				if _, err := h.Acquire(); err != nil {
					errs <- err
					return
				}
				if err := p.Release(ctx, h); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent use error = %v", err)
	}
	if s := p.Stats(); s.Len > 3 {
		t.Errorf("Stats().Len = %d, exceeds capacity 3", s.Len)
	}
}
