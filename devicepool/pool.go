// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"go.uber.org/multierr"

	"github.com/gogpu/cts"
	"github.com/gogpu/cts/backend"
)

type lifecycle int

const (
	uninitialized lifecycle = iota
	ready
	failed
	closed
)

// Pool reuses devices across tests. It is safe for concurrent use.
type Pool struct {
	backend        backend.Backend
	capacity       int
	releaseTimeout time.Duration

	initMu sync.Mutex

	mu          sync.Mutex
	state       lifecycle
	cause       error
	holders     lruList
	unsupported map[Key]error
	stats       Stats
}

// Stats contains pool statistics.
type Stats struct {
	// Len is the current number of holders.
	Len int
	// Capacity is the maximum number of holders.
	Capacity int
	// Hits counts reserves served by a free holder.
	Hits uint64
	// Misses counts reserves that constructed a device.
	Misses uint64
	// Evictions counts holders dropped for capacity.
	Evictions uint64
	// Removals counts holders dropped after an unrecoverable failure.
	Removals uint64
	// Skips counts reserves answered with a SkipError.
	Skips uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
}

// New creates a pool on top of b. The pool owns b and closes it in Close.
func New(b backend.Backend, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool{
		backend:        b,
		capacity:       o.capacity,
		releaseTimeout: o.releaseTimeout,
		unsupported:    make(map[Key]error),
	}
}

// Reserve returns a holder whose device satisfies desc.
//
// The first call creates a device for the nil descriptor; if that fails the
// pool is failed for good and every later call returns ErrPoolFailed. A free
// holder with the same canonical key is reused. Otherwise a new device is
// created; when the backend reports backend.ErrUnsupported the key is
// remembered and a *SkipError is returned now and for every later request
// with that key. Adding a holder beyond capacity evicts the least recently
// used one, busy or not.
func (p *Pool) Reserve(ctx context.Context, desc *gputypes.DeviceDescriptor) (*Holder, error) {
	if err := p.initialize(ctx); err != nil {
		return nil, err
	}
	key, canon := Canonicalize(desc)

	p.mu.Lock()
	if err := p.usableLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if cause, ok := p.unsupported[key]; ok {
		p.stats.Skips++
		p.mu.Unlock()
		return nil, &SkipError{Key: key, Err: cause}
	}
	if node := p.holders.Find(func(h *Holder) bool {
		return h.key == key && h.state == StateFree
	}); node != nil {
		node.holder.state = StateReserved
		p.holders.MoveToFront(node)
		p.stats.Hits++
		p.mu.Unlock()
		return node.holder, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	h, err := p.create(ctx, key, canon)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err := p.usableLocked(); err != nil {
		p.mu.Unlock()
		h.device.Destroy()
		return nil, err
	}
	h.state = StateReserved
	h.node = p.holders.PushFront(h)
	var victim *Holder
	if p.holders.Len() > p.capacity {
		victim = p.evictLocked()
	}
	p.mu.Unlock()

	if victim != nil {
		victim.device.Destroy()
	}
	return h, nil
}

// initialize creates the nil-descriptor device on first use.
func (p *Pool) initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != uninitialized {
		return nil
	}

	h, err := p.create(ctx, NilKey, nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case err == nil:
		if p.state == closed {
			h.device.Destroy()
			return nil
		}
		h.node = p.holders.PushFront(h)
		p.state = ready
		cts.Logger().Info("devicepool: initialized", "backend", p.backend.Name())
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, backend.ErrUnsupported):
		// create already cached the key
		p.state = ready
		return nil
	default:
		p.state = failed
		p.cause = err
		cts.Logger().Error("devicepool: initial device failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPoolFailed, err)
	}
}

// create asks the backend for a device. Unsupported descriptors are
// recorded and reported as *SkipError.
func (p *Pool) create(ctx context.Context, key Key, desc *gputypes.DeviceDescriptor) (*Holder, error) {
	dev, err := p.backend.RequestDevice(ctx, desc)
	if err == nil {
		cts.Logger().Debug("devicepool: device created", "key", key)
		return &Holder{pool: p, key: key, desc: desc, device: dev}, nil
	}
	if errors.Is(err, backend.ErrUnsupported) {
		p.mu.Lock()
		p.unsupported[key] = err
		p.stats.Skips++
		p.mu.Unlock()
		cts.Logger().Info("devicepool: descriptor unsupported", "key", key, "error", err)
		return nil, &SkipError{Key: key, Err: err}
	}
	return nil, fmt.Errorf("devicepool: create device %s: %w", key, err)
}

// usableLocked reports whether the pool accepts reserves.
func (p *Pool) usableLocked() error {
	switch p.state {
	case closed:
		return ErrClosed
	case failed:
		return fmt.Errorf("%w: %w", ErrPoolFailed, p.cause)
	default:
		return nil
	}
}

// evictLocked drops the least recently used holder. It returns the holder
// if its device must be destroyed now; busy holders are destroyed when
// released.
func (p *Pool) evictLocked() *Holder {
	h := p.holders.RemoveOldest()
	if h == nil {
		return nil
	}
	h.node = nil
	h.evicted = true
	p.stats.Evictions++
	cts.Logger().Debug("devicepool: evicted", "key", h.key, "state", h.state)
	if h.state == StateFree {
		return h
	}
	return nil
}

// Release ends the test on h and returns it to the pool.
//
// If h was acquired, the validation and out-of-memory scopes are popped and
// the device is flushed, bounded by the release timeout. A validation error
// yields *ReusableError and the device is kept. Out-of-memory, a scope
// left open or missing, a timeout or an unexpected loss remove the holder,
// destroy its device and return the error. A loss matching ExpectDeviceLost is
// swallowed. In every case h ends up free.
func (p *Pool) Release(ctx context.Context, h *Holder) error {
	if h == nil || h.pool != p {
		return ErrForeignHolder
	}

	p.mu.Lock()
	state, expected := h.state, h.expected
	p.mu.Unlock()
	if state == StateFree {
		return fmt.Errorf("%w: release in state %s", ErrHolderState, state)
	}

	remove := false
	defer func() {
		p.mu.Lock()
		h.state = StateFree
		h.expected = nil
		destroy := remove || h.evicted
		if remove && h.node != nil {
			p.holders.Remove(h.node)
			h.node = nil
			h.evicted = true
			p.stats.Removals++
		}
		p.mu.Unlock()
		if destroy {
			h.device.Destroy()
		}
	}()

	var endErr error
	if state == StateAcquired {
		endErr = p.endTestScope(ctx, h)
	}

	info, lost := h.device.LostInfo()
	switch {
	case lost && expected != nil && info.Reason == *expected:
		remove = true
		cts.Logger().Debug("devicepool: expected device loss", "key", h.key, "info", info.String())
		return nil
	case lost:
		remove = true
		lossErr := fmt.Errorf("devicepool: device unexpectedly lost (%s): %w", info, backend.ErrDeviceLost)
		if expected != nil {
			lossErr = fmt.Errorf("devicepool: device lost with %s, expected %s: %w", info.Reason, *expected, backend.ErrDeviceLost)
		}
		cts.Logger().Warn("devicepool: device lost", "key", h.key, "info", info.String())
		return multierr.Append(lossErr, ignoreLoss(endErr))
	case expected != nil:
		remove = true
		return multierr.Append(ErrExpectedLossMissing, endErr)
	case endErr == nil:
		return nil
	}

	var reusable *ReusableError
	if errors.As(endErr, &reusable) {
		return endErr
	}
	remove = true
	cts.Logger().Warn("devicepool: removing device", "key", h.key, "error", endErr)
	return endErr
}

// ignoreLoss drops err if it only reports the loss already being returned.
func ignoreLoss(err error) error {
	if errors.Is(err, backend.ErrDeviceLost) {
		return nil
	}
	return err
}

// endTestScope pops the scopes opened by Acquire and flushes the device.
func (p *Pool) endTestScope(ctx context.Context, h *Holder) error {
	ctx, cancel := context.WithTimeout(ctx, p.releaseTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- drain(ctx, h.device)
	}()

	select {
	case err := <-done:
		if err == nil || ctx.Err() == nil {
			return err
		}
	case <-ctx.Done():
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrReleaseTimeout, p.releaseTimeout, ctx.Err())
	}
	return ctx.Err()
}

// drain pops validation then out-of-memory scopes, checks that no scope is
// left and waits for the queue.
func drain(ctx context.Context, dev backend.Device) error {
	validation, err := dev.PopErrorScope(ctx)
	if err != nil {
		return fmt.Errorf("devicepool: pop validation scope: %w", err)
	}
	oom, err := dev.PopErrorScope(ctx)
	if err != nil {
		return fmt.Errorf("devicepool: pop out-of-memory scope: %w", err)
	}
	switch _, err := dev.PopErrorScope(ctx); {
	case err == nil:
		return ErrScopeLeaked
	case !errors.Is(err, backend.ErrScopeUnderflow):
		return fmt.Errorf("devicepool: check scope stack: %w", err)
	}
	if err := dev.Flush(ctx); err != nil {
		return fmt.Errorf("devicepool: flush: %w", err)
	}
	if oom != nil {
		return fmt.Errorf("%w: %w", backend.ErrOutOfMemory, oom)
	}
	if validation != nil {
		return &ReusableError{GPU: validation}
	}
	return nil
}

// Stats returns a snapshot of the pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Len = p.holders.Len()
	s.Capacity = p.capacity
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Holders returns the pooled holders from most to least recently used.
func (p *Pool) Holders() []*Holder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holders.Holders()
}

// Close destroys every free device and closes the backend. Busy holders are
// destroyed when released. Reserve fails with ErrClosed afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.state == closed {
		p.mu.Unlock()
		return
	}
	p.state = closed
	var free []*Holder
	for _, h := range p.holders.Holders() {
		h.node = nil
		h.evicted = true
		if h.state == StateFree {
			free = append(free, h)
		}
	}
	p.holders.Clear()
	p.mu.Unlock()

	for _, h := range free {
		h.device.Destroy()
	}
	p.backend.Close()
}
