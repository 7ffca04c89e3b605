// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package devicepool reuses GPU devices across test cases.
//
// Creating a device is expensive, and most tests ask for the same
// capabilities. A Pool keeps a bounded, recency-ordered set of holders,
// each owning one device, and hands out a free holder whose canonical
// descriptor matches the request:
//
//	pool := devicepool.New(b, devicepool.WithCapacity(5))
//	defer pool.Close()
//
//	h, err := pool.Reserve(ctx, desc)
//	if err != nil {
//		var skip *devicepool.SkipError
//		if errors.As(err, &skip) {
//			// the backend cannot satisfy desc
//		}
//		return err
//	}
//	dev, _ := h.Acquire()
//	runTest(dev)
//	err = pool.Release(ctx, h)
//
// # Holder states
//
// A holder moves free → reserved (Reserve) → acquired (Acquire) → free
// (Release). Only holders in the free state are handed out, so a device is
// never shared by two running tests. Release always returns the holder to
// free, whatever the outcome.
//
// # Release outcomes
//
// Acquire opens an out-of-memory and a validation error scope. Release pops
// both and flushes the device within the release timeout:
//
//   - no error: the device is kept for reuse;
//   - validation error: *ReusableError, the device is kept;
//   - out-of-memory, scope failure, timeout or unexpected loss: the holder
//     is removed and its device destroyed;
//   - a loss announced with Holder.ExpectDeviceLost: removed, no error.
//
// # Failure modes
//
// Descriptors the backend rejects with backend.ErrUnsupported are cached and
// answered with *SkipError without asking the backend again. If the very
// first device the pool creates fails for any other reason, the pool is
// failed and every Reserve returns ErrPoolFailed.
package devicepool
