// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import "time"

// Default pool settings.
const (
	DefaultCapacity       = 5
	DefaultReleaseTimeout = 5 * time.Second
)

// Option configures a Pool during creation.
//
// Example:
//
//	pool := devicepool.New(b,
//		devicepool.WithCapacity(8),
//		devicepool.WithReleaseTimeout(10*time.Second),
//	)
type Option func(*options)

type options struct {
	capacity       int
	releaseTimeout time.Duration
}

func defaultOptions() options {
	return options{
		capacity:       DefaultCapacity,
		releaseTimeout: DefaultReleaseTimeout,
	}
}

// WithCapacity sets the maximum number of holders kept in the pool.
// Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.capacity = n
		}
	}
}

// WithReleaseTimeout bounds how long Release waits for error scopes and the
// device queue to drain. Non-positive values are ignored.
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}
