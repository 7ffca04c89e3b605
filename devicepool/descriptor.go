// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package devicepool

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
)

// Key identifies a canonical device descriptor. Two descriptors with the
// same key are interchangeable for device reuse.
type Key string

// NilKey is the key of the nil descriptor.
const NilKey Key = ""

// String returns the key, or "<nil>" for NilKey.
func (k Key) String() string {
	if k == NilKey {
		return "<nil>"
	}
	return string(k)
}

// Canonicalize returns the reuse key of desc and a canonical copy of it.
//
// Features are deduplicated and sorted by name. Limits are kept only where
// they are non-zero and differ from gputypes.DefaultLimits; all other limit
// fields of the canonical copy are zero. Label and MemoryHints take part in
// neither the key nor the copy: a pooled device is shared by every request
// with its key, so it carries no label, and memory hints are left to the
// backend's default.
//
// A nil desc yields NilKey and nil. A non-nil descriptor with nothing beyond
// the defaults yields "features=;limits=", which is distinct from NilKey.
func Canonicalize(desc *gputypes.DeviceDescriptor) (Key, *gputypes.DeviceDescriptor) {
	if desc == nil {
		return NilKey, nil
	}

	features := slices.Clone(desc.RequiredFeatures)
	slices.SortFunc(features, func(a, b gputypes.Feature) int {
		return strings.Compare(featureName(a), featureName(b))
	})
	features = slices.CompactFunc(features, func(a, b gputypes.Feature) bool {
		return a == b
	})

	defaults := backend.EachLimit(gputypes.DefaultLimits())
	var kept gputypes.Limits
	var limits []backend.Limit
	for i, l := range backend.EachLimit(desc.RequiredLimits) {
		if l.Value == 0 || l.Value == defaults[i].Value {
			continue
		}
		limits = append(limits, l)
	}
	for _, l := range limits {
		backend.SetLimit(&kept, l.Name, l.Value)
	}
	slices.SortFunc(limits, func(a, b backend.Limit) int {
		return strings.Compare(a.Name, b.Name)
	})

	var sb strings.Builder
	sb.WriteString("features=")
	for i, f := range features {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(featureName(f))
	}
	sb.WriteString(";limits=")
	for i, l := range limits {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(l.Name)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(l.Value, 10))
	}

	canon := &gputypes.DeviceDescriptor{
		RequiredFeatures: features,
		RequiredLimits:   kept,
	}
	return Key(sb.String()), canon
}

// featureName names f, falling back to its bit value for features gputypes
// does not know.
func featureName(f gputypes.Feature) string {
	if s := f.String(); s != "Unknown" {
		return s
	}
	return "0x" + strconv.FormatUint(uint64(f), 16)
}
