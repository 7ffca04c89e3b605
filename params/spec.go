package params

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidKey is returned for a parameter key that is empty or contains
// characters outside [a-zA-Z0-9_].
var ErrInvalidKey = errors.New("params: invalid key")

// ErrDuplicateKey is returned when a key appears twice in one Spec.
var ErrDuplicateKey = errors.New("params: duplicate key")

// Param is one named value.
type Param struct {
	Key   string
	Value Value
}

// KV returns a Param.
func KV(key string, v Value) Param { return Param{Key: key, Value: v} }

// Spec is an immutable set of named values with unique keys. Key order is
// kept for printing but is irrelevant to equality.
//
// The zero Spec is empty and ready to use.
type Spec struct {
	keys []string
	vals []Value
}

// NewSpec returns a Spec holding ps in order.
func NewSpec(ps ...Param) (Spec, error) {
	var b specBuilder
	for _, p := range ps {
		if !ValidKey(p.Key) {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidKey, p.Key)
		}
		if p.Value == nil {
			return Spec{}, fmt.Errorf("params: nil value for key %q", p.Key)
		}
		if !b.add(p.Key, p.Value) {
			return Spec{}, fmt.Errorf("%w: %q", ErrDuplicateKey, p.Key)
		}
	}
	return b.spec(), nil
}

// MustSpec is like NewSpec but panics on error.
// It is intended for tests and static tables.
func MustSpec(ps ...Param) Spec {
	s, err := NewSpec(ps...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of keys.
func (s Spec) Len() int { return len(s.keys) }

// Keys returns the keys in declaration order.
func (s Spec) Keys() []string { return append([]string(nil), s.keys...) }

// Params returns the pairs in declaration order.
func (s Spec) Params() []Param {
	ps := make([]Param, len(s.keys))
	for i, k := range s.keys {
		ps[i] = Param{Key: k, Value: s.vals[i]}
	}
	return ps
}

// Get returns the value stored under key.
func (s Spec) Get(key string) (Value, bool) {
	for i, k := range s.keys {
		if k == key {
			return s.vals[i], true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (s Spec) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Equal reports whether s and o hold the same keys with equal values.
func (s Spec) Equal(o Spec) bool {
	return s.Len() == o.Len() && s.Supersets(o)
}

// Supersets reports whether every key of sub is present in s with an
// equal value (see Same).
func (s Spec) Supersets(sub Spec) bool {
	for i, k := range sub.keys {
		v, ok := s.Get(k)
		if !ok || !Same(v, sub.vals[i]) {
			return false
		}
	}
	return true
}

// Same reports whether a and b are the same value: a == b, except that a
// NaN Float is the same as any other NaN Float. Lists and records are never
// inspected, so two separately built lists with equal elements differ.
func Same(a, b Value) bool {
	if a == b {
		return true
	}
	af, ok := a.(Float)
	if !ok {
		return false
	}
	bf, ok := b.(Float)
	return ok && math.IsNaN(float64(af)) && math.IsNaN(float64(bf))
}

// Public returns s without its private keys (those starting with '_').
func (s Spec) Public() Spec {
	var b specBuilder
	for i, k := range s.keys {
		if !IsPrivate(k) {
			b.add(k, s.vals[i])
		}
	}
	return b.spec()
}

// IsPrivate reports whether key names a private parameter. Private
// parameters distinguish cases but are not part of their query.
func IsPrivate(key string) bool { return strings.HasPrefix(key, "_") }

// Merge returns the union of s and o, keys of s first.
// It fails with ErrDuplicateKey if the two share a key.
func (s Spec) Merge(o Spec) (Spec, error) {
	b := specBuilder{
		keys: append(make([]string, 0, len(s.keys)+len(o.keys)), s.keys...),
		vals: append(make([]Value, 0, len(s.vals)+len(o.vals)), s.vals...),
	}
	for i, k := range o.keys {
		if !b.add(k, o.vals[i]) {
			return Spec{}, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
	}
	return b.spec(), nil
}

// SameKeys reports whether s and o have exactly the same key set.
func (s Spec) SameKeys(o Spec) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, k := range o.keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// String returns the query form k=v,k2=v2 in declaration order.
// ParseSpec reads it back.
func (s Spec) String() string {
	var sb strings.Builder
	for i, k := range s.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(s.vals[i].String())
	}
	return sb.String()
}

// specBuilder accumulates unique keys without validating their syntax.
type specBuilder struct {
	keys []string
	vals []Value
}

func (b *specBuilder) len() int { return len(b.keys) }

// add appends key=v and reports false if key is already present.
func (b *specBuilder) add(key string, v Value) bool {
	for _, k := range b.keys {
		if k == key {
			return false
		}
	}
	b.keys = append(b.keys, key)
	b.vals = append(b.vals, v)
	return true
}

func (b *specBuilder) spec() Spec {
	return Spec{keys: b.keys, vals: b.vals}
}
