package params

import (
	"math"
	"strconv"
	"strings"
)

// Value is a parameter value. The set of implementations is closed: Bool,
// Int, Float, String, Null, *List and *Record.
//
// Values are compared with Same, which is == except that NaN matches NaN.
// For *List and *Record this is identity, not structural equality.
type Value interface {
	// String returns the literal form of the value.
	String() string

	isValue()
}

// Bool is a boolean parameter value.
type Bool bool

// Int is an integer parameter value.
type Int int64

// Float is a floating point parameter value.
type Float float64

// String is a string parameter value.
type String string

// Null is the absent value.
type Null struct{}

func (Bool) isValue()    {}
func (Int) isValue()     {}
func (Float) isValue()   {}
func (String) isValue()  {}
func (Null) isValue()    {}
func (*List) isValue()   {}
func (*Record) isValue() {}

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// String always keeps a float distinguishable from an Int: the result has a
// decimal point, an exponent, or is one of NaN, Infinity and -Infinity.
func (f Float) String() string {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (s String) String() string { return strconv.Quote(string(s)) }

func (Null) String() string { return "null" }

// List is an ordered list of values.
type List struct {
	elems []Value
}

// NewList returns a list holding a copy of elems.
func NewList(elems ...Value) *List {
	return &List{elems: append([]Value(nil), elems...)}
}

// Len returns the number of elements.
func (l *List) Len() int { return len(l.elems) }

// At returns the i-th element.
func (l *List) At(i int) Value { return l.elems[i] }

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range l.elems {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Record is an ordered set of named values.
type Record struct {
	spec Spec
}

// NewRecord returns a record with the given fields.
// It fails if a key is invalid or repeated.
func NewRecord(fields ...Param) (*Record, error) {
	s, err := NewSpec(fields...)
	if err != nil {
		return nil, err
	}
	return &Record{spec: s}, nil
}

// Fields returns the record as a Spec.
func (r *Record) Fields() Spec { return r.spec }

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.spec.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(r.spec.vals[i].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// DeepEqual reports whether a and b have the same literal structure.
// Unlike ==, lists and records are compared element by element, and NaN
// equals NaN. It is meant for tests and tooling, not for case matching.
func DeepEqual(a, b Value) bool {
	switch av := a.(type) {
	case *List:
		bv, ok := b.(*List)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i := range av.elems {
			if !DeepEqual(av.elems[i], bv.elems[i]) {
				return false
			}
		}
		return true
	case *Record:
		bv, ok := b.(*Record)
		if !ok || av.spec.Len() != bv.spec.Len() {
			return false
		}
		for i, k := range av.spec.keys {
			w, ok := bv.spec.Get(k)
			if !ok || !DeepEqual(av.spec.vals[i], w) {
				return false
			}
		}
		return true
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv && math.Signbit(float64(av)) == math.Signbit(float64(bv))
	default:
		return a == b
	}
}
