package query

import (
	"fmt"

	"github.com/gogpu/cts/params"
)

// Ordering is the relation between the case sets of two queries.
type Ordering uint8

const (
	// Unordered: neither set contains the other.
	Unordered Ordering = iota
	// StrictSubset: a selects fewer cases than b, all of them in b.
	StrictSubset
	// Equal: a and b select the same cases.
	Equal
	// StrictSuperset: a selects every case of b and more.
	StrictSuperset
)

func (o Ordering) String() string {
	switch o {
	case Unordered:
		return "Unordered"
	case StrictSubset:
		return "StrictSubset"
	case Equal:
		return "Equal"
	case StrictSuperset:
		return "StrictSuperset"
	default:
		return fmt.Sprintf("Ordering(%d)", uint8(o))
	}
}

// Inverse returns the ordering of b relative to a given that of a relative
// to b.
func (o Ordering) Inverse() Ordering {
	switch o {
	case StrictSubset:
		return StrictSuperset
	case StrictSuperset:
		return StrictSubset
	default:
		return o
	}
}

// Compare returns the relation between the case sets selected by a and b.
// It is total, Compare(q, q) is Equal, and Compare(a, b) is the inverse of
// Compare(b, a).
func Compare(a, b Query) Ordering {
	if a.suite != b.suite {
		return Unordered
	}

	aOpen, bOpen := a.level <= LevelMultiTest, b.level <= LevelMultiTest
	if o := comparePaths(a.file, b.file); o != Equal || aOpen || bOpen {
		return compareOneLevel(o, aOpen, bOpen)
	}

	aOpen, bOpen = a.level == LevelMultiCase, b.level == LevelMultiCase
	if o := comparePaths(a.test, b.test); o != Equal || aOpen || bOpen {
		return compareOneLevel(o, aOpen, bOpen)
	}

	return compareParams(a.params, b.params)
}

// Contains reports whether every case selected by b is also selected by a.
func Contains(a, b Query) bool {
	o := Compare(a, b)
	return o == Equal || o == StrictSuperset
}

// compareOneLevel combines the path ordering at a level with whether each
// side still selects everything below that path.
func compareOneLevel(o Ordering, aOpen, bOpen bool) Ordering {
	switch {
	case o == Unordered:
		return Unordered
	case aOpen && bOpen:
		return o
	case !aOpen && !bOpen:
		return Unordered
	case aOpen:
		if o == Equal || o == StrictSuperset {
			return StrictSuperset
		}
		return Unordered
	default:
		if o == Equal || o == StrictSubset {
			return StrictSubset
		}
		return Unordered
	}
}

// comparePaths orders two segment paths by prefix: the shorter prefix
// selects more.
func comparePaths(a, b []string) Ordering {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return Unordered
		}
	}
	switch {
	case len(a) == len(b):
		return Equal
	case len(a) < len(b):
		return StrictSuperset
	default:
		return StrictSubset
	}
}

// compareParams orders two parameter filters. A filter naming fewer keys
// selects more; filters that disagree on a shared key select disjoint sets.
func compareParams(a, b params.Spec) Ordering {
	aHasAll, bHasAll := a.Supersets(b), b.Supersets(a)
	switch {
	case aHasAll && bHasAll:
		return Equal
	case bHasAll:
		return StrictSuperset
	case aHasAll:
		return StrictSubset
	default:
		// A shared key disagrees, or each names a key the other leaves open.
		return Unordered
	}
}
