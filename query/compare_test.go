package query

import (
	"errors"
	"testing"

	"go.uber.org/multierr"
)

var compareTests = []struct {
	a, b string
	want Ordering
}{
	{"s:a,b:test1:", "s:a,b:test1:x=1", StrictSuperset},
	{"s:a:", "s:b:", Unordered},
	{"s:", "t:", Unordered},
	{"s:", "s:", Equal},
	{"s:", "s:a:", StrictSuperset},
	{"s:a:", "s:a:", Equal},
	{"s:a:", "s:a,b:", StrictSuperset},
	{"s:a:", "s:a:t", StrictSuperset},
	{"s:a:", "s:a,b:t:x=1", StrictSuperset},
	{"s:a,b:", "s:a:t", Unordered},
	{"s:a:t", "s:b:t", Unordered},
	{"s:a:t", "s:a,b:t", Unordered},
	{"s:a:t", "s:a:t", Equal},
	{"s:a:t", "s:a:t,u", StrictSuperset},
	{"s:a:t", "s:a:t:", StrictSuperset},
	{"s:a:t", "s:a:u", Unordered},
	{"s:a:t,u", "s:a:t:", Unordered},
	{"s:a:t:", "s:a,b:t:", Unordered},
	{"s:a:t:", "s:a:t,u:", Unordered},
	{"s:a:t:", "s:a:t:", Equal},
	{"s:a:t:x=1", "s:a:t:x=2", Unordered},
	{"s:a:t:x=1", "s:a:t:y=1", Unordered},
	{"s:a:t:x=1,y=2", "s:a:t:y=2,x=1", Equal},
	{"s:a:t:x=1", "s:a:t:x=1,y=2", StrictSuperset},
	{"s:a:t:x=1,y=2", "s:a:t:x=1,y=3", Unordered},
	{"s:a:t:x=NaN", "s:a:t:x=NaN", Equal},
	{"s:a:t:x=1", "s:a:t:x=1.0", Unordered},
}

func TestCompare(t *testing.T) {
	for _, tt := range compareTests {
		a, b := MustParse(tt.a), MustParse(tt.b)
		if got := Compare(a, b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got, want := Compare(b, a), tt.want.Inverse(); got != want {
			t.Errorf("Compare(%q, %q) = %v, want %v", tt.b, tt.a, got, want)
		}
	}
}

func TestCompareProperties(t *testing.T) {
	var qs []Query
	for _, tt := range compareTests {
		qs = append(qs, MustParse(tt.a), MustParse(tt.b))
	}
	for _, a := range qs {
		if got := Compare(a, a); got != Equal {
			t.Errorf("Compare(%s, %s) = %v, want Equal", a, a, got)
		}
		for _, b := range qs {
			ab, ba := Compare(a, b), Compare(b, a)
			if ab != ba.Inverse() {
				t.Errorf("Compare(%s, %s) = %v but Compare(%s, %s) = %v", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestCompareListParamsByIdentity(t *testing.T) {
	a := MustParse("s:a:t:x=[1,2]")
	b := MustParse("s:a:t:x=[1,2]")
	if got := Compare(a, a); got != Equal {
		t.Errorf("Compare(a, a) = %v, want Equal", got)
	}
	if got := Compare(a, b); got != Unordered {
		t.Errorf("separately parsed list params: Compare = %v, want Unordered", got)
	}
}

func TestContains(t *testing.T) {
	if !Contains(MustParse("s:a:"), MustParse("s:a:t:x=1")) {
		t.Error("s:a: does not contain s:a:t:x=1")
	}
	if !Contains(MustParse("s:a:t"), MustParse("s:a:t")) {
		t.Error("query does not contain itself")
	}
	if Contains(MustParse("s:a:t:x=1"), MustParse("s:a:t")) {
		t.Error("case contains its test")
	}
}

func TestCheckOverlaps(t *testing.T) {
	list := []Query{
		MustParse("s:a:"),
		MustParse("s:a:t"),
		MustParse("s:b:"),
		MustParse("s:b"),
		MustParse("s:c:t:"),
	}
	err := CheckOverlaps(list)
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("CheckOverlaps() = %v, want 2 violations", err)
	}
	var oe *OverlapError
	if !errors.As(errs[0], &oe) || oe.Order != StrictSuperset {
		t.Errorf("first violation = %v, want StrictSuperset overlap", errs[0])
	}
	if !errors.As(errs[1], &oe) || oe.Order != Equal {
		t.Errorf("second violation = %v, want Equal overlap", errs[1])
	}

	if err := CheckOverlaps([]Query{MustParse("s:a:"), MustParse("s:b:")}); err != nil {
		t.Errorf("CheckOverlaps(disjoint) = %v, want nil", err)
	}
}

func TestCheckCoverage(t *testing.T) {
	cases := []Query{
		MustParse("s:a:t:x=1"),
		MustParse("s:a:t:x=2"),
		MustParse("s:b:u:"),
	}
	list := []Query{
		MustParse("s:a:t:x=1"),
		MustParse("s:a:"),
		MustParse("s:c:"),
	}
	errs := multierr.Errors(CheckCoverage(list, cases))
	if len(errs) != 3 {
		t.Fatalf("CheckCoverage() = %v, want 3 violations", errs)
	}

	var ce *CoverageError
	if !errors.As(errs[0], &ce) || len(ce.Matches) != 2 {
		t.Errorf("violation 0 = %v, want case covered twice", errs[0])
	}
	if !errors.As(errs[1], &ce) || len(ce.Matches) != 0 || ce.Case.String() != "s:b:u:" {
		t.Errorf("violation 1 = %v, want s:b:u: uncovered", errs[1])
	}
	var ue *UnusedError
	if !errors.As(errs[2], &ue) || ue.Query.String() != "s:c:" {
		t.Errorf("violation 2 = %v, want s:c: unused", errs[2])
	}

	if err := CheckCoverage([]Query{MustParse("s:a:"), MustParse("s:b:")}, cases); err != nil {
		t.Errorf("CheckCoverage(partition) = %v, want nil", err)
	}
}
