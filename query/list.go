package query

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// OverlapError reports two entries of a query list that select some of the
// same cases.
type OverlapError struct {
	A, B  Query
	Order Ordering // Compare(A, B)
}

func (e *OverlapError) Error() string {
	switch e.Order {
	case Equal:
		return fmt.Sprintf("query: %s duplicates %s", e.B, e.A)
	case StrictSuperset:
		return fmt.Sprintf("query: %s is contained in %s", e.B, e.A)
	default:
		return fmt.Sprintf("query: %s is contained in %s", e.A, e.B)
	}
}

// CoverageError reports a case that is selected by no query of a list, or by
// more than one.
type CoverageError struct {
	Case    Query
	Matches []Query
}

func (e *CoverageError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("query: case %s is not covered", e.Case)
	}
	names := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		names[i] = m.String()
	}
	return fmt.Sprintf("query: case %s is covered %d times: %s", e.Case, len(e.Matches), strings.Join(names, " "))
}

// UnusedError reports a query of a list that selects none of the cases.
type UnusedError struct {
	Query Query
}

func (e *UnusedError) Error() string {
	return fmt.Sprintf("query: %s matches no case", e.Query)
}

// CheckOverlaps reports every pair of entries in list that are not
// Unordered. Two textually different queries may still overlap, so the
// check uses Compare only. All violations are returned together; use
// multierr.Errors to split them.
func CheckOverlaps(list []Query) error {
	var errs error
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if o := Compare(list[i], list[j]); o != Unordered {
				errs = multierr.Append(errs, &OverlapError{A: list[i], B: list[j], Order: o})
			}
		}
	}
	return errs
}

// CheckCoverage verifies that list partitions cases: every case is selected
// by exactly one query and every query selects at least one case. cases are
// expected to be fully specified LevelSingleCase queries. All violations are
// returned together.
func CheckCoverage(list, cases []Query) error {
	var errs error
	used := make([]bool, len(list))
	for _, c := range cases {
		var matches []Query
		for i, q := range list {
			if Contains(q, c) {
				matches = append(matches, q)
				used[i] = true
			}
		}
		if len(matches) != 1 {
			errs = multierr.Append(errs, &CoverageError{Case: c, Matches: matches})
		}
	}
	for i, q := range list {
		if !used[i] {
			errs = multierr.Append(errs, &UnusedError{Query: q})
		}
	}
	return errs
}
