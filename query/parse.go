package query

import (
	"fmt"
	"strings"

	"github.com/gogpu/cts/params"
)

// SyntaxError reports a query string that cannot be parsed.
type SyntaxError struct {
	Input   string
	Segment string // the offending section or segment
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("query: %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("query: %q: %s in %q", e.Input, e.Reason, e.Segment)
}

// Unwrap returns the underlying error, if any.
func (e *SyntaxError) Unwrap() error { return e.Err }

// Parse parses a query string of the form
//
//	suite[:file,...[:test,...[:key=value,...]]]
//
// A trailing colon after the suite or file section selects everything under
// it. After the test section the colon is significant: "s:f:t" is a
// MultiCase over tests starting with t, while "s:f:t:" is a SingleCase that
// selects every case of exactly t.
//
// Colons and commas inside parameter literals do not split sections.
func Parse(s string) (Query, error) {
	fail := func(segment, reason string, err error) (Query, error) {
		return Query{}, &SyntaxError{Input: s, Segment: segment, Reason: reason, Err: err}
	}

	suite, rest, more := strings.Cut(s, ":")
	if suite == "" {
		return fail("", "empty suite name", nil)
	}
	if err := checkSegment("suite", suite); err != nil {
		return fail(suite, "invalid suite name", err)
	}
	if !more || rest == "" {
		return Query{level: LevelMultiFile, suite: suite}, nil
	}

	fileSec, rest, more := strings.Cut(rest, ":")
	file, err := splitPath("file", fileSec)
	if err != nil {
		return fail(fileSec, "invalid file path", err)
	}
	if !more || rest == "" {
		return Query{level: LevelMultiTest, suite: suite, file: file}, nil
	}

	testSec, paramSec, single := strings.Cut(rest, ":")
	test, err := splitPath("test", testSec)
	if err != nil {
		return fail(testSec, "invalid test path", err)
	}
	if !single {
		return Query{level: LevelMultiCase, suite: suite, file: file, test: test}, nil
	}

	p, err := params.ParseSpec(paramSec)
	if err != nil {
		return fail(paramSec, "malformed parameters", err)
	}
	q, err := SingleCase(suite, file, test, p)
	if err != nil {
		return fail(paramSec, "invalid parameters", err)
	}
	return q, nil
}

// MustParse is like Parse but panics on error.
// It is intended for tests and static tables.
func MustParse(s string) Query {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

func splitPath(what, sec string) ([]string, error) {
	if sec == "" {
		return nil, fmt.Errorf("%w: empty %s path", ErrInvalidSegment, what)
	}
	return checkPath(what, strings.Split(sec, ","))
}
