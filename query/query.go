// Package query implements test queries: hierarchical selectors that denote
// sets of concrete test cases, their string form, and the partial order
// between them.
//
// A query has one of four levels:
//
//	s:                 MultiFile   every case in suite s
//	s:a,b:             MultiTest   every case in files whose path starts with a,b
//	s:a,b:t,u          MultiCase   every case of tests in file a,b whose path starts with t,u
//	s:a,b:t,u:k=1      SingleCase  cases of test t,u in file a,b with k=1
//
// Queries are compared structurally with Compare, never as strings.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/cts/params"
)

// Level identifies the variant of a Query.
type Level uint8

const (
	// LevelMultiFile selects a whole suite.
	LevelMultiFile Level = iota + 1
	// LevelMultiTest selects files by path prefix.
	LevelMultiTest
	// LevelMultiCase selects tests of one file by path prefix.
	LevelMultiCase
	// LevelSingleCase selects cases of one test by parameters.
	LevelSingleCase
)

func (l Level) String() string {
	switch l {
	case LevelMultiFile:
		return "MultiFile"
	case LevelMultiTest:
		return "MultiTest"
	case LevelMultiCase:
		return "MultiCase"
	case LevelSingleCase:
		return "SingleCase"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// ErrInvalidSegment is returned for an empty or malformed suite name or path
// segment.
var ErrInvalidSegment = errors.New("query: invalid segment")

// Query is an immutable test selector. The zero Query is invalid; build one
// with MultiFile, MultiTest, MultiCase, SingleCase or Parse.
type Query struct {
	level  Level
	suite  string
	file   []string
	test   []string
	params params.Spec
}

// MultiFile returns the query selecting every case of suite.
func MultiFile(suite string) (Query, error) {
	if err := checkSegment("suite", suite); err != nil {
		return Query{}, err
	}
	return Query{level: LevelMultiFile, suite: suite}, nil
}

// MultiTest returns the query selecting every case in files whose path
// starts with file. file must not be empty.
func MultiTest(suite string, file []string) (Query, error) {
	q, err := MultiFile(suite)
	if err != nil {
		return Query{}, err
	}
	if q.file, err = checkPath("file", file); err != nil {
		return Query{}, err
	}
	q.level = LevelMultiTest
	return q, nil
}

// MultiCase returns the query selecting every case of the tests in file
// whose path starts with test. Neither path may be empty.
func MultiCase(suite string, file, test []string) (Query, error) {
	q, err := MultiTest(suite, file)
	if err != nil {
		return Query{}, err
	}
	if q.test, err = checkPath("test", test); err != nil {
		return Query{}, err
	}
	q.level = LevelMultiCase
	return q, nil
}

// SingleCase returns the query selecting the cases of test in file whose
// parameters agree with p on every key p names. Private keys are not
// allowed in p.
func SingleCase(suite string, file, test []string, p params.Spec) (Query, error) {
	q, err := MultiCase(suite, file, test)
	if err != nil {
		return Query{}, err
	}
	for _, k := range p.Keys() {
		if params.IsPrivate(k) {
			return Query{}, fmt.Errorf("query: private parameter %q", k)
		}
	}
	q.params = p
	q.level = LevelSingleCase
	return q, nil
}

// Level returns the variant of q.
func (q Query) Level() Level { return q.level }

// Suite returns the suite name.
func (q Query) Suite() string { return q.suite }

// File returns the file path segments. It is empty for LevelMultiFile.
func (q Query) File() []string { return append([]string(nil), q.file...) }

// Test returns the test path segments. It is empty below LevelMultiCase.
func (q Query) Test() []string { return append([]string(nil), q.test...) }

// Params returns the parameters of a LevelSingleCase query.
func (q Query) Params() params.Spec { return q.params }

// IsZero reports whether q is the zero Query.
func (q Query) IsZero() bool { return q.level == 0 }

// String returns the canonical string form; Parse(q.String()) reproduces q.
func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.suite)
	sb.WriteByte(':')
	if q.level == LevelMultiFile {
		return sb.String()
	}
	sb.WriteString(strings.Join(q.file, ","))
	sb.WriteByte(':')
	if q.level == LevelMultiTest {
		return sb.String()
	}
	sb.WriteString(strings.Join(q.test, ","))
	if q.level == LevelMultiCase {
		return sb.String()
	}
	sb.WriteByte(':')
	sb.WriteString(q.params.String())
	return sb.String()
}

// Identical reports whether a and b have the same level and fields, with
// parameter values compared by literal structure. It is the structural
// equality used by the round-trip law; case matching uses Compare.
func Identical(a, b Query) bool {
	if a.level != b.level || a.suite != b.suite ||
		!equalPath(a.file, b.file) || !equalPath(a.test, b.test) {
		return false
	}
	if !a.params.SameKeys(b.params) {
		return false
	}
	for _, p := range a.params.Params() {
		v, _ := b.params.Get(p.Key)
		if !params.DeepEqual(p.Value, v) {
			return false
		}
	}
	return true
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkPath(what string, path []string) ([]string, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty %s path", ErrInvalidSegment, what)
	}
	for _, s := range path {
		if err := checkSegment(what, s); err != nil {
			return nil, err
		}
	}
	return append([]string(nil), path...), nil
}

func checkSegment(what, s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty %s segment", ErrInvalidSegment, what)
	}
	for i := 0; i < len(s); i++ {
		if !isSegmentChar(s[i]) {
			return fmt.Errorf("%w: %s segment %q contains %q", ErrInvalidSegment, what, s, s[i])
		}
	}
	return nil
}

func isSegmentChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
