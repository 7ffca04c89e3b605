package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cts/backend"
	"github.com/gogpu/cts/params"
	"github.com/gogpu/cts/query"
)

// Registration errors.
var (
	ErrDuplicateTest = errors.New("suite: duplicate test")
	ErrInvalidTest   = errors.New("suite: invalid test")
)

// ErrSkip marks a test body result as skipped rather than failed.
var ErrSkip = errors.New("skipped")

// Skip returns an error that makes the runner skip the current case.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkip, reason)
}

// Env is what a test body sees while it runs.
type Env interface {
	// Device returns the device reserved for the case.
	Device() backend.Device
	// Params returns the case parameters, private keys included.
	Params() params.Spec
	// ExpectDeviceLost declares that the body will lose the device.
	ExpectDeviceLost(reason backend.LostReason) error
	// Logger returns a logger annotated with the case query.
	Logger() *slog.Logger
}

// Test declares one test and the parameter space of its cases.
type Test struct {
	// File is the file path of the test, e.g. {"api", "buffer"}.
	File []string
	// Name is the test path within the file, e.g. {"create", "size"}.
	Name []string
	// Description is free text for listings.
	Description string
	// Params produces one record per case. Nil means a single case with
	// no parameters.
	Params params.Iterable
	// Keys declares the parameter keys every record has.
	Keys []string
	// Descriptor returns the device requirements of a case. Nil, or a nil
	// result, requests the default device.
	Descriptor func(params.Spec) *gputypes.DeviceDescriptor
	// Body runs one case.
	Body func(ctx context.Context, env Env) error
}

// Path returns "file:name" for messages.
func (t *Test) Path() string {
	return strings.Join(t.File, ",") + ":" + strings.Join(t.Name, ",")
}

func (t *Test) iterable() params.Iterable {
	if t.Params == nil {
		return params.Unit()
	}
	return t.Params
}

// Case is one concrete test case.
type Case struct {
	Test   *Test
	Params params.Spec
	Query  query.Query
}

// Descriptor returns the device descriptor of the case, or nil.
func (c Case) Descriptor() *gputypes.DeviceDescriptor {
	if c.Test.Descriptor == nil {
		return nil
	}
	return c.Test.Descriptor(c.Params)
}

// String returns the case query.
func (c Case) String() string { return c.Query.String() }

// Suite is an ordered set of tests sharing a suite name.
type Suite struct {
	name  string
	tests []*Test
}

// New creates an empty suite.
func New(name string) (*Suite, error) {
	if _, err := query.MultiFile(name); err != nil {
		return nil, fmt.Errorf("suite: %w", err)
	}
	return &Suite{name: name}, nil
}

// MustNew is like New but panics on error.
func MustNew(name string) *Suite {
	s, err := New(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// Add registers t. It checks the file and test paths, rejects a second test
// with the same paths, and iterates the parameters once to check them
// against the declared keys and for duplicate cases.
func (s *Suite) Add(t Test) error {
	if len(t.File) == 0 || len(t.Name) == 0 {
		return fmt.Errorf("%w: %s: file and name are required", ErrInvalidTest, t.Path())
	}
	if t.Body == nil {
		return fmt.Errorf("%w: %s: no body", ErrInvalidTest, t.Path())
	}
	tq, err := query.MultiCase(s.name, t.File, t.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTest, err)
	}
	for _, other := range s.tests {
		if query.Compare(tq, s.testQuery(other)) == query.Equal {
			return fmt.Errorf("%w: %s", ErrDuplicateTest, t.Path())
		}
	}

	schema, err := params.Declare(t.Keys...)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTest, t.Path(), err)
	}
	if err := schema.Check(t.iterable()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTest, t.Path(), err)
	}

	test := t
	test.File = append([]string(nil), t.File...)
	test.Name = append([]string(nil), t.Name...)
	test.Keys = append([]string(nil), t.Keys...)

	cases, err := s.testCases(&test)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTest, t.Path(), err)
	}
	qs := make([]query.Query, len(cases))
	for i, c := range cases {
		qs[i] = c.Query
	}
	if err := query.CheckOverlaps(qs); err != nil {
		return fmt.Errorf("%w: %s: duplicate cases: %w", ErrInvalidTest, t.Path(), err)
	}

	s.tests = append(s.tests, &test)
	return nil
}

// MustAdd is like Add but panics on error.
func (s *Suite) MustAdd(t Test) {
	if err := s.Add(t); err != nil {
		panic(err)
	}
}

// Tests returns the registered tests in registration order.
func (s *Suite) Tests() []*Test {
	return append([]*Test(nil), s.tests...)
}

func (s *Suite) testQuery(t *Test) query.Query {
	q, err := query.MultiCase(s.name, t.File, t.Name)
	if err != nil {
		// Add validated the paths.
		panic(err)
	}
	return q
}

// testCases expands every case of t.
func (s *Suite) testCases(t *Test) ([]Case, error) {
	var out []Case
	it := t.iterable().Iterator()
	for it.Next() {
		c, err := s.newCase(t, it.Spec())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, it.Err()
}

func (s *Suite) newCase(t *Test, p params.Spec) (Case, error) {
	q, err := query.SingleCase(s.name, t.File, t.Name, p.Public())
	if err != nil {
		return Case{}, err
	}
	return Case{Test: t, Params: p, Query: q}, nil
}

// Cases returns an iterator over the cases selected by q, in registration
// order. Tests whose cases cannot intersect q are not expanded.
func (s *Suite) Cases(q query.Query) *CaseIterator {
	return &CaseIterator{suite: s, q: q}
}

// Collect returns every case selected by q.
func (s *Suite) Collect(q query.Query) ([]Case, error) {
	var out []Case
	it := s.Cases(q)
	for it.Next() {
		out = append(out, it.Case())
	}
	return out, it.Err()
}

// Queries returns the query of every case in the suite.
func (s *Suite) Queries() ([]query.Query, error) {
	all, err := query.MultiFile(s.name)
	if err != nil {
		return nil, err
	}
	cases, err := s.Collect(all)
	if err != nil {
		return nil, err
	}
	out := make([]query.Query, len(cases))
	for i, c := range cases {
		out[i] = c.Query
	}
	return out, nil
}

// CaseIterator walks the cases selected by a query.
type CaseIterator struct {
	suite *Suite
	q     query.Query

	next   int
	test   *Test
	all    bool
	params params.Iterator
	cur    Case
	err    error
}

// Next advances to the next case. It returns false when the cases are
// exhausted or an error occurred.
func (it *CaseIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.params == nil {
			if !it.nextTest() {
				return false
			}
		}
		if !it.params.Next() {
			if err := it.params.Err(); err != nil {
				it.err = fmt.Errorf("suite: %s: %w", it.test.Path(), err)
				return false
			}
			it.params = nil
			continue
		}
		c, err := it.suite.newCase(it.test, it.params.Spec())
		if err != nil {
			it.err = err
			return false
		}
		if it.all || query.Contains(it.q, c.Query) {
			it.cur = c
			return true
		}
	}
}

// nextTest moves to the next test whose cases may intersect the query.
func (it *CaseIterator) nextTest() bool {
	for it.next < len(it.suite.tests) {
		t := it.suite.tests[it.next]
		it.next++
		switch query.Compare(it.q, it.suite.testQuery(t)) {
		case query.Unordered:
			continue
		case query.Equal, query.StrictSuperset:
			it.all = true
		default:
			it.all = false
		}
		it.test = t
		it.params = t.iterable().Iterator()
		return true
	}
	return false
}

// Case returns the current case.
func (it *CaseIterator) Case() Case { return it.cur }

// Err returns the first error encountered.
func (it *CaseIterator) Err() error { return it.err }
