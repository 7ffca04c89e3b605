package params

import (
	"fmt"

	"go.uber.org/multierr"
)

// Iterable is a finite, restartable sequence of Specs. Each call to Iterator
// starts an independent pass from the beginning.
type Iterable interface {
	Iterator() Iterator
}

// Iterator is a single pass over an Iterable, in the style of bufio.Scanner:
//
//	it := p.Iterator()
//	for it.Next() {
//		use(it.Spec())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator interface {
	// Next advances to the next record. It returns false when the sequence
	// is exhausted or an error occurred.
	Next() bool
	// Spec returns the current record.
	Spec() Spec
	// Err returns the first error met by the pass, if any.
	Err() error
}

// IterableFunc adapts a function to the Iterable interface.
type IterableFunc func() Iterator

// Iterator calls f.
func (f IterableFunc) Iterator() Iterator { return f() }

// DeclarationError reports a malformed parameter declaration.
type DeclarationError struct {
	Op  string // combinator or check that rejected the declaration
	Err error
}

// Error implements the error interface.
func (e *DeclarationError) Error() string {
	return fmt.Sprintf("params: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeclarationError) Unwrap() error { return e.Err }

// Violations returns each individual problem carried by e.
func (e *DeclarationError) Violations() []error { return multierr.Errors(e.Err) }

// funcIter turns a pull function into an Iterator.
type funcIter struct {
	pull func() (Spec, bool, error)
	cur  Spec
	err  error
	done bool
}

func newIter(pull func() (Spec, bool, error)) *funcIter {
	return &funcIter{pull: pull}
}

func (it *funcIter) Next() bool {
	if it.done {
		return false
	}
	s, ok, err := it.pull()
	if err != nil || !ok {
		it.err = err
		it.done = true
		it.cur = Spec{}
		return false
	}
	it.cur = s
	return true
}

func (it *funcIter) Spec() Spec { return it.cur }
func (it *funcIter) Err() error { return it.err }

func failed(err error) Iterator {
	return newIter(func() (Spec, bool, error) { return Spec{}, false, err })
}

// Unit yields exactly one empty record. It is the parameter space of a test
// without parameters.
func Unit() Iterable {
	return IterableFunc(func() Iterator {
		done := false
		return newIter(func() (Spec, bool, error) {
			if done {
				return Spec{}, false, nil
			}
			done = true
			return Spec{}, true, nil
		})
	})
}

// Options yields one record {key: v} per value, in order.
// No values means no records.
func Options(key string, values ...Value) Iterable {
	values = append([]Value(nil), values...)
	return IterableFunc(func() Iterator {
		if !ValidKey(key) {
			return failed(&DeclarationError{Op: "options", Err: fmt.Errorf("%w: %q", ErrInvalidKey, key)})
		}
		i := 0
		return newIter(func() (Spec, bool, error) {
			if i >= len(values) {
				return Spec{}, false, nil
			}
			v := values[i]
			i++
			if v == nil {
				return Spec{}, false, &DeclarationError{Op: "options", Err: fmt.Errorf("nil value for key %q", key)}
			}
			return Spec{keys: []string{key}, vals: []Value{v}}, true, nil
		})
	})
}

// Bools yields {key: false} then {key: true}.
func Bools(key string) Iterable {
	return Options(key, Bool(false), Bool(true))
}

// Case is one alternative of a Variant: a tag and the parameters that only
// make sense under that tag. A nil Params is the same as Unit().
type Case struct {
	Tag    Value
	Params Iterable
}

// Variant yields, for each case in order and each record r of its Params,
// the record {key: tag} merged with r.
//
// A case whose Params already use key is a declaration error; it is
// reported by the first call to Next, before any record is produced.
func Variant(key string, cases ...Case) Iterable {
	cases = append([]Case(nil), cases...)
	for i := range cases {
		if cases[i].Params == nil {
			cases[i].Params = Unit()
		}
	}
	return IterableFunc(func() Iterator {
		if !ValidKey(key) {
			return failed(&DeclarationError{Op: "variant", Err: fmt.Errorf("%w: %q", ErrInvalidKey, key)})
		}
		if err := checkVariant(key, cases); err != nil {
			return failed(err)
		}
		ci := 0
		var sub Iterator
		return newIter(func() (Spec, bool, error) {
			for ci < len(cases) {
				c := cases[ci]
				if sub == nil {
					sub = c.Params.Iterator()
				}
				if sub.Next() {
					s, err := Spec{keys: []string{key}, vals: []Value{c.Tag}}.Merge(sub.Spec())
					if err != nil {
						return Spec{}, false, &DeclarationError{Op: "variant", Err: err}
					}
					return s, true, nil
				}
				if err := sub.Err(); err != nil {
					return Spec{}, false, err
				}
				sub = nil
				ci++
			}
			return Spec{}, false, nil
		})
	})
}

func checkVariant(key string, cases []Case) error {
	var errs error
	for _, c := range cases {
		if c.Tag == nil {
			errs = multierr.Append(errs, fmt.Errorf("nil tag for key %q", key))
			continue
		}
		it := c.Params.Iterator()
		for it.Next() {
			if it.Spec().Has(key) {
				errs = multierr.Append(errs, fmt.Errorf("case %s: record {%s} already has key %q", c.Tag, it.Spec(), key))
				break
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
	}
	if errs != nil {
		return &DeclarationError{Op: "variant", Err: errs}
	}
	return nil
}

// Combine yields the Cartesian merge of its inputs. The first input is the
// outermost loop; inner inputs are restarted for every outer record. Inputs
// that share a key are a declaration error. Combine() yields one empty
// record.
func Combine(its ...Iterable) Iterable {
	switch len(its) {
	case 0:
		return Unit()
	case 1:
		return its[0]
	}
	acc := its[0]
	for _, next := range its[1:] {
		acc = combine2(acc, next)
	}
	return acc
}

func combine2(outer, inner Iterable) Iterable {
	return IterableFunc(func() Iterator {
		o := outer.Iterator()
		var in Iterator
		return newIter(func() (Spec, bool, error) {
			for {
				if in == nil {
					if !o.Next() {
						return Spec{}, false, o.Err()
					}
					in = inner.Iterator()
				}
				if in.Next() {
					s, err := o.Spec().Merge(in.Spec())
					if err != nil {
						return Spec{}, false, &DeclarationError{Op: "combine", Err: err}
					}
					return s, true, nil
				}
				if err := in.Err(); err != nil {
					return Spec{}, false, err
				}
				in = nil
			}
		})
	})
}

// Expand yields, for every record r of it and every value v returned by
// fn(r), the record r extended with {key: v}. It declares a parameter whose
// domain depends on earlier ones.
func Expand(it Iterable, key string, fn func(Spec) []Value) Iterable {
	return IterableFunc(func() Iterator {
		if !ValidKey(key) {
			return failed(&DeclarationError{Op: "expand", Err: fmt.Errorf("%w: %q", ErrInvalidKey, key)})
		}
		src := it.Iterator()
		var pending []Value
		var base Spec
		return newIter(func() (Spec, bool, error) {
			for len(pending) == 0 {
				if !src.Next() {
					return Spec{}, false, src.Err()
				}
				base = src.Spec()
				pending = fn(base)
			}
			v := pending[0]
			pending = pending[1:]
			s, err := base.Merge(Spec{keys: []string{key}, vals: []Value{v}})
			if err != nil {
				return Spec{}, false, &DeclarationError{Op: "expand", Err: err}
			}
			return s, true, nil
		})
	})
}

// Filter yields the records of it for which keep returns true.
func Filter(it Iterable, keep func(Spec) bool) Iterable {
	return IterableFunc(func() Iterator {
		src := it.Iterator()
		return newIter(func() (Spec, bool, error) {
			for src.Next() {
				if s := src.Spec(); keep(s) {
					return s, true, nil
				}
			}
			return Spec{}, false, src.Err()
		})
	})
}

// Unless yields the records of it for which drop returns false.
func Unless(it Iterable, drop func(Spec) bool) Iterable {
	return Filter(it, func(s Spec) bool { return !drop(s) })
}

// Exclude drops every record that supersets one of specs.
func Exclude(it Iterable, specs ...Spec) Iterable {
	specs = append([]Spec(nil), specs...)
	return Unless(it, func(s Spec) bool {
		for _, e := range specs {
			if s.Supersets(e) {
				return true
			}
		}
		return false
	})
}

// Collect runs one full pass and returns every record.
func Collect(it Iterable) ([]Spec, error) {
	var out []Spec
	i := it.Iterator()
	for i.Next() {
		out = append(out, i.Spec())
	}
	if err := i.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count runs one full pass and returns the number of records.
func Count(it Iterable) (int, error) {
	n := 0
	i := it.Iterator()
	for i.Next() {
		n++
	}
	return n, i.Err()
}
