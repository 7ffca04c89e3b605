package params

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Schema is the declared key set of a test's parameters. Every record the
// test produces must carry exactly these keys.
type Schema struct {
	keys []string // sorted
}

// Declare returns the Schema for keys. Order does not matter.
func Declare(keys ...string) (Schema, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for i, k := range sorted {
		if !ValidKey(k) {
			return Schema{}, &DeclarationError{Op: "schema", Err: fmt.Errorf("%w: %q", ErrInvalidKey, k)}
		}
		if i > 0 && sorted[i-1] == k {
			return Schema{}, &DeclarationError{Op: "schema", Err: fmt.Errorf("%w: %q", ErrDuplicateKey, k)}
		}
	}
	return Schema{keys: sorted}, nil
}

// Keys returns the declared keys in sorted order.
func (sc Schema) Keys() []string { return append([]string(nil), sc.keys...) }

// Matches reports whether s has exactly the declared keys.
func (sc Schema) Matches(s Spec) bool {
	if s.Len() != len(sc.keys) {
		return false
	}
	for _, k := range sc.keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Check iterates it once and reports every record whose key set differs
// from the declaration. All mismatches are returned together in a single
// *DeclarationError.
func (sc Schema) Check(it Iterable) error {
	var errs error
	i := it.Iterator()
	n := 0
	for i.Next() {
		s := i.Spec()
		if !sc.Matches(s) {
			errs = multierr.Append(errs, fmt.Errorf("record %d {%s}: keys %s, declared %s",
				n, s, keyList(s.keys), keyList(sc.keys)))
		}
		n++
	}
	if err := i.Err(); err != nil {
		return err
	}
	if errs != nil {
		return &DeclarationError{Op: "schema", Err: errs}
	}
	return nil
}

// String returns the declared keys as [a b c].
func (sc Schema) String() string { return keyList(sc.keys) }

func keyList(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return "[" + strings.Join(sorted, " ") + "]"
}
