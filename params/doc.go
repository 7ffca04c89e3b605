// Package params builds the parameter space of a test.
//
// A test declares its parameters as a lazy, restartable sequence of records
// (an Iterable). Each record is a Spec: an immutable set of named values that
// identifies one case of the test. Sequences are assembled from small
// combinators and are never expanded eagerly:
//
//	p := params.Combine(
//		params.Options("format", params.String("rgba8unorm"), params.String("bgra8unorm")),
//		params.Bools("mipmapped"),
//	)
//	specs, err := params.Collect(p) // 4 records, outer declaration order first
//
// # Values
//
// Value is a closed union of Bool, Int, Float, String, Null, *List and
// *Record. Values compare with Same: scalars by value (NaN matches NaN),
// lists and records by identity. Two separately built lists with the same
// elements are different values. Every value has a literal form (see
// ParseValue) that is used in query strings and parses back to an identical
// literal.
//
// # Declarations
//
// Mistakes in a declaration (a Variant whose payload reuses the tag key, a
// Combine whose inputs share a key, a record that does not match the declared
// Schema) surface as *DeclarationError from Iterator.Err.
package params
