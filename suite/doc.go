// Package suite declares tests and expands queries into concrete cases.
//
// A Suite holds tests in registration order. Each Test names its file and
// test path, declares its parameter keys and produces its records from a
// params.Iterable:
//
//	s := suite.MustNew("webgpu")
//	s.MustAdd(suite.Test{
//		File:   []string{"api", "buffer"},
//		Name:   []string{"create"},
//		Params: params.Combine(params.Options("size", params.Int(4), params.Int(16)), params.Bools("mapped")),
//		Keys:   []string{"size", "mapped"},
//		Body:   testCreate,
//	})
//
//	cases, err := s.Collect(query.MustParse("webgpu:api,buffer:create:size=4"))
//
// Add checks the record keys against the declaration and rejects tests
// whose records produce the same case twice. Keys starting with an
// underscore are passed to the body but left out of case queries.
package suite
