// Package cts is a conformance test harness core for GPU implementations.
//
// # Overview
//
// cts selects and runs test cases against pooled devices. It is organized
// around two subsystems:
//
//   - Selection: tests declare their parameters with package params, cases
//     are addressed with hierarchical queries (package query), and the
//     partial order between queries decides which cases a run covers.
//   - Devices: package devicepool keeps a small LRU pool of devices keyed
//     by their canonical descriptor, hands them to test bodies under error
//     scopes, and decides after each case whether a device can be reused.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/cts/backend"
//		_ "github.com/gogpu/cts/backend/null"
//		"github.com/gogpu/cts/devicepool"
//		"github.com/gogpu/cts/runner"
//	)
//
//	b, err := backend.Open("null")
//	if err != nil {
//		log.Fatal(err)
//	}
//	pool := devicepool.New(b, devicepool.WithCapacity(5))
//	defer pool.Close()
//
//	cases, err := mySuite.Collect(query.MustParse("webgpu:api,operation:"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	sum, err := runner.New(pool).Run(ctx, cases)
//
// # Query Syntax
//
//	suite:                  every case of the suite
//	suite:a,b:              every case in files under a/b
//	suite:a,b:test          every case of tests starting with test in file a/b
//	suite:a,b:test:         every case of exactly test
//	suite:a,b:test:x=1      the cases of test with x=1
//
// # Logging
//
// cts is silent by default. Call SetLogger to route its diagnostics to a
// slog handler.
//
// # Architecture
//
//   - params: values, parameter records and lazy combinators
//   - query: query model, parser and ordering engine
//   - devicepool: device reuse, error scopes and failure classification
//   - backend: device layer interfaces; backend/null and backend/wgpu
//   - suite, runner: case provider and execution loop, serial or with a
//     worker pool
//   - config: HCL run plans; cmd/cts: command line tool
package cts
