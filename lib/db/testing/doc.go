// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.Engine interface.
//
// The package contains:
//   - testing: A conformance suite covering schema upgrades, key handling,
//     unique/multi-entry/compound indexes, cursor directions and seeks,
//     rollback, transaction lifecycle, persistence and concurrent writers
//   - benchmark: Performance tests for writes, point reads, index walks and seeks
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.Engine {
//		return NewMyEngine()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunEngineTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunEngineBenchmarks(b, "MyEngine", factory)
package testing
