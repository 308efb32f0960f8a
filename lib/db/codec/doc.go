// Package codec provides value encoding for engine snapshots and for the
// records the command line tool reads and prints. It defines a common
// interface and two implementations.
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding. It keeps
//     the Go types of record values intact (integers, []byte, time.Time) and is
//     the default for snapshots.
//
//   - jsonCodecImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems. Numbers come back as float64,
//     []byte and time.Time come back as strings.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package codec
