// Package util provides small helpers shared by engine implementations and
// the query layer.
//
// The package contains:
//   - statistics: a SizeHistogram for estimating record sizes without full
//     scans and DistributionStats describing how records spread over stores
//   - functions: the FNV-1a based hash used for record fingerprints
package util
