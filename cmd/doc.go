// Package cmd implements the command-line interface for iKV. Every command
// works on the snapshot files of one data directory, a database is loaded
// when a command touches it and saved again when the command finishes.
//
// The package is organized into several subpackages:
//
//   - database: Commands to build, list, inspect and delete databases
//   - records: Commands to read and modify records (where, and, or, ignorecase, ...) and the perf tool
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ikv -help for a list of all commands.
package cmd
