// Package common provides the logging setup and the configuration type shared
// by the library packages and the ikv command line tool.
//
// All packages obtain their logger with dragonboats logger.GetLogger(name).
// InitLoggers installs a factory that formats every line as
//
//	2025/01/01 12:00:00 INFO  | query    | message
//
// and sets the level of every known package logger.
package common
