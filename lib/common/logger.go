package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// levelNames are the labels written in the level column.
var levelNames = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// sink is shared by all package loggers. Writes are serialized so that the
// lines of concurrent transactions never interleave.
type sink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// output defaults to stderr, stdout carries the command results.
var output = &sink{out: os.Stderr, now: time.Now}

// SetLogOutput redirects all loggers to w and returns the previous writer.
func SetLogOutput(w io.Writer) io.Writer {
	output.mu.Lock()
	defer output.mu.Unlock()
	prev := output.out
	output.out = w
	return prev
}

// write prints msg with a header per line. Continuation lines of multi-line
// messages (e.g. the configuration dump) keep the header so that the output
// stays greppable by package.
func (s *sink) write(level logger.LogLevel, name, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	header := fmt.Sprintf("%s %-5s | %-8s | ", s.now().Format("2006/01/02 15:04:05"), levelNames[level], name)
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		_, _ = io.WriteString(s.out, header+line+"\n")
	}
}

// --------------------------------------------------------------------------
// Package Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

type iKVLogger struct {
	name  string
	level atomic.Int32
}

func (l *iKVLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *iKVLogger) logf(level logger.LogLevel, format string, args []interface{}) {
	if logger.LogLevel(l.level.Load()) >= level {
		output.write(level, l.name, fmt.Sprintf(format, args...))
	}
}

func (l *iKVLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args)
}

func (l *iKVLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args)
}

func (l *iKVLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args)
}

func (l *iKVLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args)
}

// Panicf always writes the message before it panics.
func (l *iKVLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	output.write(logger.CRITICAL, l.name, msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements dragonboats logger.Factory. New loggers start at
// WARNING until InitLoggers sets the configured level.
func CreateLogger(pkgName string) logger.ILogger {
	l := &iKVLogger{name: pkgName}
	l.SetLevel(logger.WARNING)
	return l
}

// loggerNames lists the packages that log through dragonboats logger registry.
var loggerNames = []string{"query", "maple", "schema", "store", "cli"}

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, errors.Newf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// InitLoggers installs the logger factory and sets the level of all
// package loggers.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(CreateLogger)
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
