package common

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetLogOutput(&buf)
	now := output.now
	output.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() {
		SetLogOutput(prev)
		output.now = now
	})
	return &buf
}

func TestLoggerFormatAndLevel(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("query")

	l.Infof("hidden")
	l.Warningf("visible %d", 1)
	l.SetLevel(logger.DEBUG)
	l.Debugf("now %s", "too")

	assert.Equal(t,
		"2025/01/02 03:04:05 WARN  | query    | visible 1\n"+
			"2025/01/02 03:04:05 DEBUG | query    | now too\n",
		buf.String())
}

func TestLoggerMultiLine(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("cli")
	l.SetLevel(logger.INFO)

	l.Infof("configuration:\nSTORAGE\n  Codec: gob\n")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "2025/01/02 03:04:05 INFO  | cli      | "), line)
	}
	assert.True(t, strings.HasSuffix(lines[2], "|   Codec: gob"), lines[2])
}

func TestLoggerPanicf(t *testing.T) {
	buf := captureLogs(t)
	l := CreateLogger("maple")
	l.SetLevel(logger.ERROR)

	assert.PanicsWithValue(t, "broken 7", func() { l.Panicf("broken %d", 7) })
	assert.Contains(t, buf.String(), "CRIT  | maple    | broken 7")
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG, "INFO": logger.INFO, "warn": logger.WARNING, "warning": logger.WARNING, "error": logger.ERROR,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}
