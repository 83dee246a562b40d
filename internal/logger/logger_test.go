package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func fileLogger(t *testing.T, level string) (Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l := New(Options{Level: level, Writers: []string{"file"}, File: path})
	return l, path
}

func TestLevelFilter(t *testing.T) {
	l, path := fileLogger(t, "warn")

	l.Debug("dropped debug line")
	l.Info("dropped info line")
	l.Warn("kept warn line", "code", 7)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "dropped debug line")
	assert.NotContains(t, out, "dropped info line")
	assert.Contains(t, out, "kept warn line")
	assert.Equal(t, int64(7), gjson.Get(out, "code").Int())
}

func TestErrAppendsError(t *testing.T) {
	l, path := fileLogger(t, "info")

	l.Err(os.ErrPermission, "operation denied", "target", "page-1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, "operation denied", gjson.Get(out, "message").String())
	assert.Equal(t, os.ErrPermission.Error(), gjson.Get(out, "error").String())
	assert.Equal(t, "page-1", gjson.Get(out, "target").String())
}

func TestOddKeyValuePairsIgnored(t *testing.T) {
	l, path := fileLogger(t, "info")

	// 末尾不成对的键与非字符串键都被跳过
	l.Info("partial fields", "ok", 1, "dangling")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, int64(1), gjson.Get(out, "ok").Int())
	assert.NotContains(t, out, "dangling")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	l, path := fileLogger(t, "no-such-level")

	l.Debug("hidden at info")
	l.Info("visible at info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden at info")
	assert.Contains(t, string(data), "visible at info")
}

func TestNopLoggerDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		l := NewNop()
		l.Debug("x")
		l.Info("x", "k", "v")
		l.Warn("x")
		l.Error("x")
		l.Err(os.ErrClosed, "x")
	})
}
