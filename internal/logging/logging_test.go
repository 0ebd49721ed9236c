package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedWriter(buf *bytes.Buffer) *LineWriter {
	w := NewLineWriter(buf)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestLineWriter_PrefixesCompleteLines(t *testing.T) {
	var buf bytes.Buffer
	w := fixedWriter(&buf)

	n, err := w.Write([]byte("first\nsecond\r\nthi"))
	require.NoError(t, err)
	assert.Equal(t, len("first\nsecond\r\nthi"), n)

	assert.Equal(t,
		"line=1 time=2024-05-01T12:00:00Z first\n"+
			"line=2 time=2024-05-01T12:00:00Z second\n",
		buf.String())

	_, err = w.Write([]byte("rd\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(buf.String(), "line=3 time=2024-05-01T12:00:00Z third\n"))
}

func TestLineWriter_CloseFlushesPartial(t *testing.T) {
	var buf bytes.Buffer
	w := fixedWriter(&buf)

	_, err := w.Write([]byte("dangling"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	require.NoError(t, w.Close())
	assert.Equal(t, "line=1 time=2024-05-01T12:00:00Z dangling\n", buf.String())
	require.NoError(t, w.Close())
}

func TestFanoutHandler_RespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("root", "/tmp/x").WithGroup("g")

	logger.Debug("quiet", "k", 1)
	logger.Warn("loud", "k", 2)

	assert.Contains(t, debugBuf.String(), "quiet")
	assert.Contains(t, debugBuf.String(), "loud")
	assert.NotContains(t, warnBuf.String(), "quiet")
	assert.Contains(t, warnBuf.String(), "loud")
	assert.Contains(t, warnBuf.String(), "root=/tmp/x")
	assert.Contains(t, warnBuf.String(), "g.k=2")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewFanoutHandler().Enabled(context.Background(), slog.LevelError))
}

func TestNew_WritesFileAndConsole(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "watchd.log")

	logger, closer, err := New(Options{Level: slog.LevelInfo, Console: &console, File: logFile})
	require.NoError(t, err)

	logger.Info("notify thread running", "root", "/data")
	logger.Debug("hidden")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "notify thread running")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line=1 ")
	assert.Contains(t, string(data), `msg="notify thread running" root=/data`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}
