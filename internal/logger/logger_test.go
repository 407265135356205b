package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"panic":   zapcore.PanicLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that loggers travel through contexts with their fields.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "sound")
	ctx = WithKV(ctx, "cycle_id", 7)

	InfoKV(ctx, "Alarm sound started", "duration", "30s")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "sound", entries[0].LoggerName)
	require.Equal(t, int64(7), entries[0].ContextMap()["cycle_id"])
	require.Equal(t, "30s", entries[0].ContextMap()["duration"])

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithLevel ensures the level option filters entries below the threshold.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core, WithLevel(zapcore.WarnLevel)).Sugar()

	l.Info("dropped")
	l.Warn("kept")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.All()[0].Message)
}

// TestSetupWritesFile verifies that Setup creates the log directory and writes JSON entries.
//
//nolint:paralleltest // Setup replaces the global logger.
func TestSetupWritesFile(t *testing.T) {
	previous := Logger()
	defer SetLogger(previous)

	path := filepath.Join(t.TempDir(), "logs", "app.log")

	closeFn, err := Setup(zapcore.InfoLevel, path)
	require.NoError(t, err)

	Logger().Debugw("Alarm scheduler started", "alarm_time", "22:30")
	closeFn()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "Alarm scheduler started")
	require.Contains(t, string(contents), "22:30")
	require.Contains(t, string(contents), ServiceName)
}
