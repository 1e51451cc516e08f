package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Config{Level: "WARN", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestPrintfHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Init(zap.New(core))
	t.Cleanup(func() { Init(nil) })

	Info("session %s opened", "demo")
	Error("ping failed %d times", 3)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "session demo opened", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "ping failed 3 times", entries[1].Message)
}

func TestHelpersPanicWithoutInit(t *testing.T) {
	Init(nil)
	assert.Panics(t, func() { Info("x") })
}
