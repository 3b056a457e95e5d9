package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	l, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New("development", "chatty")
	require.NoError(t, err)
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestNop_With(t *testing.T) {
	l := NewNop().With("component", "import")
	l.Info("discarded", "k", 1)
}
