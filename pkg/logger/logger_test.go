package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevel(t *testing.T) {
	l, err := New(Config{Level: "warn", App: "notifications"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(Config{Level: "nonsense"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	l, err := New(Config{Level: "info", App: "notifications", Env: "test", Version: "v1", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	l.Info("notification stored", zap.Uint("notification_id", 7))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"notification stored"`)
	assert.Contains(t, string(data), `"service":"notifications"`)
	assert.Contains(t, string(data), `"notification_id":7`)
}
