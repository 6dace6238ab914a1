package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gateway.log")

	logger, err := NewLogger("debug", "json", logFile)
	require.NoError(t, err)
	logger.Info("admitted", zap.String("project_id", "p1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"project_id\":\"p1\"")
}

func TestNewLogger_LevelsAndFormats(t *testing.T) {
	tests := []struct {
		level  string
		format string
	}{
		{"debug", "json"},
		{"info", "console"},
		{"warn", "json"},
		{"error", "console"},
		{"", ""},             // defaults
		{"invalid", "other"}, // falls back to info/json
		{"WARN", "CONSOLE"},  // case insensitive
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format, "")
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_FileError(t *testing.T) {
	logger, err := NewLogger("info", "json", "/non/existent/directory/gateway.log")
	assert.Error(t, err)
	assert.Nil(t, logger)
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))
}

func TestFor_AnnotatesRequestID(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "annotated.log")
	logger, err := NewLogger("info", "json", logFile)
	require.NoError(t, err)

	ctx := WithRequestID(context.Background(), "req-abc")
	For(ctx, logger).Info("upstream call")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "req-abc")
}
