package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdmath.log")
	logger, err := New(config.Log{Level: "info", File: path, Format: "json"}, "stderr")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("worker spawned", zap.String("worker_id", "abc"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "worker spawned", entry["msg"])
	assert.Equal(t, "abc", entry["worker_id"])
	assert.Contains(t, entry, "time")
}

func TestNew_NoOutputIsNop(t *testing.T) {
	logger, err := New(config.Log{Level: "info"}, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.Log{Level: "loud", File: filepath.Join(t.TempDir(), "x.log")}, "")
	assert.Error(t, err)
}
