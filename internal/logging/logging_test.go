package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retinaface.log")

	logger, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debugw("priors generated", "count", 4200)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"priors generated"`)
	assert.Contains(t, string(data), `"count":4200`)
}

func TestNew_Level(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retinaface.log")

	logger, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	logger.Infow("dropped")
	logger.Warnw("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}
