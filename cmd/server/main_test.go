package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/config"
)

func TestBuildLogger_TextToStdout(t *testing.T) {
	log, closer, err := buildLogger(config.Log{Format: "text", Level: "info"})
	require.NoError(t, err)
	defer closer()
	require.NotNil(t, log)
	assert.False(t, log.Enabled(t.Context(), slog.LevelDebug))
}

func TestBuildLogger_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	log, closer, err := buildLogger(config.Log{Format: "json", Level: "debug", File: path})
	require.NoError(t, err)

	log.Info("started", "component", "test")
	closer()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"started"`)
	assert.Contains(t, string(raw), `"component":"test"`)
}

func TestBuildLogger_BadFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "server.log")
	_, _, err := buildLogger(config.Log{Format: "text", Level: "info", File: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening log file")
}
