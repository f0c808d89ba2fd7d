// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/litrev/pkg/types"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(types.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("search complete", zap.Int("results", 15))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "search complete", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, float64(15), entry["results"])
}

func TestNewWithWriterLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(types.LogConfig{Level: "WARN"}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
	assert.True(t, strings.Contains(out, "WARN"))
}

func TestNewWithWriterRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.LogConfig
	}{
		{"level", types.LogConfig{Level: "loud"}},
		{"format", types.LogConfig{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithWriter(tt.cfg, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}
