package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production")
	log.Debug("hidden")
	log.Info("login completed", "request_id", "req-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login completed", entry["msg"])
	assert.Equal(t, "medfayda", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])

	buf.Reset()
	NewWithWriter(&buf, "development").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
