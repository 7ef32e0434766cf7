package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{
		JSON:    true,
		Service: "send-request",
		Version: "v0.1.0",
		Output:  &buf,
	})

	log.Info("hello", "requestId", "0x01")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "send-request", entry["service"])
	assert.Equal(t, "v0.1.0", entry["version"])
	assert.Equal(t, "0x01", entry["requestId"])
}

func TestSetupLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger(&LoggingOpts{Output: &buf})
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	log = SetupLogger(&LoggingOpts{Debug: true, Output: &buf})
	log.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
