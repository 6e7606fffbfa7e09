package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger := Setup("cyberswapd", "test", WithWriter(&buf), WithLevel("warn"))
	logger.Info("dropped")
	logger.Warn("kept", slog.String("command", "buy_listing"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "WARN", entry["severity"])
	require.Equal(t, "cyberswapd", entry["service"])
	require.Equal(t, "test", entry["env"])
	require.Equal(t, "buy_listing", entry["command"])
	require.Contains(t, entry, "timestamp")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer secret").Value.String())
	require.Equal(t, "", MaskField("authorization", "").Value.String())
	require.Equal(t, "buy_listing", MaskField("Command", "buy_listing").Value.String())
	require.Contains(t, RedactionAllowlist(), "sender")
	require.NotContains(t, RedactionAllowlist(), "authorization")
}
