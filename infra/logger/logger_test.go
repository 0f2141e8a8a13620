package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, o Options) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	o.Output = &buf
	require.NoError(t, Configure(o))
	t.Cleanup(func() { _ = Configure(Options{}) })
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestComponentAndFields(t *testing.T) {
	buf := capture(t, Options{Level: "info", Format: "json"})
	l := New("dispatch").With(map[string]any{"fault_id": "f1"})
	l.Infof("assigned %s", "V1")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "dispatch", got[0]["component"])
	assert.Equal(t, "f1", got[0]["fault_id"])
	assert.Equal(t, "assigned V1", got[0]["message"])
	assert.Equal(t, "info", got[0]["level"])
}

func TestLevelFilters(t *testing.T) {
	buf := capture(t, Options{Level: "warn", Format: "json"})
	l := New("tracking")
	l.Debugf("hidden")
	l.Debugw("hidden", map[string]any{"k": 1})
	l.Infof("hidden")
	l.Warnf("deviation")
	l.Errorf("reroute failed")

	got := lines(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "error", got[1]["level"])
}

func TestLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	buf := capture(t, Options{Format: "json"})
	New("routing").Debugw("cache miss", map[string]any{"key": "a|b"})

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "a|b", got[0]["key"])
}

func TestConsoleFormat(t *testing.T) {
	buf := capture(t, Options{Format: "console"})
	New("api").Infof("listening")
	assert.Contains(t, buf.String(), "listening")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Configure(Options{Level: "loud"}))
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.Equal(t, NopLogger{}, l.With(map[string]any{"a": 1}))
}
