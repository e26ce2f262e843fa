package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/opctl/internal/domain"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(buf)
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestWriteLog(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteLog(NewLogLine("old line", true)))
	require.NoError(t, w.WriteLog(LogLine{Line: "Server started", Repeated: 2}))

	m := decodeLine(t, buf)
	assert.Equal(t, "log", m["type"])
	assert.EqualValues(t, SchemaVersion, m["schemaVersion"])
	assert.Equal(t, "old line", m["line"])
	assert.Equal(t, true, m["history"])

	m = decodeLine(t, buf)
	assert.Equal(t, "log", m["type"])
	assert.Equal(t, "Server started", m["line"])
	assert.EqualValues(t, 2, m["repeated"])
	assert.NotContains(t, m, "history")
}

func TestWriteAutocompleteNeverNull(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteAutocomplete(nil))
	assert.JSONEq(t, `{"type":"autocomplete","schemaVersion":1,"candidates":[]}`, buf.String())
}

func TestWriteErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteServerError("Too many requests."))
	require.NoError(t, w.WriteError("UNAUTHORIZED", "access key rejected", "check --access-key", "ignored"))

	m := decodeLine(t, buf)
	assert.Equal(t, "server_error", m["type"])
	assert.Equal(t, "Too many requests.", m["message"])

	m = decodeLine(t, buf)
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, "UNAUTHORIZED", m["code"])
	assert.Equal(t, "check --access-key", m["hint"])
}

func TestWriteSessionEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewNDJSONWriter(buf)

	require.NoError(t, w.WriteSessionStart(domain.NewSessionStart("ws://x/terminal", 2, time.Unix(0, 0))))
	require.NoError(t, w.WriteSessionEnd(domain.NewSessionEnd("error", errors.New("reset"), domain.SessionSummary{TotalLines: 5, Emitted: 4})))

	m := decodeLine(t, buf)
	assert.Equal(t, "session_start", m["type"])
	assert.Equal(t, "ws://x/terminal", m["server"])
	assert.EqualValues(t, 2, m["history"])

	m = decodeLine(t, buf)
	assert.Equal(t, "session_end", m["type"])
	assert.Equal(t, "error", m["reason"])
	assert.Equal(t, "reset", m["error"])
	summary := m["summary"].(map[string]interface{})
	assert.EqualValues(t, 5, summary["total_lines"])
	assert.EqualValues(t, 4, summary["emitted"])
}

func TestTextWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewTextWriter(buf, false)

	require.NoError(t, w.WriteSessionStart(domain.NewSessionStart("ws://x/terminal", 2, time.Unix(0, 0))))
	require.NoError(t, w.WriteLog(NewLogLine("alex joined the game", false)))
	require.NoError(t, w.WriteLog(LogLine{Line: "tick", Repeated: 3}))
	require.NoError(t, w.WriteAutocomplete([]string{"say", "stop"}))
	require.NoError(t, w.WriteAutocomplete(nil))
	require.NoError(t, w.WriteServerError("Unexpected type of data."))
	require.NoError(t, w.WriteSessionEnd(domain.NewSessionEnd("server_stopping", nil, domain.SessionSummary{TotalLines: 9, Emitted: 7, Commands: 1})))

	assert.Equal(t, "Attached to ws://x/terminal (2 history lines)\n"+
		"alex joined the game\n"+
		"... repeated 3 more times\n"+
		"tick\n"+
		"say  stop\n"+
		"(no candidates)\n"+
		"Server error: Unexpected type of data.\n"+
		"Detached (server_stopping): 9 lines, 7 shown, 1 commands\n", buf.String())
}
