// Package output renders an attached terminal session for non-interactive use.
package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/vburojevic/opctl/internal/domain"
)

// SchemaVersion is stamped on every NDJSON object.
const SchemaVersion = domain.SchemaVersion

// Writer is implemented by the NDJSON and text renderers.
type Writer interface {
	WriteSessionStart(s *domain.SessionStart) error
	WriteLog(l LogLine) error
	WriteAutocomplete(candidates []string) error
	WriteServerError(message string) error
	WriteSessionEnd(e *domain.SessionEnd) error
}

// LogLine is one line received on the channel.
type LogLine struct {
	Type          string `json:"type"` // "log"
	SchemaVersion int    `json:"schemaVersion"`
	Line          string `json:"line"`
	History       bool   `json:"history,omitempty"`  // Part of the INIT snapshot
	Repeated      int    `json:"repeated,omitempty"` // Duplicates suppressed since the previous emitted line
}

// NewLogLine creates a log event.
func NewLogLine(line string, history bool) LogLine {
	return LogLine{Type: "log", SchemaVersion: SchemaVersion, Line: line, History: history}
}

// Autocomplete carries the candidates of one AUTOCOMPLETE reply.
type Autocomplete struct {
	Type          string   `json:"type"` // "autocomplete"
	SchemaVersion int      `json:"schemaVersion"`
	Candidates    []string `json:"candidates"`
}

// ServerError is an ERROR message sent by the server. The channel stays open.
type ServerError struct {
	Type          string `json:"type"` // "server_error"
	SchemaVersion int    `json:"schemaVersion"`
	Message       string `json:"message"`
}

// ErrorOutput is a local failure of the client itself.
type ErrorOutput struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// NDJSONWriter writes one JSON object per line. Safe for concurrent use.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

func (w *NDJSONWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func (w *NDJSONWriter) WriteSessionStart(s *domain.SessionStart) error { return w.write(s) }

func (w *NDJSONWriter) WriteSessionEnd(e *domain.SessionEnd) error { return w.write(e) }

func (w *NDJSONWriter) WriteLog(l LogLine) error {
	if l.Type == "" {
		l.Type = "log"
		l.SchemaVersion = SchemaVersion
	}
	return w.write(l)
}

func (w *NDJSONWriter) WriteAutocomplete(candidates []string) error {
	if candidates == nil {
		candidates = []string{}
	}
	return w.write(Autocomplete{Type: "autocomplete", SchemaVersion: SchemaVersion, Candidates: candidates})
}

func (w *NDJSONWriter) WriteServerError(message string) error {
	return w.write(ServerError{Type: "server_error", SchemaVersion: SchemaVersion, Message: message})
}

// WriteError writes a client failure. Only the first hint is kept.
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	out := ErrorOutput{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message}
	if len(hint) > 0 {
		out.Hint = hint[0]
	}
	return w.write(out)
}

// WriteObject writes an arbitrary object, used by commands with their own output types.
func (w *NDJSONWriter) WriteObject(v any) error { return w.write(v) }
