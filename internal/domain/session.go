// Package domain holds the events an attached operator session emits.
package domain

import "time"

// SchemaVersion is bumped whenever an event changes shape.
const SchemaVersion = 1

// SessionStart is emitted once the terminal channel is authenticated
type SessionStart struct {
	Type          string `json:"type"`          // "session_start"
	SchemaVersion int    `json:"schemaVersion"` // 1
	Server        string `json:"server"`        // Terminal URL
	History       int    `json:"history"`       // Lines received with INIT
	Timestamp     string `json:"timestamp"`     // ISO8601 timestamp
}

// SessionEnd is emitted when the channel closes for any reason
type SessionEnd struct {
	Type          string         `json:"type"`            // "session_end"
	SchemaVersion int            `json:"schemaVersion"`   // 1
	Reason        string         `json:"reason"`          // "closed", "server_stopping", "unauthorized", "error"
	Error         string         `json:"error,omitempty"` // Detail when Reason is "error"
	Summary       SessionSummary `json:"summary"`
}

// SessionSummary contains statistics about a completed session
type SessionSummary struct {
	TotalLines      int `json:"total_lines"`
	Emitted         int `json:"emitted"`
	Filtered        int `json:"filtered"`
	Deduplicated    int `json:"deduplicated"`
	Commands        int `json:"commands"`
	Errors          int `json:"errors"`
	DurationSeconds int `json:"duration_seconds"`
}

// NewSessionStart creates a new SessionStart event
func NewSessionStart(server string, history int, now time.Time) *SessionStart {
	return &SessionStart{
		Type:          "session_start",
		SchemaVersion: SchemaVersion,
		Server:        server,
		History:       history,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}

// NewSessionEnd creates a new SessionEnd event. A nil err with reason
// "error" is reported as "closed".
func NewSessionEnd(reason string, err error, summary SessionSummary) *SessionEnd {
	e := &SessionEnd{
		Type:          "session_end",
		SchemaVersion: SchemaVersion,
		Reason:        reason,
		Summary:       summary,
	}
	if err != nil {
		e.Error = err.Error()
	} else if reason == "error" {
		e.Reason = "closed"
	}
	return e
}
