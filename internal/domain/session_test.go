package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionStart(t *testing.T) {
	now := time.Date(2025, 12, 11, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	s := NewSessionStart("ws://localhost:3000/terminal", 42, now)

	assert.Equal(t, "session_start", s.Type)
	assert.Equal(t, SchemaVersion, s.SchemaVersion)
	assert.Equal(t, 42, s.History)
	assert.Equal(t, "2025-12-11T09:00:00Z", s.Timestamp)
}

func TestNewSessionEnd(t *testing.T) {
	tests := []struct {
		name       string
		reason     string
		err        error
		wantReason string
		wantError  string
	}{
		{"normal close", "closed", nil, "closed", ""},
		{"server stopping", "server_stopping", nil, "server_stopping", ""},
		{"error with detail", "error", errors.New("boom"), "error", "boom"},
		{"error without detail", "error", nil, "closed", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSessionEnd(tt.reason, tt.err, SessionSummary{TotalLines: 3})
			assert.Equal(t, "session_end", e.Type)
			assert.Equal(t, tt.wantReason, e.Reason)
			assert.Equal(t, tt.wantError, e.Error)
			assert.Equal(t, 3, e.Summary.TotalLines)
		})
	}
}
