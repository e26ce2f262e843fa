package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/vburojevic/opctl/internal/domain"
)

var (
	dimStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// TextWriter renders lines verbatim and session events as short status lines.
type TextWriter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewTextWriter creates a writer on w. color enables lipgloss styling of
// status lines; log lines are never styled.
func NewTextWriter(w io.Writer, color bool) *TextWriter {
	return &TextWriter{w: w, color: color}
}

func (t *TextWriter) style(s lipgloss.Style, text string) string {
	if !t.color {
		return text
	}
	return s.Render(text)
}

func (t *TextWriter) println(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, text)
	return err
}

func (t *TextWriter) WriteSessionStart(s *domain.SessionStart) error {
	return t.println(t.style(infoStyle, fmt.Sprintf("Attached to %s (%d history lines)", s.Server, s.History)))
}

func (t *TextWriter) WriteLog(l LogLine) error {
	if l.Repeated > 0 {
		if err := t.println(t.style(dimStyle, fmt.Sprintf("... repeated %d more times", l.Repeated))); err != nil {
			return err
		}
	}
	return t.println(l.Line)
}

func (t *TextWriter) WriteAutocomplete(candidates []string) error {
	if len(candidates) == 0 {
		return t.println(t.style(dimStyle, "(no candidates)"))
	}
	return t.println(t.style(infoStyle, strings.Join(candidates, "  ")))
}

func (t *TextWriter) WriteServerError(message string) error {
	return t.println(t.style(errorStyle, "Server error: "+message))
}

func (t *TextWriter) WriteSessionEnd(e *domain.SessionEnd) error {
	msg := fmt.Sprintf("Detached (%s): %d lines, %d shown, %d commands",
		e.Reason, e.Summary.TotalLines, e.Summary.Emitted, e.Summary.Commands)
	if e.Error != "" {
		msg += ": " + e.Error
	}
	return t.println(t.style(dimStyle, msg))
}
