package logcapture

import "sync"

// History is a fixed-capacity FIFO of log lines. It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	lines []string
	start int
	count int
}

// NewHistory creates a history that keeps the last capacity lines.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest once full.
func (h *History) Append(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.lines)
	if h.count < capacity {
		h.lines[(h.start+h.count)%capacity] = line
		h.count++
		return
	}
	h.lines[h.start] = line
	h.start = (h.start + 1) % capacity
}

// Snapshot returns a copy of the buffered lines, oldest first.
func (h *History) Snapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, h.count)
	capacity := len(h.lines)
	for i := 0; i < h.count; i++ {
		out[i] = h.lines[(h.start+i)%capacity]
	}
	return out
}

// Len returns the number of buffered lines.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.lines)
}
