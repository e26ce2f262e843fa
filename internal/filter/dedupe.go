package filter

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DedupeFilter collapses repeated identical lines
type DedupeFilter struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration // 0 = consecutive only
	seen     map[string]*dedupeEntry
	lastLine string
}

type dedupeEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// NewDedupeFilter creates a new deduplication filter.
// window=0 collapses only consecutive identical lines, window>0 collapses
// identical lines seen within the window.
func NewDedupeFilter(window time.Duration, clk clock.Clock) *DedupeFilter {
	if clk == nil {
		clk = clock.New()
	}
	return &DedupeFilter{
		clock:  clk,
		window: window,
		seen:   make(map[string]*dedupeEntry),
	}
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool
	Count      int // 1 = first occurrence
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Check determines if a line should be emitted or suppressed
func (f *DedupeFilter) Check(line string) DedupeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	if f.window > 0 {
		f.cleanOldEntries(now)
	}

	if existing, ok := f.seen[line]; ok && (f.window > 0 || f.lastLine == line) {
		existing.count++
		existing.lastSeen = now
		f.lastLine = line
		return DedupeResult{
			ShouldEmit: false,
			Count:      existing.count,
			FirstSeen:  existing.firstSeen,
			LastSeen:   existing.lastSeen,
		}
	}

	if f.window == 0 {
		// Consecutive mode only ever tracks the current run.
		clear(f.seen)
	}
	f.seen[line] = &dedupeEntry{count: 1, firstSeen: now, lastSeen: now}
	f.lastLine = line

	return DedupeResult{
		ShouldEmit: true,
		Count:      1,
		FirstSeen:  now,
		LastSeen:   now,
	}
}

// Suppressed returns how many times each line was suppressed since it was
// first emitted. Lines that were never repeated are omitted.
func (f *DedupeFilter) Suppressed() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make(map[string]int)
	for line, entry := range f.seen {
		if entry.count > 1 {
			result[line] = entry.count - 1
		}
	}
	return result
}

// Reset clears the deduplication state
func (f *DedupeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]*dedupeEntry)
	f.lastLine = ""
}

// cleanOldEntries removes entries outside the time window
func (f *DedupeFilter) cleanOldEntries(now time.Time) {
	cutoff := now.Add(-f.window)
	for key, entry := range f.seen {
		if entry.lastSeen.Before(cutoff) {
			delete(f.seen, key)
		}
	}
}
