// Package filter selects which terminal lines an attached operator sees.
package filter

import (
	"fmt"
	"regexp"
)

// Pipeline applies an include pattern and exclude patterns, in that order.
// A nil Pipeline matches everything.
type Pipeline struct {
	pattern  *regexp.Regexp
	excludes []*regexp.Regexp
}

// NewPipeline returns nil when no filters are given.
func NewPipeline(pattern *regexp.Regexp, excludes []*regexp.Regexp) *Pipeline {
	if pattern == nil && len(excludes) == 0 {
		return nil
	}
	return &Pipeline{pattern: pattern, excludes: excludes}
}

// Compile builds a pipeline from raw expressions. Empty strings are ignored.
func Compile(pattern string, excludes []string) (*Pipeline, error) {
	var pat *regexp.Regexp
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		pat = re
	}

	var ex []*regexp.Regexp
	for _, e := range excludes {
		if e == "" {
			continue
		}
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude %q: %w", e, err)
		}
		ex = append(ex, re)
	}
	return NewPipeline(pat, ex), nil
}

// Match reports whether line passes every filter.
func (p *Pipeline) Match(line string) bool {
	if p == nil {
		return true
	}
	if p.pattern != nil && !p.pattern.MatchString(line) {
		return false
	}
	for _, ex := range p.excludes {
		if ex.MatchString(line) {
			return false
		}
	}
	return true
}
