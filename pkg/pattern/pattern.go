// Package pattern compiles URI regex patterns and matches them against
// request paths. It backs the forbidden-endpoint list, the Dolos alternate
// upstream selector, and the cache rule list.
package pattern

import "regexp"

// Pattern is a single compiled URI regex.
type Pattern struct {
	Raw      string
	Compiled *regexp.Regexp
}

// New compiles a single pattern.
func New(raw string) (*Pattern, error) {
	compiled, err := regexp.Compile(raw)
	if err != nil {
		return nil, err
	}
	return &Pattern{Raw: raw, Compiled: compiled}, nil
}

// Matches reports whether uri matches the pattern.
func (p *Pattern) Matches(uri string) bool {
	if p == nil || p.Compiled == nil {
		return false
	}
	return p.Compiled.MatchString(uri)
}

// FindSubmatch returns the pattern's submatches against uri, or nil if it
// doesn't match.
func (p *Pattern) FindSubmatch(uri string) []string {
	if p == nil || p.Compiled == nil {
		return nil
	}
	return p.Compiled.FindStringSubmatch(uri)
}

// List is an ordered set of compiled patterns matched in sequence; first
// match wins.
type List struct {
	patterns []*Pattern
}

// NewList compiles every raw pattern string into a List.
func NewList(raw []string) (*List, error) {
	l := &List{patterns: make([]*Pattern, 0, len(raw))}
	for _, r := range raw {
		p, err := New(r)
		if err != nil {
			return nil, err
		}
		l.patterns = append(l.patterns, p)
	}
	return l, nil
}

// Match returns true iff any pattern in the list matches uri.
func (l *List) Match(uri string) bool {
	if l == nil {
		return false
	}
	for _, p := range l.patterns {
		if p.Matches(uri) {
			return true
		}
	}
	return false
}

// MatchFirst returns the first pattern that matches uri, or nil.
func (l *List) MatchFirst(uri string) *Pattern {
	if l == nil {
		return nil
	}
	for _, p := range l.patterns {
		if p.Matches(uri) {
			return p
		}
	}
	return nil
}

// Len reports the number of compiled patterns.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.patterns)
}
