// Package rules holds the cache rule list: URI-pattern-matched TTL policies
// for successful responses. The shared TTL applied to failed upstream
// requests is not part of this package; it comes from
// config.CacheFailedRequestsSecs. The list is hot-reloaded from a TOML
// document via an fsnotify-backed watcher.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
)

// Rule is one cache policy: requests whose path matches Pattern are cached
// for TTL when the upstream responds successfully.
type Rule struct {
	Pattern *regexp.Regexp
	Raw     string
	TTL     time.Duration
}

type document struct {
	Rules []ruleDoc `toml:"rules"`
}

type ruleDoc struct {
	Pattern string `toml:"pattern"`
	TTLSecs int64  `toml:"ttl_seconds"`
}

// Parse decodes a cache-rules TOML document into an ordered Rule slice. Order
// matters: the first matching rule wins, mirroring pattern.List.
func Parse(data []byte) ([]Rule, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing cache rules document: %w", err)
	}

	out := make([]Rule, 0, len(doc.Rules))
	for _, rd := range doc.Rules {
		if rd.TTLSecs <= 0 {
			return nil, fmt.Errorf("cache rule %q: ttl_seconds must be positive, got %d", rd.Pattern, rd.TTLSecs)
		}
		re, err := regexp.Compile(rd.Pattern)
		if err != nil {
			return nil, fmt.Errorf("cache rule %q: %w", rd.Pattern, err)
		}
		out = append(out, Rule{Pattern: re, Raw: rd.Pattern, TTL: time.Duration(rd.TTLSecs) * time.Second})
	}
	return out, nil
}

// LoadFile reads and parses the cache rules document at path.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache rules file %s: %w", path, err)
	}
	return Parse(data)
}

// List is a lock-free, atomically-swapped snapshot of the ordered rule set.
type List struct {
	snapshot atomic.Pointer[[]Rule]
}

// NewList returns an empty, ready-to-use rule list.
func NewList() *List {
	l := &List{}
	empty := make([]Rule, 0)
	l.snapshot.Store(&empty)
	return l
}

// Replace atomically swaps in a new rule set.
func (l *List) Replace(rules []Rule) {
	snapshot := make([]Rule, len(rules))
	copy(snapshot, rules)
	l.snapshot.Store(&snapshot)
}

// Match returns the first rule whose pattern matches uri, and whether one was
// found.
func (l *List) Match(uri string) (Rule, bool) {
	rules := *l.snapshot.Load()
	for _, r := range rules {
		if r.Pattern.MatchString(uri) {
			return r, true
		}
	}
	return Rule{}, false
}

// Len reports the number of rules in the current snapshot.
func (l *List) Len() int {
	return len(*l.snapshot.Load())
}
