// Package tier holds the tier table: named rate policies, each composed of
// one or more conjunctive rate windows, parsed from a hot-reloaded TOML
// document and consumed by the rate limiter.
package tier

import (
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

// RateWindow is one (limit, interval) pair. Multiple windows on a Tier
// compose conjunctively: a request is admitted only if every window permits
// it.
type RateWindow struct {
	Limit    int
	Interval time.Duration
}

// Tier is a named rate policy.
type Tier struct {
	Name    string
	Windows []RateWindow
}

// durationSuffix matches the original deployment's interval syntax: a
// positive integer followed by exactly one of s|m|h|d.
var durationSuffix = regexp.MustCompile(`^([0-9]+)([smhd])$`)

// ParseDuration parses the tier-interval duration syntax. Any other suffix,
// or a non-numeric prefix, is a parse error.
func ParseDuration(s string) (time.Duration, error) {
	m := durationSuffix.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid tier interval format %q", s)
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tier interval format %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid tier interval format %q: interval must be positive", s)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid tier interval format %q", s)
	}
}

// document is the TOML shape of the tiers file.
type document struct {
	Tiers []tierDoc `toml:"tiers"`
}

type tierDoc struct {
	Name  string     `toml:"name"`
	Rates []rateDoc  `toml:"rates"`
}

type rateDoc struct {
	Limit    int    `toml:"limit"`
	Interval string `toml:"interval"`
}

// Table is a lock-free, atomically-swapped snapshot of tier name -> Tier.
type Table struct {
	snapshot atomic.Pointer[map[string]Tier]
}

// NewTable returns an empty, ready-to-use tier table.
func NewTable() *Table {
	t := &Table{}
	empty := make(map[string]Tier)
	t.snapshot.Store(&empty)
	return t
}

// Lookup returns the tier by name from the current snapshot.
func (t *Table) Lookup(name string) (Tier, bool) {
	m := *t.snapshot.Load()
	tier, ok := m[name]
	return tier, ok
}

// Replace atomically swaps in a new tier table.
func (t *Table) Replace(tiers map[string]Tier) {
	snapshot := make(map[string]Tier, len(tiers))
	for k, v := range tiers {
		snapshot[k] = v
	}
	t.snapshot.Store(&snapshot)
}

// Len reports the number of tiers in the current snapshot.
func (t *Table) Len() int {
	return len(*t.snapshot.Load())
}
