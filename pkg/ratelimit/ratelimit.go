// Package ratelimit implements the multi-window per-tenant rate limiter.
// Each tenant is checked against every rate window declared by its tier;
// a request is denied if any window's observed count exceeds that window's
// limit. Counters are fixed-window (reset at window boundaries) rather than
// a blended sliding-window estimate, an accepted substitute for the
// continuous estimator the upstream limiter crate uses.
package ratelimit

import (
	"sync"
	"time"

	"blockfrost-proxy/pkg/tier"
)

// window is one fixed-window counter for a single RateWindow.
type window struct {
	mu    sync.Mutex
	limit int
	size  time.Duration
	start time.Time
	count int
}

func newWindow(rw tier.RateWindow, now time.Time) *window {
	return &window{limit: rw.Limit, size: rw.Interval, start: now}
}

// observe records one hit and returns the count within the current window
// after recording it, rolling the window over if size has elapsed.
func (w *window) observe(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.start) >= w.size {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count
}

// credentialCounters is the lazily-materialized set of window counters for
// one tenant credential, one per RateWindow on its tier.
type credentialCounters struct {
	windows []*window
}

// Manager tracks rate-limit state for every tenant credential seen so far.
// Counters are created on first observation of a credential (lazy
// materialization), using the RateWindow set of the tier looked up at that
// time; tier changes take effect only for credentials not yet seen, matching
// the upstream limiter's insert-once-then-reuse behavior.
type Manager struct {
	mu      sync.RWMutex
	tiers   *tier.Table
	byCred  map[string]*credentialCounters
	nowFunc func() time.Time
}

// NewManager builds a rate-limit manager backed by tiers.
func NewManager(tiers *tier.Table) *Manager {
	return &Manager{
		tiers:   tiers,
		byCred:  make(map[string]*credentialCounters),
		nowFunc: time.Now,
	}
}

// Decision is the result of an Allow check.
type Decision int

const (
	// Admit means the request passed every rate window.
	Admit Decision = iota
	// Deny means at least one rate window's count exceeded its limit.
	Deny
	// UnknownTier means the credential's tier has no entry in the tier
	// table. The caller must fail closed: per spec this denies the
	// request rather than admitting it.
	UnknownTier
)

// Allow checks credential against tierName's rate windows, materializing a
// fresh counter set on first sight of credential.
func (m *Manager) Allow(credential, tierName string) Decision {
	t, ok := m.tiers.Lookup(tierName)
	if !ok {
		return UnknownTier
	}

	now := m.nowFunc()
	counters := m.countersFor(credential, t, now)

	denied := false
	for _, w := range counters.windows {
		if w.observe(now) > w.limit {
			denied = true
		}
	}
	if denied {
		return Deny
	}
	return Admit
}

func (m *Manager) countersFor(credential string, t tier.Tier, now time.Time) *credentialCounters {
	m.mu.RLock()
	c, ok := m.byCred[credential]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byCred[credential]; ok {
		return c
	}
	windows := make([]*window, 0, len(t.Windows))
	for _, rw := range t.Windows {
		windows = append(windows, newWindow(rw, now))
	}
	c = &credentialCounters{windows: windows}
	m.byCred[credential] = c
	return c
}

// Forget drops a credential's counters. Nothing in this module calls it when
// a tenant leaves the roster, so counters for removed tenants stay in place
// unless a caller invokes Forget.
func (m *Manager) Forget(credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byCred, credential)
}

// Len reports the number of credentials with materialized counters.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byCred)
}
