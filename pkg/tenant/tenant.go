// Package tenant holds the tenant (consumer) roster: the dynamic-state
// container mapping an API credential to its owning namespace, port, tier,
// and network. The roster is refreshed whole-sale by a Source and read by
// the request pipeline through lock-free atomic snapshots.
package tenant

import "sync/atomic"

// Tenant identifies one API consumer.
type Tenant struct {
	Namespace string
	Port      string
	Tier      string
	Network   string
	Key       string // credential; unique across the roster
}

// String renders the tenant's logging identity, namespace.port.
func (t Tenant) String() string {
	return t.Namespace + "." + t.Port
}

// Roster is a lock-free, atomically swapped snapshot of credential -> Tenant.
// Writers (the Source) replace the whole map; readers take a reference with
// no lock held across any suspension point, per the concurrency model.
type Roster struct {
	snapshot atomic.Pointer[map[string]Tenant]
}

// NewRoster returns an empty, ready-to-use roster.
func NewRoster() *Roster {
	r := &Roster{}
	empty := make(map[string]Tenant)
	r.snapshot.Store(&empty)
	return r
}

// Lookup returns the tenant for credential, if present in the current
// snapshot.
func (r *Roster) Lookup(credential string) (Tenant, bool) {
	m := *r.snapshot.Load()
	t, ok := m[credential]
	return t, ok
}

// Replace atomically swaps in a brand-new roster snapshot. Readers observe
// either the old or the new map in its entirety, never a partial update.
func (r *Roster) Replace(tenants map[string]Tenant) {
	snapshot := make(map[string]Tenant, len(tenants))
	for k, v := range tenants {
		snapshot[k] = v
	}
	r.snapshot.Store(&snapshot)
}

// Len reports the number of tenants in the current snapshot.
func (r *Roster) Len() int {
	return len(*r.snapshot.Load())
}
