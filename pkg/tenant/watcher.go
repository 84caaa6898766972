package tenant

import (
	"context"

	"blockfrost-proxy/pkg/logging"
)

// Event carries a full roster replacement pushed by the external source.
type Event struct {
	Tenants map[string]Tenant
}

// Source is the minimal surface the tenant watcher needs from whatever
// external system mints tenant credentials. Its production implementation is
// the control-plane resource reconciler (out of scope per spec section 1);
// here it is a narrow interface so the core never depends on a Kubernetes
// client to run its own tests.
type Source interface {
	// Events returns a channel of full-roster-replacement events. The
	// channel is closed when the source can no longer observe changes.
	Events() <-chan Event
}

// Watcher drains a Source's event channel and atomically replaces the
// roster on every event. It is long-lived and event-driven, matching the
// teacher's config.Watcher reload loop but without a debounce timer, since
// the source already coalesces watch events upstream.
type Watcher struct {
	source Source
	roster *Roster
	logger *logging.Logger
}

// NewWatcher builds a watcher over source, updating roster on every event.
func NewWatcher(source Source, roster *Roster, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Global()
	}
	return &Watcher{source: source, roster: roster, logger: logger}
}

// Start blocks, applying roster updates until the source's channel closes or
// ctx is cancelled. Per spec section 7 ("watcher setup failure"), a closed
// channel ends the watcher task but does not affect request processing
// beyond freezing the roster at its last observed snapshot.
func (w *Watcher) Start(ctx context.Context) error {
	events := w.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				w.logger.Warn("tenant source closed; roster frozen at last snapshot")
				return nil
			}
			w.roster.Replace(ev.Tenants)
			w.logger.Info("tenant roster reloaded", "tenants", len(ev.Tenants))
		}
	}
}

// ChannelSource is a Source backed by a plain Go channel, used both by the
// production wiring (fed by the cluster resource watcher, out of scope) and
// by tests that want to push specific snapshots.
type ChannelSource struct {
	ch chan Event
}

// NewChannelSource creates a ChannelSource with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Event, buffer)}
}

// Events implements Source.
func (c *ChannelSource) Events() <-chan Event {
	return c.ch
}

// Push sends a new full-roster snapshot to the watcher.
func (c *ChannelSource) Push(tenants map[string]Tenant) {
	c.ch <- Event{Tenants: tenants}
}

// Close closes the underlying channel, ending the watcher's Start loop.
func (c *ChannelSource) Close() {
	close(c.ch)
}
