package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRosterLookupMiss(t *testing.T) {
	r := NewRoster()
	_, ok := r.Lookup("dmtr_abc")
	require.False(t, ok)
}

func TestRosterReplaceIsAtomic(t *testing.T) {
	r := NewRoster()
	r.Replace(map[string]Tenant{
		"dmtr_abc": {Namespace: "ns1", Port: "p1", Tier: "free", Network: "mainnet", Key: "dmtr_abc"},
	})

	got, ok := r.Lookup("dmtr_abc")
	require.True(t, ok)
	require.Equal(t, "ns1.p1", got.String())

	r.Replace(map[string]Tenant{
		"dmtr_def": {Namespace: "ns2", Port: "p2", Tier: "paid", Network: "preprod", Key: "dmtr_def"},
	})

	_, ok = r.Lookup("dmtr_abc")
	require.False(t, ok, "old snapshot must be fully replaced, not merged")

	got, ok = r.Lookup("dmtr_def")
	require.True(t, ok)
	require.Equal(t, "paid", got.Tier)
}

func TestWatcherAppliesPushedEvents(t *testing.T) {
	roster := NewRoster()
	source := NewChannelSource(1)
	w := NewWatcher(source, roster, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	source.Push(map[string]Tenant{"dmtr_x": {Key: "dmtr_x", Tier: "free"}})

	require.Eventually(t, func() bool {
		_, ok := roster.Lookup("dmtr_x")
		return ok
	}, time.Second, time.Millisecond)

	source.Close()
	require.NoError(t, <-done)
}
