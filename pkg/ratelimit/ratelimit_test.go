package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blockfrost-proxy/pkg/tier"
)

func newTestTable(t *testing.T, windows ...tier.RateWindow) *tier.Table {
	table := tier.NewTable()
	table.Replace(map[string]tier.Tier{
		"free": {Name: "free", Windows: windows},
	})
	return table
}

func TestAllowAdmitsUnderLimit(t *testing.T) {
	table := newTestTable(t, tier.RateWindow{Limit: 3, Interval: time.Minute})
	m := NewManager(table)

	for i := 0; i < 3; i++ {
		require.Equal(t, Admit, m.Allow("dmtr_x", "free"))
	}
}

func TestAllowDeniesStrictlyAboveLimit(t *testing.T) {
	table := newTestTable(t, tier.RateWindow{Limit: 2, Interval: time.Minute})
	m := NewManager(table)

	require.Equal(t, Admit, m.Allow("dmtr_x", "free"))
	require.Equal(t, Admit, m.Allow("dmtr_x", "free"))
	require.Equal(t, Deny, m.Allow("dmtr_x", "free"), "third request must be denied: count(3) > limit(2)")
}

func TestAllowUnknownTierFailsClosed(t *testing.T) {
	table := tier.NewTable()
	m := NewManager(table)
	require.Equal(t, UnknownTier, m.Allow("dmtr_x", "nonexistent"))
}

func TestAllowConjunctiveWindows(t *testing.T) {
	table := newTestTable(t,
		tier.RateWindow{Limit: 100, Interval: time.Hour},
		tier.RateWindow{Limit: 1, Interval: time.Minute},
	)
	m := NewManager(table)

	require.Equal(t, Admit, m.Allow("dmtr_x", "free"))
	require.Equal(t, Deny, m.Allow("dmtr_x", "free"), "the tighter per-minute window must deny even though the hourly window has headroom")
}

func TestWindowRollsOverAfterInterval(t *testing.T) {
	table := newTestTable(t, tier.RateWindow{Limit: 1, Interval: 10 * time.Millisecond})
	m := NewManager(table)

	fakeNow := time.Now()
	m.nowFunc = func() time.Time { return fakeNow }

	require.Equal(t, Admit, m.Allow("dmtr_x", "free"))
	require.Equal(t, Deny, m.Allow("dmtr_x", "free"))

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	require.Equal(t, Admit, m.Allow("dmtr_x", "free"), "window must roll over once its interval has elapsed")
}

func TestForgetDropsCounters(t *testing.T) {
	table := newTestTable(t, tier.RateWindow{Limit: 1, Interval: time.Minute})
	m := NewManager(table)

	m.Allow("dmtr_x", "free")
	require.Equal(t, 1, m.Len())
	m.Forget("dmtr_x")
	require.Equal(t, 0, m.Len())
}
