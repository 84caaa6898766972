package cache

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, maxSizeBytes int64) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, maxSizeBytes, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := openTestCache(t, 0)
	_, _, handle, ok := c.Lookup("nope")
	require.False(t, ok)
	require.Nil(t, handle)
}

func TestWriteThenRead(t *testing.T) {
	c := openTestCache(t, 0)

	meta := Meta{StatusCode: 200, Header: http.Header{"Foo": {"bar"}}}
	timing := Timing{StoredAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}

	wh := c.NewWriteHandle("key-1", meta, timing)
	require.NoError(t, wh.WriteBody([]byte("test1"), false))
	require.NoError(t, wh.WriteBody([]byte("test2"), true))
	size, err := wh.Finish()
	require.NoError(t, err)
	require.Equal(t, 10, size)

	gotMeta, gotTiming, hit, ok := c.Lookup("key-1")
	require.True(t, ok)
	require.Equal(t, 200, gotMeta.StatusCode)
	require.Equal(t, "bar", gotMeta.Header.Get("Foo"))
	require.False(t, gotTiming.Expired(time.Now()))

	data := hit.ReadBody()
	require.Equal(t, "test1test2", string(data))
	require.Nil(t, hit.ReadBody())
}

func TestWriteAfterEOFErrors(t *testing.T) {
	c := openTestCache(t, 0)
	wh := c.NewWriteHandle("k", Meta{}, Timing{})
	require.NoError(t, wh.WriteBody([]byte("a"), true))
	require.Error(t, wh.WriteBody([]byte("b"), false))
}

func TestSeekOutOfRangeErrors(t *testing.T) {
	c := openTestCache(t, 0)
	wh := c.NewWriteHandle("k", Meta{}, Timing{})
	require.NoError(t, wh.WriteBody([]byte("test1test2"), true))
	_, err := wh.Finish()
	require.NoError(t, err)

	_, _, hit, ok := c.Lookup("k")
	require.True(t, ok)

	require.Error(t, hit.Seek(10000, nil))

	require.NoError(t, hit.Seek(5, nil))
	require.Equal(t, "test2", string(hit.ReadBody()))
	require.Nil(t, hit.ReadBody())

	end := 9
	require.NoError(t, hit.Seek(4, &end))
	require.Equal(t, "1test", string(hit.ReadBody()))
	require.Nil(t, hit.ReadBody())
}

func TestPurgeRemovesEntry(t *testing.T) {
	c := openTestCache(t, 0)
	wh := c.NewWriteHandle("k", Meta{}, Timing{})
	require.NoError(t, wh.WriteBody([]byte("x"), true))
	_, err := wh.Finish()
	require.NoError(t, err)

	existed, err := c.Purge("k")
	require.NoError(t, err)
	require.True(t, existed)

	_, _, _, ok := c.Lookup("k")
	require.False(t, ok)

	existed, err = c.Purge("k")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestUpdateMetaRewritesWithoutTouchingBody(t *testing.T) {
	c := openTestCache(t, 0)
	wh := c.NewWriteHandle("k", Meta{StatusCode: 200}, Timing{ExpiresAt: time.Now()})
	require.NoError(t, wh.WriteBody([]byte("body"), true))
	_, err := wh.Finish()
	require.NoError(t, err)

	newExpiry := time.Now().Add(time.Hour)
	ok, err := c.UpdateMeta("k", Meta{StatusCode: 304}, Timing{ExpiresAt: newExpiry})
	require.NoError(t, err)
	require.True(t, ok)

	meta, timing, hit, ok := c.Lookup("k")
	require.True(t, ok)
	require.Equal(t, 304, meta.StatusCode)
	require.WithinDuration(t, newExpiry, timing.ExpiresAt, time.Second)
	require.Equal(t, "body", string(hit.ReadBody()))
}

func TestUpdateMetaErrorsOnMissingKey(t *testing.T) {
	c := openTestCache(t, 0)
	_, err := c.UpdateMeta("missing", Meta{}, Timing{})
	require.Error(t, err)
}

func TestEvictionKeepsUnderBudget(t *testing.T) {
	c := openTestCache(t, 10)

	for _, k := range []string{"a", "b", "c"} {
		wh := c.NewWriteHandle(k, Meta{}, Timing{})
		require.NoError(t, wh.WriteBody([]byte("12345"), true))
		_, err := wh.Finish()
		require.NoError(t, err)
	}

	require.LessOrEqual(t, c.totalBytes, int64(10))
	_, _, _, aOK := c.Lookup("a")
	require.False(t, aOK, "oldest entry should have been evicted")
	_, _, _, cOK := c.Lookup("c")
	require.True(t, cOK, "newest entry should survive eviction")
}

func TestSupportStreamingPartialWriteIsFalse(t *testing.T) {
	c := openTestCache(t, 0)
	require.False(t, c.SupportStreamingPartialWrite())
}

func TestKeyIsDeterministicAndNetworkSegregated(t *testing.T) {
	k1 := Key("mainnet", "/epochs/latest", "")
	k2 := Key("mainnet", "/epochs/latest", "")
	k3 := Key("preprod", "/epochs/latest", "")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}
