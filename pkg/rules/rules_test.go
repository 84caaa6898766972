package rules

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRulesDocument(t *testing.T) {
	doc := `
[[rules]]
pattern = "^/epochs/latest$"
ttl_seconds = 10

[[rules]]
pattern = "^/pools/"
ttl_seconds = 300
`
	rs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Equal(t, 10*time.Second, rs[0].TTL)
}

func TestParseRejectsNonPositiveTTL(t *testing.T) {
	doc := `
[[rules]]
pattern = "^/foo$"
ttl_seconds = 0
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestParseRejectsInvalidPattern(t *testing.T) {
	doc := `
[[rules]]
pattern = "(unterminated"
ttl_seconds = 10
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestListMatchFirstWins(t *testing.T) {
	l := NewList()
	l.Replace([]Rule{
		{Pattern: regexp.MustCompile(`^/epochs/latest$`), Raw: `^/epochs/latest$`, TTL: time.Second},
		{Pattern: regexp.MustCompile(`^/epochs/`), Raw: `^/epochs/`, TTL: 2 * time.Second},
	})

	r, ok := l.Match("/epochs/latest")
	require.True(t, ok)
	require.Equal(t, time.Second, r.TTL)

	r, ok = l.Match("/epochs/1")
	require.True(t, ok)
	require.Equal(t, 2*time.Second, r.TTL)

	_, ok = l.Match("/network")
	require.False(t, ok)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[rules]]\npattern = \"^/a$\"\nttl_seconds = 1\n"), 0o644))

	list := NewList()
	w, err := NewWatcher(path, list, nil)
	require.NoError(t, err)

	_, ok := list.Match("/a")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("[[rules]]\npattern = \"^/b$\"\nttl_seconds = 2\n"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := list.Match("/b")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
