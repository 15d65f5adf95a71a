package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want uint32
	}{
		// FNV1a-32 reference values.
		{"empty", "", 0x811C9DC5},
		{"a", "a", 0xE40C292C},
		{"foobar", "foobar", 0xBF9CF968},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hashText(tt.text); got != tt.want {
				t.Errorf("hashText(%q) = %08X, want %08X", tt.text, got, tt.want)
			}
		})
	}
}

func TestStmtCacheHit(t *testing.T) {
	db := openTestDB(t)
	cache := newStmtCache(4, db.stmts.now)

	first, err := cache.prepare(db.conn, "SELECT 1")
	require.NoError(t, err)
	second, err := cache.prepare(db.conn, "SELECT 1")
	require.NoError(t, err)
	require.Same(t, first, second, "hit must return the cached handle")
}

func TestStmtCacheEvictsLeastRecentlyUsed(t *testing.T) {
	db := openTestDB(t)
	cache := newStmtCache(2, db.stmts.now)

	a, err := cache.prepare(db.conn, "SELECT 1")
	require.NoError(t, err)
	_, err = cache.prepare(db.conn, "SELECT 2")
	require.NoError(t, err)

	// Refresh A so that B is the least recently used entry.
	_, err = cache.prepare(db.conn, "SELECT 1")
	require.NoError(t, err)

	_, err = cache.prepare(db.conn, "SELECT 3")
	require.NoError(t, err)

	texts := []string{cache.entries[0].text, cache.entries[1].text}
	require.Contains(t, texts, "SELECT 1")
	require.Contains(t, texts, "SELECT 3")
	require.NotContains(t, texts, "SELECT 2")

	// A is still the live handle from before.
	again, err := cache.prepare(db.conn, "SELECT 1")
	require.NoError(t, err)
	require.Same(t, a, again)
}

func TestStmtCacheDistinguishesFingerprintCollisions(t *testing.T) {
	db := openTestDB(t)
	cache := newStmtCache(4, db.stmts.now)

	// Same length, different text: even if the fingerprints collided the
	// full-text comparison must keep the statements apart.
	a, err := cache.prepare(db.conn, "SELECT 10")
	require.NoError(t, err)
	b, err := cache.prepare(db.conn, "SELECT 01")
	require.NoError(t, err)
	require.NotSame(t, a, b)
}
