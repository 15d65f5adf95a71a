package database

import (
	"database/sql"
	"hash/fnv"

	log "github.com/sirupsen/logrus"
)

type cachedStatement struct {
	stmt     *sql.Stmt
	text     string
	lastUsed int64
	hash     uint32
}

// stmtCache is a fixed-capacity cache of prepared statements keyed by
// FNV1a-32 of the statement text. The fingerprint is only a shortcut:
// full text equality remains the authority. The victim is always the
// entry with the minimum last-used timestamp.
type stmtCache struct {
	entries []cachedStatement
	now     func() int64
}

func newStmtCache(capacity int, now func() int64) *stmtCache {
	return &stmtCache{
		entries: make([]cachedStatement, capacity),
		now:     now,
	}
}

func hashText(text string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	return h.Sum32()
}

// prepare returns the cached statement for text, preparing and caching
// it on a miss. Callers must fully drain or close result rows before
// the next database call so a statement never holds onto an older view
// of the database.
func (c *stmtCache) prepare(conn *sql.DB, text string) (*sql.Stmt, error) {
	hash := hashText(text)
	victim := 0
	victimTime := c.entries[0].lastUsed
	for i := range c.entries {
		entry := &c.entries[i]

		if entry.lastUsed < victimTime {
			victim = i
			victimTime = entry.lastUsed
		}

		if entry.stmt != nil && entry.hash == hash && entry.text == text {
			entry.lastUsed = c.now()
			return entry.stmt, nil
		}
	}

	stmt, err := conn.Prepare(text)
	if err != nil {
		return nil, err
	}

	entry := &c.entries[victim]
	if entry.stmt != nil {
		if err := entry.stmt.Close(); err != nil {
			log.Errorf("Failed to finalize evicted statement: %v", err)
		}
	}

	entry.stmt = stmt
	entry.text = text
	entry.lastUsed = c.now()
	entry.hash = hash
	return stmt, nil
}

// closeAll finalizes every cached statement.
func (c *stmtCache) closeAll() {
	for i := range c.entries {
		entry := &c.entries[i]
		if entry.stmt != nil {
			entry.stmt.Close()
			entry.stmt = nil
		}
		entry.text = ""
		entry.lastUsed = 0
		entry.hash = 0
	}
}
