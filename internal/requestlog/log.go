// Package requestlog implements the append-only, in-memory log of stat
// blocks returned verbatim by a POST request. Appends are serialised by a
// mutex; readers take a snapshot copy under the same lock so a concurrent
// POST always observes a consistent prefix of appends, never a partial
// record.
package requestlog

import "sync"

// Log is an append-only sequence of byte blocks, optionally capped.
type Log struct {
	mu      sync.Mutex
	blocks  [][]byte
	cap     int // 0 = unbounded
	dropped int64
}

// New constructs a Log. cap is the maximum number of retained blocks; 0
// means unbounded growth, matching the distilled spec's default.
func New(cap int) *Log {
	return &Log{cap: cap}
}

// Append adds block to the end of the log. block is copied so the caller
// may reuse its backing array.
func (l *Log) Append(block []byte) {
	cp := make([]byte, len(block))
	copy(cp, block)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.blocks = append(l.blocks, cp)
	if l.cap > 0 && len(l.blocks) > l.cap {
		evict := len(l.blocks) - l.cap
		l.blocks = l.blocks[evict:]
		l.dropped += int64(evict)
	}
}

// Snapshot returns the byte-for-byte concatenation of every retained block,
// in append order, as of the moment the lock was held.
func (l *Log) Snapshot() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, b := range l.blocks {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range l.blocks {
		out = append(out, b...)
	}
	return out
}

// Len returns the number of blocks currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// Dropped returns the number of blocks evicted so far because the log was
// capped. Always 0 when the log is unbounded.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
