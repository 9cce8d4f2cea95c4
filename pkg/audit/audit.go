// Package audit keeps a bounded in-memory trail of mutation outcomes for the
// console's audit view. The remote service owns the durable audit log; this
// trail covers the current session, including failures that never reached
// the server.
package audit

import (
	"sync"
	"time"

	"github.com/userdeck/userdeck/pkg/user"
)

// Entry is one audited mutation outcome.
type Entry struct {
	At         time.Time       `json:"at"`
	Actor      string          `json:"actor,omitempty"`
	Kind       user.IntentKind `json:"kind"`
	TargetIDs  []string        `json:"target_ids,omitempty"`
	MutationID string          `json:"mutation_id"`
	Outcome    string          `json:"outcome"` // confirmed | rolled_back | partial
	Detail     string          `json:"detail,omitempty"`
}

// Trail is a fixed-capacity ring of entries, newest first on read.
type Trail struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// DefaultCapacity bounds the trail when NewTrail is given a non-positive size.
const DefaultCapacity = 512

// NewTrail creates a trail holding at most capacity entries.
func NewTrail(capacity int) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trail{entries: make([]Entry, capacity)}
}

// Record appends an entry, evicting the oldest when full.
func (t *Trail) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	t.mu.Lock()
	t.entries[t.next] = e
	t.next++
	if t.next == len(t.entries) {
		t.next = 0
		t.full = true
	}
	t.mu.Unlock()
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (t *Trail) Recent(limit int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := t.next
	if t.full {
		size = len(t.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		pos := t.next - i
		if pos < 0 {
			pos += len(t.entries)
		}
		out = append(out, t.entries[pos])
	}
	return out
}

// Len returns the number of entries currently held.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.full {
		return len(t.entries)
	}
	return t.next
}
