// Package cache holds short-lived copies of user pages fetched from the
// remote service, so filter and page flips inside one session don't refetch.
// Any confirmed mutation invalidates every cached page.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/userdeck/userdeck/pkg/user"
)

// PageKey identifies one fetched page of the user list.
type PageKey struct {
	Search string
	Role   string
	Status string
	Page   int
	Size   int
}

// String renders the key in a stable, Redis-safe form.
func (k PageKey) String() string {
	return fmt.Sprintf("s=%s|r=%s|st=%s|p=%d|n=%d", k.Search, k.Role, k.Status, k.Page, k.Size)
}

// Entry is one cached page.
type Entry struct {
	Users []user.Record `json:"users"`
	Total int           `json:"total"`
}

// PageCache caches fetched user pages. Implementations are safe for
// concurrent use. Misses and backend failures both report ok=false; the
// caller falls through to the remote service.
type PageCache interface {
	Get(ctx context.Context, key PageKey) (Entry, bool)
	Set(ctx context.Context, key PageKey, entry Entry)
	Invalidate(ctx context.Context)
}

// Memory is an in-process PageCache used when no Redis address is
// configured.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	entry   Entry
	expires time.Time
}

// NewMemory creates an in-process cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Get returns the cached page if present and fresh.
func (m *Memory) Get(ctx context.Context, key PageKey) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key.String()]
	if !ok || m.now().After(e.expires) {
		delete(m.entries, key.String())
		return Entry{}, false
	}
	return e.entry, true
}

// Set stores a page.
func (m *Memory) Set(ctx context.Context, key PageKey, entry Entry) {
	m.mu.Lock()
	m.entries[key.String()] = memEntry{entry: entry, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

// Invalidate drops every cached page.
func (m *Memory) Invalidate(ctx context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
}
