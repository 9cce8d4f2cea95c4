// Package store holds the canonical in-memory collection of user records and
// applies optimistic mutations to it atomically with respect to the render
// cycle.
//
// Every mutation goes through the same shape: ApplyOptimistic computes the
// post-success state synchronously and retains a baseline snapshot, then the
// caller resolves the mutation with Confirm or Rollback once the remote call
// lands. Confirm and Rollback are keyed by mutation ID, never by arrival
// order, so remote calls for different records may resolve out of order.
//
// The store is the exclusive owner of the collection. Renderers read it
// through Snapshot/Get and subscribe for change notifications; nothing else
// mutates it directly.
package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/userdeck/userdeck/pkg/user"
)

// Store is the optimistic mutation store.
// The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex

	records []user.Record
	index   map[string]int // id -> position in records

	pending   map[string]string    // record id -> mutation id
	envelopes map[string]*envelope // mutation id -> envelope
	aliases   map[string]string    // temp id -> authoritative id
	terminal  []string             // resolved mutation ids, oldest first

	subs   map[int]func()
	nextID int
}

// terminalRetention bounds how many resolved envelopes are kept around for
// MutationState lookups before the oldest are forgotten.
const terminalRetention = 1024

// New creates an empty store.
func New() *Store {
	return &Store{
		index:     make(map[string]int),
		pending:   make(map[string]string),
		envelopes: make(map[string]*envelope),
		aliases:   make(map[string]string),
		subs:      make(map[int]func()),
	}
}

// Subscribe registers fn to run after every state change.
// It returns an unsubscribe function.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify runs subscribers outside the lock.
func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// ReplaceAll refreshes the collection from the server, e.g. after page load
// or a filter change. All pending envelopes are cleared. Records with a
// duplicate ID keep their first occurrence.
func (s *Store) ReplaceAll(records []user.Record) {
	s.mu.Lock()
	s.records = s.records[:0]
	s.index = make(map[string]int, len(records))
	s.pending = make(map[string]string)
	s.envelopes = make(map[string]*envelope)
	s.aliases = make(map[string]string)
	s.terminal = nil
	for _, rec := range records {
		if _, dup := s.index[rec.ID]; dup {
			continue
		}
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec.Clone())
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyOptimistic synchronously applies the intent assuming it will succeed
// and returns the mutation ID correlating the local change to its remote
// call. It performs no I/O and never blocks on the network. Duplicate IDs
// in a bulk intent collapse to one target.
//
// It returns *ConflictError if any affected record already has a pending
// envelope, and *NotFoundError if the intent targets an unknown record. On
// error the store is left untouched.
func (s *Store) ApplyOptimistic(intent user.Intent) (string, error) {
	s.mu.Lock()

	// Validate every target before touching anything.
	seen := make(map[string]bool, len(intent.TargetIDs()))
	targets := make([]string, 0, len(intent.TargetIDs()))
	for _, id := range intent.TargetIDs() {
		id = s.resolveLocked(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		if mid, ok := s.pending[id]; ok {
			s.mu.Unlock()
			return "", &ConflictError{ID: id, MutationID: mid}
		}
		if _, ok := s.index[id]; !ok {
			s.mu.Unlock()
			return "", &NotFoundError{ID: id}
		}
		targets = append(targets, id)
	}

	env := &envelope{
		id:        uuid.NewString(),
		intent:    intent,
		state:     Pending,
		baselines: make(map[string]*baseline),
	}

	switch intent.Kind {
	case user.IntentCreate:
		env.tempID = user.TempIDPrefix + uuid.NewString()
		rec := user.Record{
			ID:       env.tempID,
			Email:    intent.Create.Email,
			Name:     intent.Create.Name,
			Active:   intent.Create.Active,
			Approved: intent.Create.Approved,
		}
		if intent.Create.Roles != nil {
			rec.Roles = append([]string(nil), intent.Create.Roles...)
		}
		env.baselines[env.tempID] = &baseline{record: nil, position: len(s.records)}
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
		s.pending[rec.ID] = env.id

	case user.IntentUpdate:
		id := s.resolveLocked(intent.ID)
		pos := s.index[id]
		snap := s.records[pos].Clone()
		env.baselines[id] = &baseline{record: &snap, position: pos}
		s.records[pos] = intent.Patch.Apply(s.records[pos])
		s.pending[id] = env.id

	case user.IntentToggleStatus:
		id := s.resolveLocked(intent.ID)
		pos := s.index[id]
		snap := s.records[pos].Clone()
		env.baselines[id] = &baseline{record: &snap, position: pos}
		s.records[pos].Active = intent.NextActive
		s.pending[id] = env.id

	case user.IntentDelete:
		id := s.resolveLocked(intent.ID)
		s.removeLocked(env, id)

	case user.IntentBulkDelete:
		// Remove from the highest position down so every baseline records
		// the record's position in the original collection.
		sort.Slice(targets, func(i, j int) bool {
			return s.index[targets[i]] > s.index[targets[j]]
		})
		for _, id := range targets {
			s.removeLocked(env, id)
		}
	}

	s.envelopes[env.id] = env
	s.mu.Unlock()
	s.notify()
	return env.id, nil
}

// removeLocked snapshots and removes one record. Caller holds the lock.
func (s *Store) removeLocked(env *envelope, id string) {
	pos := s.index[id]
	snap := s.records[pos].Clone()
	env.baselines[id] = &baseline{record: &snap, position: pos}
	s.records = append(s.records[:pos], s.records[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	s.pending[id] = env.id
}

// Confirm transitions the mutation to Confirmed. If the server returned an
// authoritative record (Create, Update, ToggleStatus), it replaces the
// optimistic data. For a Create the synthetic temporary ID is reconciled:
// exactly one record with the server ID remains, and lookups by the old
// temporary ID keep resolving to it.
//
// Confirming an unknown or already-resolved mutation is a no-op.
func (s *Store) Confirm(mutationID string, server *user.Record) {
	s.mu.Lock()
	env, ok := s.envelopes[mutationID]
	if !ok || env.state != Pending {
		s.mu.Unlock()
		return
	}

	for _, id := range env.unresolved() {
		b := env.baselines[id]
		b.resolved = true
		delete(s.pending, id)

		if server == nil {
			continue
		}
		pos, live := s.index[id]
		if !live {
			continue
		}
		if id != server.ID {
			// Create reconciliation: the synthetic ID gives way to the
			// server-assigned one.
			delete(s.index, id)
			s.aliases[id] = server.ID
		}
		s.records[pos] = server.Clone()
		s.index[server.ID] = pos
	}

	env.state = Confirmed
	env.baselines = nil
	s.retireLocked(env.id)
	s.mu.Unlock()
	s.notify()
}

// Rollback restores the baseline snapshot for every record still unresolved
// under the mutation, discarding the optimistic change. It is idempotent:
// rolling back a resolved mutation is a no-op.
func (s *Store) Rollback(mutationID string) {
	s.mu.Lock()
	env, ok := s.envelopes[mutationID]
	if !ok || env.state != Pending {
		s.mu.Unlock()
		return
	}
	for _, id := range env.unresolved() {
		s.rollbackOneLocked(env, id)
	}
	env.state = RolledBack
	env.baselines = nil
	s.retireLocked(env.id)
	s.mu.Unlock()
	s.notify()
}

// ResolveOne settles a single record under a bulk mutation: a confirmed
// record stays removed, a failed one is restored to its pre-delete value.
// When the last record resolves the envelope becomes terminal. Bulk
// mutations are partial-failure tolerant, so the envelope reads Confirmed
// even when some members were restored.
func (s *Store) ResolveOne(mutationID, id string, confirmed bool) {
	s.mu.Lock()
	env, ok := s.envelopes[mutationID]
	if !ok || env.state != Pending {
		s.mu.Unlock()
		return
	}
	b, ok := env.baselines[id]
	if !ok || b.resolved {
		s.mu.Unlock()
		return
	}
	if confirmed {
		b.resolved = true
		delete(s.pending, id)
	} else {
		s.rollbackOneLocked(env, id)
	}
	if len(env.unresolved()) == 0 {
		env.state = Confirmed
		env.baselines = nil
		s.retireLocked(env.id)
	}
	s.mu.Unlock()
	s.notify()
}

// retireLocked queues a resolved envelope for eventual eviction, dropping
// the oldest once the retention window is full. Caller holds the lock.
func (s *Store) retireLocked(mutationID string) {
	s.terminal = append(s.terminal, mutationID)
	if len(s.terminal) > terminalRetention {
		delete(s.envelopes, s.terminal[0])
		s.terminal = s.terminal[1:]
	}
}

// rollbackOneLocked restores one record's baseline. Caller holds the lock.
func (s *Store) rollbackOneLocked(env *envelope, id string) {
	b := env.baselines[id]
	b.resolved = true
	delete(s.pending, id)

	if b.record == nil {
		// Create rollback: drop the synthetic record.
		if pos, ok := s.index[id]; ok {
			s.records = append(s.records[:pos], s.records[pos+1:]...)
			delete(s.index, id)
			for i := pos; i < len(s.records); i++ {
				s.index[s.records[i].ID] = i
			}
		}
		return
	}

	if pos, ok := s.index[id]; ok {
		// Record still present (update/toggle): restore in place.
		s.records[pos] = b.record.Clone()
		return
	}

	// Delete rollback: reinsert where the record sat in the pre-mutation
	// collection, shifted left once for every record of the same mutation
	// that preceded it and is still absent. Restores then reconstruct the
	// original order regardless of resolution order.
	pos := b.position
	for otherID, ob := range env.baselines {
		if otherID == id || ob.record == nil || ob.position >= b.position {
			continue
		}
		if _, live := s.index[otherID]; !live {
			pos--
		}
	}
	if pos > len(s.records) {
		pos = len(s.records)
	}
	if pos < 0 {
		pos = 0
	}
	s.records = append(s.records, user.Record{})
	copy(s.records[pos+1:], s.records[pos:])
	s.records[pos] = b.record.Clone()
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
}

// ApplyRemote upserts a server-pushed record. A record with an unresolved
// optimistic change is left alone; the pending mutation resolves it.
// Unknown IDs are appended at the end of the collection.
func (s *Store) ApplyRemote(rec user.Record) {
	s.mu.Lock()
	id := s.resolveLocked(rec.ID)
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return
	}
	if pos, ok := s.index[id]; ok {
		s.records[pos] = rec.Clone()
	} else {
		s.index[id] = len(s.records)
		s.records = append(s.records, rec.Clone())
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveRemote drops a server-deleted record. Records with an unresolved
// optimistic change and unknown IDs are left alone.
func (s *Store) RemoveRemote(id string) {
	s.mu.Lock()
	id = s.resolveLocked(id)
	if _, busy := s.pending[id]; busy {
		s.mu.Unlock()
		return
	}
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.records = append(s.records[:pos], s.records[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	s.mu.Unlock()
	s.notify()
}

// IsOptimistic reports whether the record has an unresolved optimistic
// change. The renderer uses this for the "saving…" affordance. O(1).
func (s *Store) IsOptimistic(id string) bool {
	s.mu.RLock()
	_, ok := s.pending[s.resolveLocked(id)]
	s.mu.RUnlock()
	return ok
}

// MutationState returns the lifecycle state of a mutation and whether the
// mutation is known.
func (s *Store) MutationState(mutationID string) (EnvelopeState, bool) {
	s.mu.RLock()
	env, ok := s.envelopes[mutationID]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return env.state, true
}

// ResolveID maps a synthetic temporary ID to its authoritative server ID.
// IDs without an alias are returned unchanged.
func (s *Store) ResolveID(id string) string {
	s.mu.RLock()
	out := s.resolveLocked(id)
	s.mu.RUnlock()
	return out
}

func (s *Store) resolveLocked(id string) string {
	if canonical, ok := s.aliases[id]; ok {
		return canonical
	}
	return id
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (user.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[s.resolveLocked(id)]
	if !ok {
		return user.Record{}, false
	}
	return s.records[pos].Clone(), true
}

// Snapshot returns a copy of the ordered collection.
func (s *Store) Snapshot() []user.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// Len returns the number of records currently in the collection.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
