package store

import (
	"fmt"
	"sort"

	"github.com/userdeck/userdeck/pkg/user"
)

// EnvelopeState tracks where a mutation is in its lifecycle.
type EnvelopeState int

const (
	// Pending means the optimistic change is applied locally but the remote
	// call has not resolved yet.
	Pending EnvelopeState = iota
	// Confirmed means the remote call succeeded; the optimistic change is now
	// authoritative. Terminal.
	Confirmed
	// RolledBack means the remote call failed; the baseline was restored.
	// Terminal.
	RolledBack
)

// String returns the state name for logs and tests.
func (s EnvelopeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("EnvelopeState(%d)", int(s))
	}
}

// baseline is the pre-mutation snapshot of one record.
// A nil record means the record did not exist before the mutation (Create).
type baseline struct {
	record   *user.Record
	position int
	resolved bool
}

// envelope correlates one in-flight mutation with the baselines needed to
// undo it. Baselines are retained only while the envelope is Pending.
type envelope struct {
	id        string
	intent    user.Intent
	state     EnvelopeState
	baselines map[string]*baseline
	tempID    string // synthetic ID for Create intents
}

// unresolved returns the IDs still awaiting per-record confirm/rollback,
// ordered by their position in the pre-mutation collection.
func (e *envelope) unresolved() []string {
	var ids []string
	for id, b := range e.baselines {
		if !b.resolved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return e.baselines[ids[i]].position < e.baselines[ids[j]].position
	})
	return ids
}

// ConflictError is returned when a mutation targets a record that already has
// a pending envelope. The first mutation's state is left untouched.
type ConflictError struct {
	ID         string
	MutationID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("record %s has a pending mutation (%s)", e.ID, e.MutationID)
}

// NotFoundError is returned when a mutation targets a record the store does
// not hold.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found", e.ID)
}
