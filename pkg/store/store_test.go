package store

import (
	"errors"
	"testing"
	"time"

	"github.com/userdeck/userdeck/pkg/user"
)

func seed() []user.Record {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []user.Record{
		{ID: "u1", Email: "one@example.com", Name: "One", Active: true, Roles: []string{"admin"}, CreatedAt: created},
		{ID: "u2", Email: "two@example.com", Name: "Two", Active: true, CreatedAt: created},
		{ID: "u3", Email: "three@example.com", Name: "Three", Active: false, CreatedAt: created},
	}
}

func snapshotEqual(t *testing.T, got, want []user.Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("snapshot has %d records, want %d", len(got), len(want))
	}
	for i := range got {
		if !got[i].Equal(want[i]) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReplaceAllClearsPending(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	if _, err := s.ApplyOptimistic(user.NewDelete("u2")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !s.IsOptimistic("u2") {
		t.Fatal("u2 should be pending")
	}

	s.ReplaceAll(seed())
	if s.IsOptimistic("u2") {
		t.Error("ReplaceAll should clear pending envelopes")
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestReplaceAllDropsDuplicateIDs(t *testing.T) {
	s := New()
	recs := seed()
	dup := recs[0].Clone()
	dup.Email = "dup@example.com"
	s.ReplaceAll(append(recs, dup))

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3 (duplicate dropped)", s.Len())
	}
	got, _ := s.Get("u1")
	if got.Email != "one@example.com" {
		t.Errorf("first occurrence should win, got %q", got.Email)
	}
}

func TestToggleStatusScenario(t *testing.T) {
	// The canonical scenario: toggle u1 inactive, observe the optimistic
	// flip, then roll back and observe the restore.
	s := New()
	s.ReplaceAll(seed())
	before := s.Snapshot()

	mid, err := s.ApplyOptimistic(user.NewToggleStatus("u1", false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := s.Get("u1")
	if got.Active {
		t.Error("u1 should be inactive immediately after apply")
	}
	if !s.IsOptimistic("u1") {
		t.Error("IsOptimistic(u1) should be true while pending")
	}

	s.Rollback(mid)

	got, _ = s.Get("u1")
	if !got.Active {
		t.Error("u1 should be active again after rollback")
	}
	if s.IsOptimistic("u1") {
		t.Error("IsOptimistic(u1) should be false after rollback")
	}
	snapshotEqual(t, s.Snapshot(), before)
}

func TestRollbackRestoresExactState(t *testing.T) {
	cases := []struct {
		name   string
		intent user.Intent
	}{
		{"update", user.NewUpdate("u2", func() user.Patch {
			name := "Renamed"
			roles := []string{"auditor", "viewer"}
			return user.Patch{Name: &name, Roles: &roles}
		}())},
		{"delete", user.NewDelete("u2")},
		{"delete first", user.NewDelete("u1")},
		{"delete last", user.NewDelete("u3")},
		{"toggle", user.NewToggleStatus("u3", true)},
		{"create", user.NewCreate(user.CreatePayload{Email: "new@example.com", Name: "New"})},
		{"bulk delete", user.NewBulkDelete([]string{"u1", "u3"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.ReplaceAll(seed())
			before := s.Snapshot()

			mid, err := s.ApplyOptimistic(tc.intent)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			s.Rollback(mid)

			snapshotEqual(t, s.Snapshot(), before)
			for _, rec := range s.Snapshot() {
				if s.IsOptimistic(rec.ID) {
					t.Errorf("record %s still optimistic after rollback", rec.ID)
				}
			}
		})
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	mid, _ := s.ApplyOptimistic(user.NewDelete("u2"))
	s.Rollback(mid)
	before := s.Snapshot()

	s.Rollback(mid) // second call must be a no-op
	snapshotEqual(t, s.Snapshot(), before)

	if state, ok := s.MutationState(mid); !ok || state != RolledBack {
		t.Errorf("mutation state = %v, %v; want RolledBack, true", state, ok)
	}
}

func TestNoDoublePending(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	first, err := s.ApplyOptimistic(user.NewToggleStatus("u1", false))
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	_, err = s.ApplyOptimistic(user.NewUpdate("u1", user.Patch{}))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second apply error = %v, want ConflictError", err)
	}
	if conflict.ID != "u1" || conflict.MutationID != first {
		t.Errorf("conflict = %+v, want id u1 / mutation %s", conflict, first)
	}

	// First mutation untouched by the rejected one.
	got, _ := s.Get("u1")
	if got.Active {
		t.Error("first mutation's optimistic state was disturbed")
	}
	if state, _ := s.MutationState(first); state != Pending {
		t.Errorf("first mutation state = %v, want Pending", state)
	}
}

func TestBulkConflictLeavesStoreUntouched(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	if _, err := s.ApplyOptimistic(user.NewDelete("u2")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := s.Snapshot()

	mid2, err := s.ApplyOptimistic(user.NewBulkDelete([]string{"u1", "u2"}))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("bulk apply error = %v, want ConflictError", err)
	}
	if mid2 != "" {
		t.Error("rejected apply should not return a mutation id")
	}

	// u1 must not have been removed by the rejected bulk.
	snapshotEqual(t, s.Snapshot(), before)
}

func TestApplyUnknownID(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	_, err := s.ApplyOptimistic(user.NewDelete("missing"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if s.Len() != 3 {
		t.Errorf("store mutated by failed apply, Len = %d", s.Len())
	}
}

func TestConfirmUpdateTakesServerRecord(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	name := "Renamed"
	mid, _ := s.ApplyOptimistic(user.NewUpdate("u2", user.Patch{Name: &name}))

	// Server normalizes the name differently than the optimistic guess.
	server := seed()[1]
	server.Name = "Renamed (verified)"
	server.Verified = true
	s.Confirm(mid, &server)

	got, _ := s.Get("u2")
	if got.Name != "Renamed (verified)" || !got.Verified {
		t.Errorf("server record should win: %+v", got)
	}
	if s.IsOptimistic("u2") {
		t.Error("u2 should not be optimistic after confirm")
	}
	if state, _ := s.MutationState(mid); state != Confirmed {
		t.Errorf("state = %v, want Confirmed", state)
	}
}

func TestCreateIDReconciliation(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	mid, err := s.ApplyOptimistic(user.NewCreate(user.CreatePayload{Email: "new@example.com", Name: "New", Active: true}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Find the synthetic record.
	var tempID string
	for _, rec := range s.Snapshot() {
		if user.IsTempID(rec.ID) {
			tempID = rec.ID
		}
	}
	if tempID == "" {
		t.Fatal("no synthetic record after optimistic create")
	}
	if !s.IsOptimistic(tempID) {
		t.Error("synthetic record should be optimistic")
	}

	server := user.Record{ID: "u99", Email: "new@example.com", Name: "New", Active: true, CreatedAt: time.Now()}
	s.Confirm(mid, &server)

	// No record with the temp ID remains; exactly one with the server ID.
	count := 0
	for _, rec := range s.Snapshot() {
		if rec.ID == tempID {
			t.Errorf("temporary id %s still present", tempID)
		}
		if rec.ID == "u99" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("found %d records with server id, want 1", count)
	}

	// Old references keep resolving.
	if s.ResolveID(tempID) != "u99" {
		t.Errorf("ResolveID(%s) = %s, want u99", tempID, s.ResolveID(tempID))
	}
	if rec, ok := s.Get(tempID); !ok || rec.ID != "u99" {
		t.Errorf("Get by temp id = %+v, %v; want server record", rec, ok)
	}
}

func TestCreateRollbackRemovesSynthetic(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	mid, _ := s.ApplyOptimistic(user.NewCreate(user.CreatePayload{Email: "new@example.com"}))
	if s.Len() != 4 {
		t.Fatalf("Len = %d, want 4 after optimistic create", s.Len())
	}
	s.Rollback(mid)
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3 after create rollback", s.Len())
	}
}

func TestBulkResolveOnePartial(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	mid, err := s.ApplyOptimistic(user.NewBulkDelete([]string{"u1", "u2", "u3"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("all records should be optimistically removed, Len = %d", s.Len())
	}

	s.ResolveOne(mid, "u1", true)  // remote delete succeeded
	s.ResolveOne(mid, "u2", false) // remote delete failed
	s.ResolveOne(mid, "u3", true)

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ID != "u2" {
		t.Fatalf("snapshot = %+v, want only u2 restored", snap)
	}
	if !snap[0].Equal(seed()[1]) {
		t.Errorf("u2 not restored to pre-delete value: %+v", snap[0])
	}
	if s.IsOptimistic("u2") {
		t.Error("u2 should be settled")
	}
	if state, _ := s.MutationState(mid); state != Confirmed {
		t.Errorf("bulk state = %v, want Confirmed (terminal)", state)
	}

	// Late duplicate resolution is a no-op.
	s.ResolveOne(mid, "u2", true)
	if s.Len() != 1 {
		t.Error("duplicate ResolveOne changed the store")
	}
}

func TestBulkRollbackOrderIndependent(t *testing.T) {
	// Per-record failures must restore records to their original positions
	// no matter which order the remote results arrive in.
	cases := []struct {
		name    string
		targets []string
		order   []string
	}{
		{"front pair in order", []string{"u1", "u2"}, []string{"u1", "u2"}},
		{"front pair reversed", []string{"u1", "u2"}, []string{"u2", "u1"}},
		{"all reversed", []string{"u1", "u2", "u3"}, []string{"u3", "u2", "u1"}},
		{"all interleaved", []string{"u1", "u2", "u3"}, []string{"u2", "u3", "u1"}},
		{"sparse reversed", []string{"u1", "u3"}, []string{"u3", "u1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.ReplaceAll(seed())
			before := s.Snapshot()

			mid, err := s.ApplyOptimistic(user.NewBulkDelete(tc.targets))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			for _, id := range tc.order {
				s.ResolveOne(mid, id, false)
			}

			snapshotEqual(t, s.Snapshot(), before)
		})
	}
}

func TestBulkRollbackMixedOutcomeKeepsPositions(t *testing.T) {
	s := New()
	recs := append(seed(), user.Record{ID: "u4", Email: "four@example.com", Name: "Four", CreatedAt: seed()[0].CreatedAt})
	s.ReplaceAll(recs)

	mid, err := s.ApplyOptimistic(user.NewBulkDelete([]string{"u1", "u2", "u3"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// u2's delete lands; u1 and u3 fail, reported out of order.
	s.ResolveOne(mid, "u2", true)
	s.ResolveOne(mid, "u3", false)
	s.ResolveOne(mid, "u1", false)

	snap := s.Snapshot()
	wantIDs := []string{"u1", "u3", "u4"}
	if len(snap) != len(wantIDs) {
		t.Fatalf("snapshot has %d records, want %d", len(snap), len(wantIDs))
	}
	for i, id := range wantIDs {
		if snap[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, snap[i].ID, id)
		}
	}
}

func TestBulkDeleteDuplicateTargets(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())
	before := s.Snapshot()

	mid, err := s.ApplyOptimistic(user.NewBulkDelete([]string{"u2", "u2"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (duplicate ids collapse to one removal)", s.Len())
	}

	s.Rollback(mid)
	snapshotEqual(t, s.Snapshot(), before)
}

func TestMutationStateEvictedAfterRetention(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	first, _ := s.ApplyOptimistic(user.NewToggleStatus("u1", false))
	s.Confirm(first, nil)

	var last string
	for i := 0; i < terminalRetention; i++ {
		mid, err := s.ApplyOptimistic(user.NewToggleStatus("u1", i%2 == 0))
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		s.Confirm(mid, nil)
		last = mid
	}

	if _, ok := s.MutationState(first); ok {
		t.Error("oldest terminal mutation should have been evicted")
	}
	if state, ok := s.MutationState(last); !ok || state != Confirmed {
		t.Errorf("recent mutation state = %v, %v; want Confirmed, true", state, ok)
	}
}

func TestIndependentMutationsResolveOutOfOrder(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	m1, _ := s.ApplyOptimistic(user.NewToggleStatus("u1", false))
	m2, _ := s.ApplyOptimistic(user.NewDelete("u3"))

	// Resolve in reverse order of issue.
	s.Rollback(m2)
	s.Confirm(m1, nil)

	if _, ok := s.Get("u3"); !ok {
		t.Error("u3 should be restored by its own rollback")
	}
	got, _ := s.Get("u1")
	if got.Active {
		t.Error("u1 confirm should keep the optimistic flip")
	}
}

func TestSubscribeNotifies(t *testing.T) {
	s := New()
	calls := 0
	unsub := s.Subscribe(func() { calls++ })

	s.ReplaceAll(seed())
	mid, _ := s.ApplyOptimistic(user.NewDelete("u1"))
	s.Confirm(mid, nil)

	if calls != 3 {
		t.Errorf("subscriber called %d times, want 3", calls)
	}

	unsub()
	s.ReplaceAll(seed())
	if calls != 3 {
		t.Error("subscriber called after unsubscribe")
	}
}

func TestOptimisticRoundTrip(t *testing.T) {
	// Final state after apply+confirm equals ReplaceAll of the server-side
	// result of the same intent.
	s := New()
	s.ReplaceAll(seed())

	mid, _ := s.ApplyOptimistic(user.NewToggleStatus("u1", false))
	server := seed()[0]
	server.Active = false
	s.Confirm(mid, &server)

	want := New()
	refreshed := seed()
	refreshed[0].Active = false
	want.ReplaceAll(refreshed)

	snapshotEqual(t, s.Snapshot(), want.Snapshot())
}

func TestApplyRemoteUpsert(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	// Update of an idle record takes effect.
	upd := seed()[1]
	upd.Name = "Renamed Remotely"
	s.ApplyRemote(upd)
	if rec, _ := s.Get("u2"); rec.Name != "Renamed Remotely" {
		t.Errorf("u2 name = %q", rec.Name)
	}

	// Unknown ID appends.
	s.ApplyRemote(user.Record{ID: "u99", Name: "Pushed"})
	if rec, ok := s.Get("u99"); !ok || rec.Name != "Pushed" {
		t.Errorf("u99 = %+v, %v", rec, ok)
	}
	if s.Snapshot()[s.Len()-1].ID != "u99" {
		t.Error("pushed record should append at the end")
	}

	// A pending record is untouched.
	name := "Local Edit"
	mid, err := s.ApplyOptimistic(user.NewUpdate("u1", user.Patch{Name: &name}))
	if err != nil {
		t.Fatal(err)
	}
	stale := seed()[0]
	stale.Name = "Server Echo"
	s.ApplyRemote(stale)
	if rec, _ := s.Get("u1"); rec.Name != "Local Edit" {
		t.Errorf("u1 name = %q, pending edit should win", rec.Name)
	}
	s.Confirm(mid, nil)
}

func TestRemoveRemote(t *testing.T) {
	s := New()
	s.ReplaceAll(seed())

	s.RemoveRemote("u2")
	if _, ok := s.Get("u2"); ok {
		t.Error("u2 should be gone")
	}

	// Unknown ID is a no-op.
	before := s.Snapshot()
	s.RemoveRemote("nope")
	snapshotEqual(t, s.Snapshot(), before)

	// A record mid-delete keeps its pending envelope.
	mid, err := s.ApplyOptimistic(user.NewDelete("u1"))
	if err != nil {
		t.Fatal(err)
	}
	s.RemoveRemote("u1")
	if !s.IsOptimistic("u1") {
		t.Error("pending delete should survive the remote remove")
	}
	s.Rollback(mid)
	if _, ok := s.Get("u1"); !ok {
		t.Error("rollback should restore u1 after the ignored remote remove")
	}
}
