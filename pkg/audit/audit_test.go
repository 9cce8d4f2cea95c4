package audit

import (
	"fmt"
	"testing"

	"github.com/userdeck/userdeck/pkg/user"
)

func TestRecentNewestFirst(t *testing.T) {
	trail := NewTrail(10)
	for i := 0; i < 3; i++ {
		trail.Record(Entry{Kind: user.IntentDelete, MutationID: fmt.Sprintf("m%d", i)})
	}

	got := trail.Recent(0)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, want := range []string{"m2", "m1", "m0"} {
		if got[i].MutationID != want {
			t.Errorf("entry %d = %s, want %s", i, got[i].MutationID, want)
		}
	}
}

func TestRingEviction(t *testing.T) {
	trail := NewTrail(4)
	for i := 0; i < 10; i++ {
		trail.Record(Entry{MutationID: fmt.Sprintf("m%d", i)})
	}

	if trail.Len() != 4 {
		t.Fatalf("Len = %d, want 4", trail.Len())
	}
	got := trail.Recent(0)
	for i, want := range []string{"m9", "m8", "m7", "m6"} {
		if got[i].MutationID != want {
			t.Errorf("entry %d = %s, want %s", i, got[i].MutationID, want)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	trail := NewTrail(10)
	for i := 0; i < 5; i++ {
		trail.Record(Entry{MutationID: fmt.Sprintf("m%d", i)})
	}

	got := trail.Recent(2)
	if len(got) != 2 || got[0].MutationID != "m4" || got[1].MutationID != "m3" {
		t.Errorf("Recent(2) = %+v", got)
	}
}

func TestRecordStampsTime(t *testing.T) {
	trail := NewTrail(2)
	trail.Record(Entry{MutationID: "m0"})
	if trail.Recent(1)[0].At.IsZero() {
		t.Error("Record should stamp a zero At")
	}
}
