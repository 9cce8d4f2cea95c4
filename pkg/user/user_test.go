package user

import (
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	login := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := Record{
		ID:          "u1",
		Email:       "a@example.com",
		Name:        "Ada",
		Active:      true,
		Roles:       []string{"admin", "auditor"},
		CreatedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		LastLoginAt: &login,
	}

	clone := orig.Clone()
	clone.Roles[0] = "viewer"
	*clone.LastLoginAt = clone.LastLoginAt.Add(time.Hour)

	if orig.Roles[0] != "admin" {
		t.Errorf("mutating clone roles changed original: %v", orig.Roles)
	}
	if !orig.LastLoginAt.Equal(login) {
		t.Errorf("mutating clone timestamp changed original: %v", orig.LastLoginAt)
	}
}

func TestEqual(t *testing.T) {
	base := Record{ID: "u1", Email: "a@example.com", Active: true, Roles: []string{"admin"}}

	t.Run("equal to clone", func(t *testing.T) {
		if !base.Equal(base.Clone()) {
			t.Error("record should equal its clone")
		}
	})

	t.Run("differs on roles order", func(t *testing.T) {
		other := base.Clone()
		other.Roles = []string{"auditor"}
		if base.Equal(other) {
			t.Error("records with different roles should not be equal")
		}
	})

	t.Run("differs on nil last login", func(t *testing.T) {
		other := base.Clone()
		now := time.Now()
		other.LastLoginAt = &now
		if base.Equal(other) {
			t.Error("nil vs non-nil LastLoginAt should not be equal")
		}
	})
}

func TestPatchApply(t *testing.T) {
	rec := Record{ID: "u1", Email: "old@example.com", Name: "Old", Verified: false}

	email := "new@example.com"
	verified := true
	patched := Patch{Email: &email, Verified: &verified}.Apply(rec)

	if patched.Email != "new@example.com" {
		t.Errorf("Email = %q, want new@example.com", patched.Email)
	}
	if !patched.Verified {
		t.Error("Verified should be true")
	}
	if patched.Name != "Old" {
		t.Errorf("untouched field changed: Name = %q", patched.Name)
	}
	if rec.Email != "old@example.com" {
		t.Error("Apply mutated the input record")
	}
}

func TestIsTempID(t *testing.T) {
	if !IsTempID("tmp-123") {
		t.Error("tmp-123 should be a temp ID")
	}
	if IsTempID("usr-123") {
		t.Error("usr-123 should not be a temp ID")
	}
}

func TestIntentTargetIDs(t *testing.T) {
	cases := []struct {
		name   string
		intent Intent
		want   int
	}{
		{"delete targets one", NewDelete("u1"), 1},
		{"bulk targets all", NewBulkDelete([]string{"a", "b", "c"}), 3},
		{"create targets none", NewCreate(CreatePayload{Email: "x@example.com"}), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(tc.intent.TargetIDs()); got != tc.want {
				t.Errorf("TargetIDs() len = %d, want %d", got, tc.want)
			}
		})
	}
}
