// Package rbac provides a read-only role and permission lookup for the
// console. The backend computes authorization; this package only resolves
// the role identifiers it hands us.
//
// Historic payloads name roles inconsistently: canonical IDs, display names
// in arbitrary case, and legacy aliases all occur. That fallback matching
// happens exactly once, at the data-ingestion boundary (Normalize), so the
// rest of the console only ever sees canonical role IDs.
package rbac

import (
	"sort"
	"strings"
)

// Role is one canonical role definition.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Registry resolves role identifiers to canonical roles.
// Build it once at startup; lookups are read-only afterwards.
type Registry struct {
	byID    map[string]*Role
	byMatch map[string]*Role // lowercase name/alias -> role
}

// NewRegistry builds a registry from canonical role definitions.
// Later definitions with a duplicate ID are ignored.
func NewRegistry(roles []Role) *Registry {
	r := &Registry{
		byID:    make(map[string]*Role, len(roles)),
		byMatch: make(map[string]*Role),
	}
	for i := range roles {
		role := roles[i]
		if _, dup := r.byID[role.ID]; dup {
			continue
		}
		r.byID[role.ID] = &role
		r.byMatch[strings.ToLower(role.ID)] = &role
		r.byMatch[strings.ToLower(role.Name)] = &role
		for _, alias := range role.Aliases {
			r.byMatch[strings.ToLower(alias)] = &role
		}
	}
	return r
}

// Defaults returns the console's built-in role set.
func Defaults() *Registry {
	return NewRegistry([]Role{
		{
			ID:          "admin",
			Name:        "Administrator",
			Permissions: []string{"users:read", "users:write", "users:delete", "roles:assign", "audit:read", "export:run"},
			Aliases:     []string{"administrator", "superuser"},
		},
		{
			ID:          "moderator",
			Name:        "Moderator",
			Permissions: []string{"users:read", "users:write", "audit:read"},
			Aliases:     []string{"mod"},
		},
		{
			ID:          "auditor",
			Name:        "Auditor",
			Permissions: []string{"users:read", "audit:read"},
		},
		{
			ID:          "viewer",
			Name:        "Viewer",
			Permissions: []string{"users:read"},
			Aliases:     []string{"readonly", "read-only"},
		},
	})
}

// Get returns the role with the given canonical ID.
func (r *Registry) Get(id string) (Role, bool) {
	role, ok := r.byID[id]
	if !ok {
		return Role{}, false
	}
	return *role, true
}

// Normalize resolves a raw role identifier — canonical ID, display name in
// any case, or legacy alias — to the canonical role ID.
func (r *Registry) Normalize(raw string) (string, bool) {
	role, ok := r.byMatch[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", false
	}
	return role.ID, true
}

// NormalizeAll resolves a list of raw identifiers, dropping the unknown
// ones and deduplicating. Order follows the first occurrence.
func (r *Registry) NormalizeAll(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		id, ok := r.Normalize(item)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// HasPermission reports whether any of the canonical role IDs grants perm.
func (r *Registry) HasPermission(roleIDs []string, perm string) bool {
	for _, id := range roleIDs {
		role, ok := r.byID[id]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// Permissions returns the union of permissions for the given role IDs,
// sorted for stable output.
func (r *Registry) Permissions(roleIDs []string) []string {
	set := make(map[string]bool)
	for _, id := range roleIDs {
		if role, ok := r.byID[id]; ok {
			for _, p := range role.Permissions {
				set[p] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
