package user

import (
	"strings"
	"time"
)

// Record represents one user as known to the console.
//
// The ID is assigned by the remote user service and is immutable once a record
// is confirmed. Records created optimistically carry a synthetic temporary ID
// (see IsTempID) until the service returns the authoritative one.
type Record struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	Verified    bool       `json:"verified"`
	Approved    bool       `json:"approved"`
	Roles       []string   `json:"roles"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// TempIDPrefix marks synthetic IDs assigned to optimistically created records.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id is a synthetic temporary ID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Clone returns a deep copy of the record.
// Roles and LastLoginAt are copied so the clone shares no memory with r.
func (r Record) Clone() Record {
	out := r
	if r.Roles != nil {
		out.Roles = make([]string, len(r.Roles))
		copy(out.Roles, r.Roles)
	}
	if r.LastLoginAt != nil {
		t := *r.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

// Equal reports whether two records are deep-equal, field by field.
func (r Record) Equal(other Record) bool {
	if r.ID != other.ID || r.Email != other.Email || r.Name != other.Name ||
		r.Active != other.Active || r.Verified != other.Verified ||
		r.Approved != other.Approved || !r.CreatedAt.Equal(other.CreatedAt) {
		return false
	}
	if len(r.Roles) != len(other.Roles) {
		return false
	}
	for i := range r.Roles {
		if r.Roles[i] != other.Roles[i] {
			return false
		}
	}
	if (r.LastLoginAt == nil) != (other.LastLoginAt == nil) {
		return false
	}
	if r.LastLoginAt != nil && !r.LastLoginAt.Equal(*other.LastLoginAt) {
		return false
	}
	return true
}

// CreatePayload is the minimal payload needed to create a user.
type CreatePayload struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles,omitempty"`
	Active   bool     `json:"active"`
	Approved bool     `json:"approved"`
}

// Patch is a sparse update: nil fields are left untouched.
type Patch struct {
	Email    *string   `json:"email,omitempty"`
	Name     *string   `json:"name,omitempty"`
	Roles    *[]string `json:"roles,omitempty"`
	Verified *bool     `json:"verified,omitempty"`
	Approved *bool     `json:"approved,omitempty"`
}

// Apply returns a copy of rec with the non-nil patch fields applied.
func (p Patch) Apply(rec Record) Record {
	out := rec.Clone()
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Roles != nil {
		out.Roles = make([]string, len(*p.Roles))
		copy(out.Roles, *p.Roles)
	}
	if p.Verified != nil {
		out.Verified = *p.Verified
	}
	if p.Approved != nil {
		out.Approved = *p.Approved
	}
	return out
}
