package user

// IntentKind identifies the type of a mutation intent.
type IntentKind string

const (
	IntentCreate       IntentKind = "create"
	IntentUpdate       IntentKind = "update"
	IntentDelete       IntentKind = "delete"
	IntentToggleStatus IntentKind = "toggle_status"
	IntentBulkDelete   IntentKind = "bulk_delete"
)

// Intent is a discriminated union of the mutations the console can request.
// Exactly the fields needed for the given Kind are populated:
//
//   - IntentCreate: Create
//   - IntentUpdate: ID, Patch
//   - IntentDelete: ID
//   - IntentToggleStatus: ID, NextActive
//   - IntentBulkDelete: IDs
type Intent struct {
	Kind       IntentKind
	ID         string
	IDs        []string
	Create     *CreatePayload
	Patch      *Patch
	NextActive bool
}

// TargetIDs returns the record IDs affected by the intent.
// For IntentCreate the target is the synthetic ID, which the store assigns,
// so the result is empty.
func (in Intent) TargetIDs() []string {
	switch in.Kind {
	case IntentBulkDelete:
		return in.IDs
	case IntentCreate:
		return nil
	default:
		return []string{in.ID}
	}
}

// NewCreate builds a create intent.
func NewCreate(payload CreatePayload) Intent {
	return Intent{Kind: IntentCreate, Create: &payload}
}

// NewUpdate builds an update intent for one record.
func NewUpdate(id string, patch Patch) Intent {
	return Intent{Kind: IntentUpdate, ID: id, Patch: &patch}
}

// NewDelete builds a delete intent for one record.
func NewDelete(id string) Intent {
	return Intent{Kind: IntentDelete, ID: id}
}

// NewToggleStatus builds an activate/deactivate intent.
func NewToggleStatus(id string, nextActive bool) Intent {
	return Intent{Kind: IntentToggleStatus, ID: id, NextActive: nextActive}
}

// NewBulkDelete builds a bulk delete intent.
func NewBulkDelete(ids []string) Intent {
	return Intent{Kind: IntentBulkDelete, IDs: ids}
}
