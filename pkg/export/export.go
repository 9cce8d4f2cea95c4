// Package export produces GDPR subject-access archives: everything the
// console knows about one user, marshalled to JSON and uploaded to object
// storage for handover.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/userdeck/userdeck/pkg/audit"
	"github.com/userdeck/userdeck/pkg/rbac"
	"github.com/userdeck/userdeck/pkg/user"
)

// Archive is the exported document for one subject.
type Archive struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Subject     user.Record   `json:"subject"`
	Permissions []string      `json:"permissions"`
	Audit       []audit.Entry `json:"audit,omitempty"`
}

// RecordSource fetches the authoritative record for a subject.
// *api.Client satisfies it.
type RecordSource interface {
	Get(ctx context.Context, id string) (user.Record, error)
}

// ObjectStore persists finished archives. S3Store is the production
// implementation.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (url string, err error)
}

// Exporter assembles and stores subject-access archives.
type Exporter struct {
	source  RecordSource
	trail   *audit.Trail
	roles   *rbac.Registry
	objects ObjectStore
	log     *slog.Logger
}

// New creates an Exporter. trail may be nil when no session audit exists.
func New(source RecordSource, objects ObjectStore, roles *rbac.Registry, trail *audit.Trail, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{
		source:  source,
		trail:   trail,
		roles:   roles,
		objects: objects,
		log:     log,
	}
}

// Result describes a stored archive.
type Result struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// Export fetches the subject's record, gathers the session audit entries
// touching it, and uploads the archive. The object key embeds the subject
// ID and generation time.
func (e *Exporter) Export(ctx context.Context, subjectID string) (Result, error) {
	rec, err := e.source.Get(ctx, subjectID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch subject %s: %w", subjectID, err)
	}

	arch := Archive{
		GeneratedAt: time.Now().UTC(),
		Subject:     rec,
		Permissions: e.roles.Permissions(e.roles.NormalizeAll(rec.Roles)),
		Audit:       e.subjectAudit(subjectID),
	}

	body, err := json.MarshalIndent(arch, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode archive: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s.json", subjectID, arch.GeneratedAt.Format("20060102T150405Z"))
	url, err := e.objects.Put(ctx, key, "application/json", body)
	if err != nil {
		return Result{}, fmt.Errorf("store archive: %w", err)
	}

	e.log.Info("subject export stored", "subject", subjectID, "key", key, "bytes", len(body))
	return Result{Key: key, URL: url}, nil
}

// subjectAudit collects session audit entries that touched the subject.
func (e *Exporter) subjectAudit(subjectID string) []audit.Entry {
	if e.trail == nil {
		return nil
	}
	var out []audit.Entry
	for _, entry := range e.trail.Recent(0) {
		for _, id := range entry.TargetIDs {
			if id == subjectID {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}
