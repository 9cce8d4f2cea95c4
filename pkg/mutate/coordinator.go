// Package mutate sequences user-initiated actions end-to-end: apply the
// optimistic change, call the remote user service, then confirm or roll
// back. Whatever the network does, the store always reaches a terminal
// state for each mutation.
//
// Every mutation moves through an explicit lifecycle:
//
//	Idle → Applying → InFlight → Confirmed | RolledBack
//
// Confirmed and RolledBack are terminal for that mutation ID; a fresh
// action on the same record starts a new one. Failures roll back exactly
// the records the failing intent touched, never unrelated pending ones.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/userdeck/userdeck/pkg/audit"
	"github.com/userdeck/userdeck/pkg/store"
	"github.com/userdeck/userdeck/pkg/toast"
	"github.com/userdeck/userdeck/pkg/user"
)

const tracerName = "userdeck.mutate"

// DefaultBulkDelay spaces sequential remote calls during bulk operations.
// Client-side rate limiting; there is no dedicated bulk endpoint.
const DefaultBulkDelay = 100 * time.Millisecond

// Phase is the coordinator-visible lifecycle state of one mutation.
type Phase int

const (
	Idle Phase = iota
	Applying
	InFlight
	Confirmed
	RolledBack
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Applying:
		return "applying"
	case InFlight:
		return "in_flight"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Remote is the slice of the user service the coordinator needs.
// *api.Client satisfies it.
type Remote interface {
	Create(ctx context.Context, payload user.CreatePayload) (user.Record, error)
	Update(ctx context.Context, id string, patch user.Patch) (user.Record, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (user.Record, error)
}

// BulkFailure is one failed record within a bulk operation.
type BulkFailure struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// Reason returns the failure message for serialization.
func (f BulkFailure) Reason() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// BulkResult reports a partial-failure-tolerant bulk operation: successes
// stay committed, failures are individually rolled back.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Coordinator orchestrates mutations against a store and a remote service.
type Coordinator struct {
	store   *store.Store
	remote  Remote
	toasts  *toast.Emitter
	trail   *audit.Trail
	metrics *Metrics
	log     *slog.Logger
	tracer  trace.Tracer

	bulkDelay time.Duration

	mu       sync.RWMutex
	phases   map[string]Phase
	terminal []string // mutation ids in terminal phases, oldest first
}

// phaseRetention bounds how many terminal phases are kept for Phase lookups
// before the oldest are forgotten.
const phaseRetention = 1024

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithBulkDelay sets the inter-request delay for bulk operations.
func WithBulkDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.bulkDelay = d
	}
}

// WithToasts attaches a toast emitter for mutation outcome notifications.
func WithToasts(e *toast.Emitter) Option {
	return func(c *Coordinator) {
		c.toasts = e
	}
}

// WithAuditTrail attaches an audit trail recording every resolved mutation.
func WithAuditTrail(t *audit.Trail) Option {
	return func(c *Coordinator) {
		c.trail = t
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the coordinator's logger. Default: slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// New creates a Coordinator over the given store and remote service.
func New(s *store.Store, remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     s,
		remote:    remote,
		bulkDelay: DefaultBulkDelay,
		log:       slog.Default(),
		tracer:    otel.Tracer(tracerName),
		phases:    make(map[string]Phase),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the lifecycle state of a mutation. Unknown IDs are Idle.
func (c *Coordinator) Phase(mutationID string) Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phases[mutationID]
}

func (c *Coordinator) setPhase(mutationID string, p Phase) {
	c.mu.Lock()
	c.phases[mutationID] = p
	if p == Confirmed || p == RolledBack {
		c.terminal = append(c.terminal, mutationID)
		if len(c.terminal) > phaseRetention {
			delete(c.phases, c.terminal[0])
			c.terminal = c.terminal[1:]
		}
	}
	c.mu.Unlock()
}

// CreateUser optimistically inserts a synthetic record, then creates the
// user remotely. On success the store reconciles the synthetic ID with the
// server-assigned one and the authoritative record is returned.
func (c *Coordinator) CreateUser(ctx context.Context, payload user.CreatePayload) (user.Record, error) {
	intent := user.NewCreate(payload)
	rec, err := c.runSingle(ctx, intent, func(ctx context.Context) (user.Record, bool, error) {
		rec, err := c.remote.Create(ctx, payload)
		return rec, true, err
	})
	return rec, err
}

// UpdateUser applies the patch optimistically, then persists it remotely.
func (c *Coordinator) UpdateUser(ctx context.Context, id string, patch user.Patch) (user.Record, error) {
	intent := user.NewUpdate(id, patch)
	return c.runSingle(ctx, intent, func(ctx context.Context) (user.Record, bool, error) {
		rec, err := c.remote.Update(ctx, c.store.ResolveID(id), patch)
		return rec, true, err
	})
}

// DeleteUser removes the record optimistically, then deletes it remotely.
func (c *Coordinator) DeleteUser(ctx context.Context, id string) error {
	intent := user.NewDelete(id)
	_, err := c.runSingle(ctx, intent, func(ctx context.Context) (user.Record, bool, error) {
		return user.Record{}, false, c.remote.Delete(ctx, c.store.ResolveID(id))
	})
	return err
}

// ToggleStatus flips the record's active flag optimistically, then calls the
// activate/deactivate endpoint.
func (c *Coordinator) ToggleStatus(ctx context.Context, id string, nextActive bool) (user.Record, error) {
	intent := user.NewToggleStatus(id, nextActive)
	return c.runSingle(ctx, intent, func(ctx context.Context) (user.Record, bool, error) {
		rec, err := c.remote.SetActive(ctx, c.store.ResolveID(id), nextActive)
		return rec, true, err
	})
}

// runSingle drives one single-record mutation through the lifecycle.
// call reports whether it produced an authoritative record.
func (c *Coordinator) runSingle(ctx context.Context, intent user.Intent, call func(context.Context) (user.Record, bool, error)) (user.Record, error) {
	ctx, span := c.tracer.Start(ctx, "mutation "+string(intent.Kind),
		trace.WithAttributes(attribute.String("mutation.kind", string(intent.Kind))),
	)
	defer span.End()

	start := time.Now()

	mutationID, err := c.store.ApplyOptimistic(intent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return user.Record{}, err
	}
	span.SetAttributes(attribute.String("mutation.id", mutationID))
	c.setPhase(mutationID, Applying)

	c.setPhase(mutationID, InFlight)
	c.metrics.callStarted()
	rec, hasRecord, callErr := call(ctx)
	c.metrics.callFinished()

	if callErr != nil {
		// The row reverts in the same pass that reports the error: rollback
		// happens before the caller sees callErr.
		c.store.Rollback(mutationID)
		c.setPhase(mutationID, RolledBack)
		c.metrics.resolved(string(intent.Kind), false, time.Since(start).Seconds())
		c.record(intent, mutationID, "rolled_back", callErr.Error())
		c.toasts.Error(fmt.Sprintf("%s failed: %v", intent.Kind, callErr))
		c.log.Warn("mutation rolled back",
			"kind", intent.Kind, "mutation_id", mutationID, "error", callErr)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return user.Record{}, callErr
	}

	if hasRecord {
		c.store.Confirm(mutationID, &rec)
	} else {
		c.store.Confirm(mutationID, nil)
	}
	c.setPhase(mutationID, Confirmed)
	c.metrics.resolved(string(intent.Kind), true, time.Since(start).Seconds())
	c.record(intent, mutationID, "confirmed", "")
	c.toasts.Success(fmt.Sprintf("%s succeeded", intent.Kind))
	c.log.Info("mutation confirmed", "kind", intent.Kind, "mutation_id", mutationID)
	span.SetStatus(codes.Ok, "")
	return rec, nil
}

// BulkDelete removes all ids optimistically at once, then issues the remote
// deletions sequentially with a fixed inter-request delay. Per-id failures
// are rolled back individually while successes stay committed; the batch
// never aborts on first failure. A cancelled context fails (and restores)
// the remaining ids.
func (c *Coordinator) BulkDelete(ctx context.Context, ids []string) (BulkResult, error) {
	ctx, span := c.tracer.Start(ctx, "mutation bulk_delete",
		trace.WithAttributes(attribute.Int("mutation.batch_size", len(ids))),
	)
	defer span.End()

	var result BulkResult
	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "")
		return result, nil
	}

	// The store collapses duplicate targets to one baseline; mirror that
	// here so a repeated id gets one remote call and one result entry.
	seen := make(map[string]bool, len(ids))
	deduped := ids[:0:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}
	ids = deduped

	start := time.Now()

	mutationID, err := c.store.ApplyOptimistic(user.NewBulkDelete(ids))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.String("mutation.id", mutationID))
	c.setPhase(mutationID, InFlight)

	for i, id := range ids {
		if i > 0 && c.bulkDelay > 0 {
			select {
			case <-time.After(c.bulkDelay):
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			c.store.ResolveOne(mutationID, id, false)
			result.Failed = append(result.Failed, BulkFailure{ID: id, Err: err})
			c.metrics.bulkItem(false)
			continue
		}

		c.metrics.callStarted()
		err := c.remote.Delete(ctx, c.store.ResolveID(id))
		c.metrics.callFinished()

		if err != nil {
			c.store.ResolveOne(mutationID, id, false)
			result.Failed = append(result.Failed, BulkFailure{ID: id, Err: err})
			c.metrics.bulkItem(false)
			c.log.Warn("bulk delete item failed", "id", id, "error", err)
			continue
		}
		c.store.ResolveOne(mutationID, id, true)
		result.Succeeded = append(result.Succeeded, id)
		c.metrics.bulkItem(true)
	}

	confirmed := len(result.Failed) == 0
	c.setPhase(mutationID, Confirmed)
	c.metrics.resolved(string(user.IntentBulkDelete), confirmed, time.Since(start).Seconds())

	outcome := "confirmed"
	detail := ""
	switch {
	case len(result.Succeeded) == 0:
		outcome = "rolled_back"
		c.toasts.Error(fmt.Sprintf("bulk delete failed for all %d users", len(result.Failed)))
	case len(result.Failed) > 0:
		outcome = "partial"
		detail = fmt.Sprintf("%d succeeded, %d failed", len(result.Succeeded), len(result.Failed))
		c.toasts.Warning(fmt.Sprintf("deleted %d users, %d failed", len(result.Succeeded), len(result.Failed)))
	default:
		c.toasts.Success(fmt.Sprintf("deleted %d users", len(result.Succeeded)))
	}
	c.record(user.NewBulkDelete(ids), mutationID, outcome, detail)

	span.SetAttributes(
		attribute.Int("mutation.succeeded", len(result.Succeeded)),
		attribute.Int("mutation.failed", len(result.Failed)),
	)
	span.SetStatus(codes.Ok, "")
	c.log.Info("bulk delete resolved",
		"mutation_id", mutationID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result, nil
}

// record writes one audit entry if a trail is attached.
func (c *Coordinator) record(intent user.Intent, mutationID, outcome, detail string) {
	if c.trail == nil {
		return
	}
	targets := intent.TargetIDs()
	c.trail.Record(audit.Entry{
		Kind:       intent.Kind,
		TargetIDs:  targets,
		MutationID: mutationID,
		Outcome:    outcome,
		Detail:     detail,
	})
}
