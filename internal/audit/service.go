package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mssola/useragent"

	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/requestcontext"
)

// Store is the append-only persistence contract for the trail.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
	ListByActor(ctx context.Context, actorID id.ActorID) ([]Entry, error)
}

// Publisher fans entries out to an external sink (Kafka). Best-effort: the
// store remains the system of record.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// Recorder writes audit entries. A failed append is handed to the retry inbox
// (consumed by worker.Worker) and surfaced to the caller as ErrUnavailable;
// the caller decides whether the business operation stands (it does, per the
// workflow-progress-over-audit-completeness trade-off).
type Recorder struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	retry     chan<- Entry
}

// NewRecorder builds a Recorder. publisher and retry may be nil; logger must
// not be.
func NewRecorder(store Store, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecorderOption configures optional recorder collaborators.
type RecorderOption func(*Recorder)

// WithPublisher attaches an external sink.
func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

// WithRetryInbox attaches the channel the retry worker drains.
func WithRetryInbox(inbox chan<- Entry) RecorderOption {
	return func(r *Recorder) { r.retry = inbox }
}

// Record enriches the entry with request metadata and appends it to the trail.
// Returns sentinel.ErrUnavailable (wrapped) when the append fails; the entry
// has then been queued for asynchronous retry if an inbox is configured.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = requestcontext.Now(ctx)
	}
	if entry.Metadata.IPAddress == "" {
		entry.Metadata.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.Metadata.UserAgent == "" {
		entry.Metadata.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.Metadata.Client == "" {
		entry.Metadata.Client = normalizeAgent(entry.Metadata.UserAgent)
	}
	if entry.Metadata.RequestID == "" {
		entry.Metadata.RequestID = requestcontext.RequestID(ctx)
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "audit append failed",
			"action", string(entry.Action),
			"entity_type", string(entry.EntityType),
			"entity_id", entry.EntityID,
			"error", err.Error(),
		)
		if r.retry != nil {
			select {
			case r.retry <- entry:
			default:
				r.logger.ErrorContext(ctx, "audit retry inbox full, entry dropped",
					"entry_id", entry.ID.String())
			}
		}
		return fmt.Errorf("append audit entry: %w", sentinel.ErrUnavailable)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, entry); err != nil {
			// Fan-out is best-effort; the store holds the entry.
			r.logger.WarnContext(ctx, "audit publish failed",
				"entry_id", entry.ID.String(),
				"error", err.Error(),
			)
		}
	}
	return nil
}

// ListByEntity returns the trail for one entity in append order.
func (r *Recorder) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error) {
	return r.store.ListByEntity(ctx, entityType, entityID)
}

// ListByActor returns every entry recorded for an actor in append order.
func (r *Recorder) ListByActor(ctx context.Context, actorID id.ActorID) ([]Entry, error) {
	return r.store.ListByActor(ctx, actorID)
}

// normalizeAgent collapses a raw agent string into "Browser version (OS)".
func normalizeAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s (%s)", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}
