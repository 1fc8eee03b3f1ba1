// Package audit captures the immutable trail of every state transition and
// privileged action. Entries are append-only: no update or delete operation
// exists anywhere in this package or its stores.
package audit

import (
	"time"

	"civreg/internal/authz"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
)

// ActionKind names what happened. Values are stable; the trail is queryable
// by action across releases.
type ActionKind string

const (
	ActionRegistrationSubmitted ActionKind = "registration_submitted"
	ActionRegistrationAdvanced  ActionKind = "registration_advanced"
	ActionRegistrationApproved  ActionKind = "registration_approved"
	ActionRegistrationRejected  ActionKind = "registration_rejected"
	ActionIdentityVerified      ActionKind = "identity_verified"
	ActionDocumentRequested     ActionKind = "document_requested"
	ActionDocumentApproved      ActionKind = "document_approved"
	ActionDocumentRejected      ActionKind = "document_rejected"
)

// EntityType names the aggregate a trail entry belongs to.
type EntityType string

const (
	EntityCitizen         EntityType = "citizen"
	EntityDocumentRequest EntityType = "document_request"
)

// ParseEntityType validates an entity type string from an external source.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityCitizen, EntityDocumentRequest:
		return EntityType(s), nil
	}
	return "", derrors.Newf(derrors.CodeValidation, "unknown entity type: %s", s)
}

// Metadata carries the request context an entry was recorded under.
type Metadata struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Client is the normalized "Browser version (OS)" form of UserAgent,
	// derived by the recorder so trail consumers don't re-parse agents.
	Client    string `json:"client,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Entry is one immutable audit record. Before/After hold value snapshots of
// the fields the transition changed (status at minimum); for document
// approvals After also carries the stored artifact reference, never raw image
// bytes.
type Entry struct {
	ID         id.AuditEntryID `json:"id"`
	Action     ActionKind      `json:"action"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	ActorID    id.ActorID      `json:"actor_id"`
	ActorKind  authz.ActorKind `json:"actor_kind"`
	Before     map[string]any  `json:"before,omitempty"`
	After      map[string]any  `json:"after,omitempty"`
	Metadata   Metadata        `json:"metadata"`
	RecordedAt time.Time       `json:"recorded_at"`
}
