// Package authz defines capability-based authorization for the workflow engine.
//
// The engine never interprets role names. The authorization collaborator (JWT
// middleware in this deployment) resolves whatever roles it knows about into a
// set of capability booleans on an Actor, and services check only those.
package authz

import (
	id "civreg/pkg/domain"
)

// Capability is a single permission an actor may hold.
type Capability string

const (
	// CapAdvanceRegistration permits moving a citizen forward through
	// verification stages.
	CapAdvanceRegistration Capability = "advance_registration"

	// CapFinalizeRegistration permits the terminal approve/reject decision on
	// a registration.
	CapFinalizeRegistration Capability = "finalize_registration"

	// CapApproveDocument permits signing and stamping a document request.
	CapApproveDocument Capability = "approve_document"

	// CapRejectDocument permits rejecting a document request.
	CapRejectDocument Capability = "reject_document"

	// CapViewAudit permits reading the audit trail.
	CapViewAudit Capability = "view_audit"
)

// ActorKind classifies who is acting.
type ActorKind string

const (
	ActorCitizen ActorKind = "citizen"
	ActorOfficer ActorKind = "officer"
	ActorSystem  ActorKind = "system"
)

// Actor is the authenticated principal performing an operation, carrying the
// capabilities the authorization collaborator granted it.
type Actor struct {
	ID           id.ActorID
	Kind         ActorKind
	capabilities map[Capability]bool
}

// NewActor builds an actor with the given capabilities.
func NewActor(actorID id.ActorID, kind ActorKind, caps ...Capability) Actor {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return Actor{ID: actorID, Kind: kind, capabilities: set}
}

// SystemActor is used by internal processes (reconciliation, automatic stage
// advancement on submit) and holds every capability.
func SystemActor(actorID id.ActorID) Actor {
	return NewActor(actorID, ActorSystem,
		CapAdvanceRegistration,
		CapFinalizeRegistration,
		CapApproveDocument,
		CapRejectDocument,
		CapViewAudit,
	)
}

// HasCapability reports whether the actor holds the capability.
func (a Actor) HasCapability(c Capability) bool {
	return a.capabilities[c]
}

// Capabilities returns the actor's capability set in unspecified order.
func (a Actor) Capabilities() []Capability {
	out := make([]Capability, 0, len(a.capabilities))
	for c := range a.capabilities {
		out = append(out, c)
	}
	return out
}

// ParseCapability validates a capability string from an external source
// (JWT claim, config). Unknown strings are dropped by the caller.
func ParseCapability(s string) (Capability, bool) {
	switch Capability(s) {
	case CapAdvanceRegistration, CapFinalizeRegistration,
		CapApproveDocument, CapRejectDocument, CapViewAudit:
		return Capability(s), true
	}
	return "", false
}
