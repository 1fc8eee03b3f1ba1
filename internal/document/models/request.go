// Package models defines the document request aggregate and its closed
// status/type enumerations. Illegal values are unrepresentable past the parse
// boundary rather than runtime-checked throughout.
package models

import (
	"strings"
	"time"

	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
)

// DocumentType is the fixed catalog of issuable documents.
type DocumentType string

const (
	TypeIntroductionLetter   DocumentType = "INTRODUCTION_LETTER"
	TypeResidenceCertificate DocumentType = "RESIDENCE_CERTIFICATE"
	TypeSponsorshipLetter    DocumentType = "SPONSORSHIP_LETTER"
	TypeGoodConductReferral  DocumentType = "GOOD_CONDUCT_REFERRAL"
)

var documentTypes = map[DocumentType]bool{
	TypeIntroductionLetter:   true,
	TypeResidenceCertificate: true,
	TypeSponsorshipLetter:    true,
	TypeGoodConductReferral:  true,
}

// ParseDocumentType validates a type string against the catalog.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	if !documentTypes[t] {
		return "", derrors.Newf(derrors.CodeValidation, "unknown document type: %s", s)
	}
	return t, nil
}

// DocumentTypes lists the catalog in stable order.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		TypeIntroductionLetter,
		TypeResidenceCertificate,
		TypeSponsorshipLetter,
		TypeGoodConductReferral,
	}
}

// DocumentStatus is the lifecycle stage of one document request.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentApproved DocumentStatus = "APPROVED"
	DocumentRejected DocumentStatus = "REJECTED"
)

// documentTransitions is the authoritative transition table: PENDING fans out
// to the two terminal states, which have no outgoing edges.
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentPending:  {DocumentApproved, DocumentRejected},
	DocumentApproved: {},
	DocumentRejected: {},
}

func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	for _, allowed := range documentTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s DocumentStatus) IsTerminal() bool {
	return len(documentTransitions[s]) == 0
}

// Request is the aggregate root for one document request.
//
// Invariants:
//   - CitizenID references an APPROVED citizen (checked at request time)
//   - Type is in the fixed catalog, Purpose is non-empty
//   - APPROVED requires SignatureRef, StampRef, and ArtifactRef all present
//   - Terminal once APPROVED or REJECTED: no further edits
type Request struct {
	ID              id.DocumentRequestID `json:"id"`
	CitizenID       id.CitizenID         `json:"citizen_id"`
	Type            DocumentType         `json:"type"`
	Purpose         string               `json:"purpose"`
	Status          DocumentStatus       `json:"status"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	SignatureRef    string               `json:"signature_ref,omitempty"`
	StampRef        string               `json:"stamp_ref,omitempty"`
	ArtifactRef     string               `json:"artifact_ref,omitempty"`
	DecidedBy       id.ActorID           `json:"decided_by,omitempty"`
	DecidedAt       *time.Time           `json:"decided_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// NewRequest validates and constructs a request in PENDING.
func NewRequest(requestID id.DocumentRequestID, citizenID id.CitizenID, docType DocumentType, purpose string, now time.Time) (*Request, error) {
	if _, err := ParseDocumentType(string(docType)); err != nil {
		return nil, err
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, derrors.New(derrors.CodeValidation, "purpose is required")
	}
	return &Request{
		ID:        requestID,
		CitizenID: citizenID,
		Type:      docType,
		Purpose:   purpose,
		Status:    DocumentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanApprove checks the terminal approval edge.
func (r *Request) CanApprove() error {
	if r.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "document request already %s", r.Status)
	}
	return nil
}

// ApplyApproval transitions to APPROVED with the stored artifact references.
// Call CanApprove first; the service guarantees all three refs are present.
func (r *Request) ApplyApproval(signatureRef, stampRef, artifactRef string, actor id.ActorID, now time.Time) {
	r.Status = DocumentApproved
	r.SignatureRef = signatureRef
	r.StampRef = stampRef
	r.ArtifactRef = artifactRef
	r.DecidedBy = actor
	t := now
	r.DecidedAt = &t
	r.UpdatedAt = now
}

// CanReject checks the terminal rejection edge.
func (r *Request) CanReject() error {
	if r.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "document request already %s", r.Status)
	}
	return nil
}

// ApplyRejection transitions to REJECTED with the officer's reason.
func (r *Request) ApplyRejection(reason string, actor id.ActorID, now time.Time) {
	r.Status = DocumentRejected
	r.RejectionReason = reason
	r.DecidedBy = actor
	t := now
	r.DecidedAt = &t
	r.UpdatedAt = now
}

// Clone returns a copy so stores can hand out mutable snapshots.
func (r *Request) Clone() *Request {
	out := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}
