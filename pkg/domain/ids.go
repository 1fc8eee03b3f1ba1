// Package domain holds typed identifiers shared across modules.
//
// IDs are distinct uuid-backed types so a CitizenID can never be passed where
// a DocumentRequestID is expected. Parse functions enforce the invariant that
// IDs are valid, non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"encoding/json"

	"github.com/google/uuid"

	derrors "civreg/pkg/domain-errors"
)

// CitizenID identifies a citizen record.
type CitizenID uuid.UUID

// DocumentRequestID identifies a document request.
type DocumentRequestID uuid.UUID

// ActorID identifies the actor (citizen, officer, or system principal)
// performing an operation.
type ActorID uuid.UUID

// AuditEntryID identifies an audit trail entry.
type AuditEntryID uuid.UUID

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, derrors.New(derrors.CodeValidation, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, derrors.Wrap(err, derrors.CodeValidation, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, derrors.New(derrors.CodeValidation, "id cannot be the nil uuid")
	}
	return u, nil
}

// ParseCitizenID validates and returns a CitizenID.
func ParseCitizenID(s string) (CitizenID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return CitizenID{}, err
	}
	return CitizenID(u), nil
}

// ParseDocumentRequestID validates and returns a DocumentRequestID.
func ParseDocumentRequestID(s string) (DocumentRequestID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DocumentRequestID{}, err
	}
	return DocumentRequestID(u), nil
}

// ParseActorID validates and returns an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ActorID{}, err
	}
	return ActorID(u), nil
}

func (id CitizenID) String() string         { return uuid.UUID(id).String() }
func (id DocumentRequestID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string           { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string      { return uuid.UUID(id).String() }

func (id CitizenID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DocumentRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }

// IDs marshal as their canonical string form, not raw uuid bytes.

func (id CitizenID) MarshalJSON() ([]byte, error)         { return marshalID(uuid.UUID(id)) }
func (id DocumentRequestID) MarshalJSON() ([]byte, error) { return marshalID(uuid.UUID(id)) }
func (id ActorID) MarshalJSON() ([]byte, error)           { return marshalID(uuid.UUID(id)) }
func (id AuditEntryID) MarshalJSON() ([]byte, error)      { return marshalID(uuid.UUID(id)) }

func (id *CitizenID) UnmarshalJSON(data []byte) error {
	return unmarshalID(data, (*uuid.UUID)(id))
}

func (id *DocumentRequestID) UnmarshalJSON(data []byte) error {
	return unmarshalID(data, (*uuid.UUID)(id))
}

func (id *ActorID) UnmarshalJSON(data []byte) error {
	return unmarshalID(data, (*uuid.UUID)(id))
}

func (id *AuditEntryID) UnmarshalJSON(data []byte) error {
	return unmarshalID(data, (*uuid.UUID)(id))
}

func marshalID(u uuid.UUID) ([]byte, error) {
	return json.Marshal(u.String())
}

func unmarshalID(data []byte, out *uuid.UUID) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := parseUUID(s)
	if err != nil {
		return err
	}
	*out = u
	return nil
}

// NewCitizenID mints a fresh CitizenID.
func NewCitizenID() CitizenID { return CitizenID(uuid.New()) }

// NewDocumentRequestID mints a fresh DocumentRequestID.
func NewDocumentRequestID() DocumentRequestID { return DocumentRequestID(uuid.New()) }

// NewAuditEntryID mints a fresh AuditEntryID.
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }
