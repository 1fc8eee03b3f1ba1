package models

import (
	"strings"
	"time"

	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
)

// VerificationData is the recorded outcome of an identity-registry match.
type VerificationData struct {
	Score      int               `json:"score"`
	IsValid    bool              `json:"is_valid"`
	Details    map[string]string `json:"details"`
	VerifiedAt time.Time         `json:"verified_at"`
}

// Citizen is the aggregate root for one registration.
//
// Invariants:
//   - NationalID is non-empty and unique across citizens (one registry record
//     is referenced by at most one citizen)
//   - Status transitions follow the registrationTransitions table only
//   - IdentityVerified flips true only when a registry match clears the
//     configured threshold; APPROVED requires IdentityVerified
//   - Rejection is terminal status, never deletion; RejectionReason is set
//     exactly when Status is REJECTED
type Citizen struct {
	ID               id.CitizenID       `json:"id"`
	NationalID       string             `json:"national_id"`
	FirstName        string             `json:"first_name"`
	MiddleName       string             `json:"middle_name,omitempty"`
	LastName         string             `json:"last_name"`
	DateOfBirth      string             `json:"date_of_birth"`
	Gender           string             `json:"gender"`
	MaritalStatus    string             `json:"marital_status,omitempty"`
	EmploymentStatus string             `json:"employment_status"`
	Nationality      string             `json:"nationality,omitempty"`
	Address          string             `json:"address"`
	Status           RegistrationStatus `json:"status"`
	IdentityVerified bool               `json:"identity_verified"`
	Verification     *VerificationData  `json:"verification,omitempty"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Submission carries the citizen-supplied registration data.
type Submission struct {
	NationalID       string
	FirstName        string
	MiddleName       string
	LastName         string
	DateOfBirth      string // YYYY-MM-DD
	Gender           string
	MaritalStatus    string
	EmploymentStatus string
	Nationality      string
	Address          string
}

// NewCitizen validates the submission and constructs a citizen in PENDING.
func NewCitizen(citizenID id.CitizenID, sub Submission, now time.Time) (*Citizen, error) {
	required := []struct {
		field, value string
	}{
		{"national_id", sub.NationalID},
		{"first_name", sub.FirstName},
		{"last_name", sub.LastName},
		{"date_of_birth", sub.DateOfBirth},
		{"gender", sub.Gender},
		{"address", sub.Address},
		{"employment_status", sub.EmploymentStatus},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, derrors.Newf(derrors.CodeValidation, "%s is required", r.field)
		}
	}
	if _, err := time.Parse("2006-01-02", sub.DateOfBirth); err != nil {
		return nil, derrors.New(derrors.CodeValidation, "date_of_birth must be YYYY-MM-DD")
	}

	return &Citizen{
		ID:               citizenID,
		NationalID:       strings.TrimSpace(sub.NationalID),
		FirstName:        strings.TrimSpace(sub.FirstName),
		MiddleName:       strings.TrimSpace(sub.MiddleName),
		LastName:         strings.TrimSpace(sub.LastName),
		DateOfBirth:      sub.DateOfBirth,
		Gender:           sub.Gender,
		MaritalStatus:    sub.MaritalStatus,
		EmploymentStatus: sub.EmploymentStatus,
		Nationality:      sub.Nationality,
		Address:          strings.TrimSpace(sub.Address),
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CanAdvance checks the forward edge to target. Terminal states report
// already_finalized so callers can distinguish "decided" from "wrong stage".
// Use with ApplyAdvance in store Execute callbacks.
func (c *Citizen) CanAdvance(target RegistrationStatus) error {
	if c.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "registration already %s", c.Status)
	}
	if target == StatusApproved || target == StatusRejected {
		return derrors.New(derrors.CodeInvalidTransition, "terminal states are reached via approve/reject, not advance")
	}
	if !c.Status.CanTransitionTo(target) {
		return derrors.Newf(derrors.CodeInvalidTransition, "cannot advance from %s to %s", c.Status, target)
	}
	return nil
}

// ApplyAdvance moves the citizen to target. Call CanAdvance first.
func (c *Citizen) ApplyAdvance(target RegistrationStatus, now time.Time) {
	c.Status = target
	c.UpdatedAt = now
}

// CanApprove checks the terminal approval edge: only DOCUMENT_VERIFICATION
// qualifies, and only with a verified identity behind it.
func (c *Citizen) CanApprove() error {
	if c.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "registration already %s", c.Status)
	}
	if !c.Status.CanTransitionTo(StatusApproved) {
		return derrors.Newf(derrors.CodeInvalidTransition, "cannot approve from %s", c.Status)
	}
	if !c.IdentityVerified {
		return derrors.New(derrors.CodeInvalidTransition, "identity has not been verified against the registry")
	}
	return nil
}

// ApplyApproval transitions to APPROVED. Call CanApprove first.
func (c *Citizen) ApplyApproval(now time.Time) {
	c.Status = StatusApproved
	c.UpdatedAt = now
}

// CanReject checks the rejection edge, legal from every non-terminal state.
func (c *Citizen) CanReject() error {
	if c.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "registration already %s", c.Status)
	}
	return nil
}

// ApplyRejection transitions to REJECTED with the officer's reason. Call
// CanReject first; the service validates the reason is non-empty.
func (c *Citizen) ApplyRejection(reason string, now time.Time) {
	c.Status = StatusRejected
	c.RejectionReason = reason
	c.UpdatedAt = now
}

// CanRecordVerification limits match recording to the matching stage.
func (c *Citizen) CanRecordVerification() error {
	if c.Status.IsTerminal() {
		return derrors.Newf(derrors.CodeAlreadyFinalized, "registration already %s", c.Status)
	}
	if c.Status != StatusNIDAVerification {
		return derrors.Newf(derrors.CodeInvalidTransition, "identity match runs in %s, not %s", StatusNIDAVerification, c.Status)
	}
	return nil
}

// ApplyVerification records the match outcome and the verified flag.
func (c *Citizen) ApplyVerification(data VerificationData, now time.Time) {
	d := data
	c.Verification = &d
	c.IdentityVerified = data.IsValid
	c.UpdatedAt = now
}

// Clone returns a deep copy so stores can hand out mutable snapshots.
func (c *Citizen) Clone() *Citizen {
	out := *c
	if c.Verification != nil {
		v := *c.Verification
		if c.Verification.Details != nil {
			v.Details = make(map[string]string, len(c.Verification.Details))
			for k, val := range c.Verification.Details {
				v.Details[k] = val
			}
		}
		out.Verification = &v
	}
	return &out
}
