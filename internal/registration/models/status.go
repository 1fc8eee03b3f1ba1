package models

import derrors "civreg/pkg/domain-errors"

// RegistrationStatus is the citizen's stage in the onboarding pipeline.
type RegistrationStatus string

const (
	StatusPending               RegistrationStatus = "PENDING"
	StatusNIDAVerification      RegistrationStatus = "NIDA_VERIFICATION"
	StatusBiometricVerification RegistrationStatus = "BIOMETRIC_VERIFICATION"
	StatusDocumentVerification  RegistrationStatus = "DOCUMENT_VERIFICATION"
	StatusApproved              RegistrationStatus = "APPROVED"
	StatusRejected              RegistrationStatus = "REJECTED"
)

// registrationTransitions is the single authoritative transition table.
// Forward edges only; REJECTED is reachable from every non-terminal state;
// APPROVED and REJECTED have no outgoing edges.
var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	StatusPending:               {StatusNIDAVerification, StatusRejected},
	StatusNIDAVerification:      {StatusBiometricVerification, StatusRejected},
	StatusBiometricVerification: {StatusDocumentVerification, StatusRejected},
	StatusDocumentVerification:  {StatusApproved, StatusRejected},
	StatusApproved:              {},
	StatusRejected:              {},
}

// CanTransitionTo consults the transition table. This is the one place
// transition legality is decided.
func (s RegistrationStatus) CanTransitionTo(target RegistrationStatus) bool {
	for _, allowed := range registrationTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s RegistrationStatus) IsTerminal() bool {
	return len(registrationTransitions[s]) == 0
}

// ParseRegistrationStatus validates a status string from an external source.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	status := RegistrationStatus(s)
	if _, ok := registrationTransitions[status]; !ok {
		return "", derrors.Newf(derrors.CodeValidation, "unknown registration status: %s", s)
	}
	return status, nil
}
