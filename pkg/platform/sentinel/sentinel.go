package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and registry clients return
// these (optionally wrapped) so services can translate them into coded domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a concurrent writer won the race (CAS/unique violation)
// - ErrInvalidState: entity in wrong state for the requested conditional write
// - ErrUnavailable: store or external registry temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
