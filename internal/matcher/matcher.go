// Package matcher compares a citizen's claimed identity against the national
// registry record and produces a match decision with a confidence score.
//
// Match is a pure function over (record, claim, config): no hidden state, so
// the returned score and the decision it feeds are both auditable and
// deterministic across repeated calls.
package matcher

import (
	"fmt"
	"strings"

	"civreg/internal/registry"
	derrors "civreg/pkg/domain-errors"
)

// Claim is the applicant-submitted identity the registry record is checked
// against.
type Claim struct {
	NationalID  string
	FirstName   string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
}

// Result is the match outcome. Score is in [0, 100]; Details records the
// per-field comparison so officers can see exactly which fields diverged.
type Result struct {
	IsValid bool
	Score   int
	Details map[string]string
}

// Config carries the scoring policy. Weights and the acceptance threshold are
// policy decisions, configured externally and never hard-coded; weights must
// sum to 100.
type Config struct {
	FirstNameWeight   int
	LastNameWeight    int
	DateOfBirthWeight int
	Threshold         int
}

// DefaultConfig is the development fallback: names weighted more heavily than
// the date of birth, threshold 80. Production overrides via environment.
func DefaultConfig() Config {
	return Config{
		FirstNameWeight:   35,
		LastNameWeight:    35,
		DateOfBirthWeight: 30,
		Threshold:         80,
	}
}

// Validate enforces the weight and threshold invariants at config load.
func (c Config) Validate() error {
	sum := c.FirstNameWeight + c.LastNameWeight + c.DateOfBirthWeight
	if sum != 100 {
		return derrors.Newf(derrors.CodeValidation, "match weights must sum to 100, got %d", sum)
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return derrors.Newf(derrors.CodeValidation, "match threshold must be in [0,100], got %d", c.Threshold)
	}
	return nil
}

const (
	fieldMatch    = "match"
	fieldMismatch = "mismatch"
)

// NotFound is the result for a national ID absent from the registry.
func NotFound() Result {
	return Result{
		IsValid: false,
		Score:   0,
		Details: map[string]string{"reason": "not found"},
	}
}

// Match scores the claim against the registry record. Name fields compare
// case-insensitively, the date of birth exactly. No single field is
// authoritative: a partial mismatch only lowers the score, and validity is
// decided by the configured threshold alone.
func Match(record registry.Record, claim Claim, cfg Config) Result {
	details := make(map[string]string, 3)
	score := 0

	if equalFold(record.FirstName, claim.FirstName) {
		score += cfg.FirstNameWeight
		details["first_name"] = fieldMatch
	} else {
		details["first_name"] = fieldMismatch
	}

	if equalFold(record.LastName, claim.LastName) {
		score += cfg.LastNameWeight
		details["last_name"] = fieldMatch
	} else {
		details["last_name"] = fieldMismatch
	}

	if strings.TrimSpace(record.DateOfBirth) == strings.TrimSpace(claim.DateOfBirth) {
		score += cfg.DateOfBirthWeight
		details["date_of_birth"] = fieldMatch
	} else {
		details["date_of_birth"] = fieldMismatch
	}

	details["score"] = fmt.Sprintf("%d", score)

	return Result{
		IsValid: score >= cfg.Threshold,
		Score:   score,
		Details: details,
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
