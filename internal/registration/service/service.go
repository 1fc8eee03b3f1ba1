// Package service implements the registration state machine: staged identity
// verification from submission through registry match, biometric and document
// checks, to a terminal approval or rejection.
//
// Locking discipline: stores serialize the read-check-write sequence per
// citizen; the audit write always happens after the store transaction has
// committed and no lock is held across it. An audit failure therefore never
// rolls back a transition; it surfaces as a CodeAuditGap error while the
// entry is retried in the background.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"civreg/internal/audit"
	"civreg/internal/authz"
	"civreg/internal/matcher"
	regmetrics "civreg/internal/registration/metrics"
	"civreg/internal/registration/models"
	"civreg/internal/registry"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/requestcontext"
)

// Store is the persistence contract the state machine drives. Execute must
// hold a per-entity lock (mutex or SELECT FOR UPDATE) for the whole
// validate-then-mutate sequence.
type Store interface {
	Create(ctx context.Context, c *models.Citizen) error
	FindByID(ctx context.Context, citizenID id.CitizenID) (*models.Citizen, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.Citizen, error)
	Execute(ctx context.Context, citizenID id.CitizenID,
		validate func(*models.Citizen) error,
		mutate func(*models.Citizen)) (*models.Citizen, error)
}

// Recorder appends to the audit trail.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service owns registration transitions. All status changes to a citizen go
// through here.
type Service struct {
	citizens Store
	registry registry.Client
	recorder Recorder
	matchCfg matcher.Config
	logger   *slog.Logger
	metrics  *regmetrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

// WithMetrics attaches the registration metrics set.
func WithMetrics(m *regmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	citizens Store,
	registryClient registry.Client,
	recorder Recorder,
	matchCfg matcher.Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		citizens: citizens,
		registry: registryClient,
		recorder: recorder,
		matchCfg: matchCfg,
		logger:   logger,
		tracer:   otel.Tracer("civreg/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the registration data, creates the citizen in PENDING,
// immediately advances to NIDA_VERIFICATION, and runs the registry match
// synchronously.
//
// A registry outage does not fail the submission: the citizen stays in
// NIDA_VERIFICATION with no verification data and the returned error carries
// CodeUnavailable so the caller retries via VerifyIdentity. A negative match
// is data, not an error.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (*models.Citizen, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Submit")
	defer span.End()
	start := time.Now()
	defer s.observeSubmit(start)

	now := requestcontext.Now(ctx)
	citizen, err := models.NewCitizen(id.NewCitizenID(), sub, now)
	if err != nil {
		return nil, err
	}

	if err := s.citizens.Create(ctx, citizen); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, derrors.New(derrors.CodeValidation, "national identity number is already registered")
		}
		return nil, derrors.Wrap(err, derrors.CodeStorage, "failed to store registration")
	}

	submitActor := citizenActor(citizen.ID)
	gapErr := s.record(ctx, audit.Entry{
		Action:     audit.ActionRegistrationSubmitted,
		EntityType: audit.EntityCitizen,
		EntityID:   citizen.ID.String(),
		ActorID:    submitActor.ID,
		ActorKind:  submitActor.Kind,
		After:      statusSnapshot(citizen),
	})

	citizen, err = s.transition(ctx, citizen.ID, audit.ActionRegistrationAdvanced, submitActor,
		func(c *models.Citizen) error { return c.CanAdvance(models.StatusNIDAVerification) },
		func(c *models.Citizen) { c.ApplyAdvance(models.StatusNIDAVerification, now) },
	)
	if err != nil && !derrors.HasCode(err, derrors.CodeAuditGap) {
		return nil, err
	}
	gapErr = firstError(gapErr, err)

	if s.metrics != nil {
		s.metrics.Submitted.Inc()
	}

	citizen, verifyErr := s.verify(ctx, citizen)
	if verifyErr != nil && !derrors.HasCode(verifyErr, derrors.CodeAuditGap) {
		// Registry outage: the registration stands, the match is retried later.
		s.logger.WarnContext(ctx, "registry match deferred",
			"citizen_id", citizen.ID.String(),
			"error", verifyErr.Error(),
		)
		return citizen, verifyErr
	}
	return citizen, firstError(gapErr, verifyErr)
}

// VerifyIdentity re-runs the registry match for a citizen sitting in
// NIDA_VERIFICATION. This is the caller-driven retry path after an outage.
func (s *Service) VerifyIdentity(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
	ctx, span := s.tracer.Start(ctx, "registration.VerifyIdentity")
	defer span.End()

	if err := requireCapability(actor, authz.CapAdvanceRegistration); err != nil {
		return nil, err
	}
	citizen, err := s.citizens.FindByID(ctx, citizenID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := citizen.CanRecordVerification(); err != nil {
		return nil, err
	}
	return s.verify(ctx, citizen)
}

// verify looks the citizen up in the identity registry, scores the match, and
// records the outcome on the citizen and in the audit trail.
func (s *Service) verify(ctx context.Context, citizen *models.Citizen) (*models.Citizen, error) {
	claim := matcher.Claim{
		NationalID:  citizen.NationalID,
		FirstName:   citizen.FirstName,
		LastName:    citizen.LastName,
		DateOfBirth: citizen.DateOfBirth,
	}

	var result matcher.Result
	record, err := s.registry.Lookup(ctx, citizen.NationalID)
	switch {
	case err == nil:
		result = matcher.Match(record, claim, s.matchCfg)
	case errors.Is(err, sentinel.ErrNotFound):
		result = matcher.NotFound()
	default:
		return citizen, derrors.Wrap(err, derrors.CodeUnavailable, "identity registry unreachable")
	}

	if s.metrics != nil {
		s.metrics.MatchScore.Observe(float64(result.Score))
	}

	now := requestcontext.Now(ctx)
	data := models.VerificationData{
		Score:      result.Score,
		IsValid:    result.IsValid,
		Details:    result.Details,
		VerifiedAt: now,
	}

	before := verificationSnapshot(citizen)
	updated, err := s.citizens.Execute(ctx, citizen.ID,
		func(c *models.Citizen) error { return c.CanRecordVerification() },
		func(c *models.Citizen) { c.ApplyVerification(data, now) },
	)
	if err != nil {
		return citizen, wrapStoreErr(err)
	}

	gapErr := s.record(ctx, audit.Entry{
		Action:     audit.ActionIdentityVerified,
		EntityType: audit.EntityCitizen,
		EntityID:   updated.ID.String(),
		ActorID:    systemActorID(),
		ActorKind:  authz.ActorSystem,
		Before:     before,
		After:      verificationSnapshot(updated),
	})
	return updated, gapErr
}

// Advance moves a citizen one stage forward. Officers only; legality is
// decided by the transition table inside the store's critical section.
func (s *Service) Advance(ctx context.Context, citizenID id.CitizenID, target models.RegistrationStatus, actor authz.Actor) (*models.Citizen, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Advance")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveAdvance(time.Now())
	}

	if err := requireCapability(actor, authz.CapAdvanceRegistration); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return s.transition(ctx, citizenID, audit.ActionRegistrationAdvanced, actor,
		func(c *models.Citizen) error { return c.CanAdvance(target) },
		func(c *models.Citizen) { c.ApplyAdvance(target, now) },
	)
}

// Approve finalizes a registration from DOCUMENT_VERIFICATION. Terminal and
// idempotence-guarded: a second call fails with CodeAlreadyFinalized.
func (s *Service) Approve(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Approve")
	defer span.End()

	if err := requireCapability(actor, authz.CapFinalizeRegistration); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	citizen, err := s.transition(ctx, citizenID, audit.ActionRegistrationApproved, actor,
		func(c *models.Citizen) error { return c.CanApprove() },
		func(c *models.Citizen) { c.ApplyApproval(now) },
	)
	if err == nil || derrors.HasCode(err, derrors.CodeAuditGap) {
		if s.metrics != nil {
			s.metrics.Approved.Inc()
		}
	}
	return citizen, err
}

// Reject finalizes a registration from any non-terminal state with a
// mandatory reason. Rejection is a terminal status, not a deletion.
func (s *Service) Reject(ctx context.Context, citizenID id.CitizenID, reason string, actor authz.Actor) (*models.Citizen, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Reject")
	defer span.End()

	if err := requireCapability(actor, authz.CapFinalizeRegistration); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, derrors.New(derrors.CodeValidation, "rejection reason is required")
	}
	now := requestcontext.Now(ctx)
	citizen, err := s.transition(ctx, citizenID, audit.ActionRegistrationRejected, actor,
		func(c *models.Citizen) error { return c.CanReject() },
		func(c *models.Citizen) { c.ApplyRejection(reason, now) },
	)
	if err == nil || derrors.HasCode(err, derrors.CodeAuditGap) {
		if s.metrics != nil {
			s.metrics.Rejected.Inc()
		}
	}
	return citizen, err
}

// GetCitizen returns one citizen record.
func (s *Service) GetCitizen(ctx context.Context, citizenID id.CitizenID) (*models.Citizen, error) {
	citizen, err := s.citizens.FindByID(ctx, citizenID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return citizen, nil
}

// transition runs one guarded status change and writes exactly one audit
// entry for it. Returns the updated citizen; a CodeAuditGap error means the
// transition committed but the trail entry is pending retry.
func (s *Service) transition(
	ctx context.Context,
	citizenID id.CitizenID,
	action audit.ActionKind,
	actor authz.Actor,
	validate func(*models.Citizen) error,
	mutate func(*models.Citizen),
) (*models.Citizen, error) {
	var before map[string]any
	updated, err := s.citizens.Execute(ctx, citizenID,
		func(c *models.Citizen) error {
			before = statusSnapshot(c)
			return validate(c)
		},
		mutate,
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	gapErr := s.record(ctx, audit.Entry{
		Action:     action,
		EntityType: audit.EntityCitizen,
		EntityID:   updated.ID.String(),
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Before:     before,
		After:      statusSnapshot(updated),
	})
	return updated, gapErr
}

// record appends one audit entry, translating a failed append into the
// warning-class audit-gap error. The entry is already queued for background
// retry by the recorder at that point.
func (s *Service) record(ctx context.Context, entry audit.Entry) error {
	if err := s.recorder.Record(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditGaps.Inc()
		}
		return derrors.Wrap(err, derrors.CodeAuditGap, "transition committed but audit entry is pending retry")
	}
	return nil
}

func (s *Service) observeSubmit(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSubmit(start)
	}
}

func requireCapability(actor authz.Actor, cap authz.Capability) error {
	if !actor.HasCapability(cap) {
		return derrors.Newf(derrors.CodeUnauthorized, "actor lacks %s capability", cap)
	}
	return nil
}

func wrapStoreErr(err error) error {
	var coded *derrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return derrors.New(derrors.CodeNotFound, "citizen not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return derrors.Wrap(err, derrors.CodeStorage, "citizen store unavailable")
	default:
		return derrors.Wrap(err, derrors.CodeInternal, "citizen store failure")
	}
}

func statusSnapshot(c *models.Citizen) map[string]any {
	snap := map[string]any{"status": string(c.Status)}
	if c.RejectionReason != "" {
		snap["rejection_reason"] = c.RejectionReason
	}
	return snap
}

func verificationSnapshot(c *models.Citizen) map[string]any {
	snap := map[string]any{"identity_verified": c.IdentityVerified}
	if c.Verification != nil {
		snap["match_score"] = c.Verification.Score
		snap["match_valid"] = c.Verification.IsValid
	}
	return snap
}

func citizenActor(citizenID id.CitizenID) authz.Actor {
	return authz.NewActor(id.ActorID(uuid.UUID(citizenID)), authz.ActorCitizen)
}

func systemActorID() id.ActorID {
	return id.ActorID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("civreg/system")))
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
