// Package service implements the document issuance workflow: an approved
// citizen requests a document, an officer decides, and approval composes a
// signed and stamped artifact.
//
// Ordering invariant: the artifact is composed and stored before the request
// flips to APPROVED. A composition failure aborts the approval and the request
// stays PENDING; a lost race against a concurrent decision can orphan a stored
// artifact, which is accepted.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"civreg/internal/audit"
	"civreg/internal/authz"
	"civreg/internal/document/artifact"
	docmetrics "civreg/internal/document/metrics"
	"civreg/internal/document/models"
	rmodels "civreg/internal/registration/models"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/requestcontext"
)

// Store is the persistence contract for document requests. Execute holds a
// per-request lock for the whole validate-then-mutate sequence.
type Store interface {
	Create(ctx context.Context, r *models.Request) error
	FindByID(ctx context.Context, requestID id.DocumentRequestID) (*models.Request, error)
	ListByCitizen(ctx context.Context, citizenID id.CitizenID) ([]models.Request, error)
	Execute(ctx context.Context, requestID id.DocumentRequestID,
		validate func(*models.Request) error,
		mutate func(*models.Request)) (*models.Request, error)
}

// CitizenReader resolves citizens for eligibility checks and template data.
type CitizenReader interface {
	GetCitizen(ctx context.Context, citizenID id.CitizenID) (*rmodels.Citizen, error)
}

// Recorder appends to the audit trail.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Composer renders and stores the final document artifact.
type Composer interface {
	Compose(ctx context.Context, req *models.Request, citizen *rmodels.Citizen,
		signatureRef, stampRef string, issuedAt time.Time) (string, error)
}

// Service owns the document request lifecycle.
type Service struct {
	requests  Store
	citizens  CitizenReader
	artifacts artifact.Store
	composer  Composer
	recorder  Recorder
	logger    *slog.Logger
	metrics   *docmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

// WithMetrics attaches the document metrics set.
func WithMetrics(m *docmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	requests Store,
	citizens CitizenReader,
	artifacts artifact.Store,
	composer Composer,
	recorder Recorder,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		requests:  requests,
		citizens:  citizens,
		artifacts: artifacts,
		composer:  composer,
		recorder:  recorder,
		logger:    logger,
		tracer:    otel.Tracer("civreg/document"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a PENDING document request for an APPROVED citizen. Any
// other registration status fails validation.
func (s *Service) Request(ctx context.Context, citizenID id.CitizenID, docType models.DocumentType, purpose string) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, "document.Request")
	defer span.End()

	citizen, err := s.citizens.GetCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	if citizen.Status != rmodels.StatusApproved {
		return nil, derrors.Newf(derrors.CodeValidation,
			"citizen registration is %s, documents require APPROVED", citizen.Status)
	}

	now := requestcontext.Now(ctx)
	req, err := models.NewRequest(id.NewDocumentRequestID(), citizenID, docType, purpose, now)
	if err != nil {
		return nil, err
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, wrapStoreErr(err)
	}

	if s.metrics != nil {
		s.metrics.Requested.WithLabelValues(string(docType)).Inc()
	}

	requester := authz.NewActor(id.ActorID(citizenID), authz.ActorCitizen)
	gapErr := s.record(ctx, audit.Entry{
		Action:     audit.ActionDocumentRequested,
		EntityType: audit.EntityDocumentRequest,
		EntityID:   req.ID.String(),
		ActorID:    requester.ID,
		ActorKind:  requester.Kind,
		After:      requestSnapshot(req),
	})
	return req, gapErr
}

// Approve decides a PENDING request, stores the provided signature and stamp
// images, composes the artifact, and flips the request to APPROVED. Missing
// images fail validation with no state change; a second approval fails with
// CodeAlreadyFinalized.
func (s *Service) Approve(ctx context.Context, requestID id.DocumentRequestID, signature, stamp []byte, actor authz.Actor) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, "document.Approve")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveApprove(time.Now())
	}

	if err := requireCapability(actor, authz.CapApproveDocument); err != nil {
		return nil, err
	}
	if len(signature) == 0 {
		return nil, derrors.New(derrors.CodeValidation, "signature image is required")
	}
	if len(stamp) == 0 {
		return nil, derrors.New(derrors.CodeValidation, "stamp image is required")
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if err := req.CanApprove(); err != nil {
		return nil, err
	}
	citizen, err := s.citizens.GetCitizen(ctx, req.CitizenID)
	if err != nil {
		return nil, err
	}

	signatureRef, err := s.artifacts.Put(ctx, artifact.KindSignature, signature)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeStorage, "failed to store signature image")
	}
	stampRef, err := s.artifacts.Put(ctx, artifact.KindStamp, stamp)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeStorage, "failed to store stamp image")
	}

	now := requestcontext.Now(ctx)
	artifactRef, err := s.composer.Compose(ctx, req, citizen, signatureRef, stampRef, now)
	if err != nil {
		return nil, err
	}

	var before map[string]any
	updated, err := s.requests.Execute(ctx, requestID,
		func(r *models.Request) error {
			before = requestSnapshot(r)
			return r.CanApprove()
		},
		func(r *models.Request) { r.ApplyApproval(signatureRef, stampRef, artifactRef, actor.ID, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if s.metrics != nil {
		s.metrics.Approved.WithLabelValues(string(updated.Type)).Inc()
	}

	gapErr := s.record(ctx, audit.Entry{
		Action:     audit.ActionDocumentApproved,
		EntityType: audit.EntityDocumentRequest,
		EntityID:   updated.ID.String(),
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Before:     before,
		After:      requestSnapshot(updated),
	})
	return updated, gapErr
}

// Reject decides a PENDING request with a mandatory reason.
func (s *Service) Reject(ctx context.Context, requestID id.DocumentRequestID, reason string, actor authz.Actor) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, "document.Reject")
	defer span.End()

	if err := requireCapability(actor, authz.CapRejectDocument); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, derrors.New(derrors.CodeValidation, "rejection reason is required")
	}

	now := requestcontext.Now(ctx)
	var before map[string]any
	updated, err := s.requests.Execute(ctx, requestID,
		func(r *models.Request) error {
			before = requestSnapshot(r)
			return r.CanReject()
		},
		func(r *models.Request) { r.ApplyRejection(reason, actor.ID, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if s.metrics != nil {
		s.metrics.Rejected.WithLabelValues(string(updated.Type)).Inc()
	}

	gapErr := s.record(ctx, audit.Entry{
		Action:     audit.ActionDocumentRejected,
		EntityType: audit.EntityDocumentRequest,
		EntityID:   updated.ID.String(),
		ActorID:    actor.ID,
		ActorKind:  actor.Kind,
		Before:     before,
		After:      requestSnapshot(updated),
	})
	return updated, gapErr
}

// GetRequest returns one document request.
func (s *Service) GetRequest(ctx context.Context, requestID id.DocumentRequestID) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return req, nil
}

// ListByCitizen returns a citizen's document requests.
func (s *Service) ListByCitizen(ctx context.Context, citizenID id.CitizenID) ([]models.Request, error) {
	requests, err := s.requests.ListByCitizen(ctx, citizenID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return requests, nil
}

// GetArtifact returns the composed document for an approved request.
func (s *Service) GetArtifact(ctx context.Context, requestID id.DocumentRequestID) ([]byte, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ArtifactRef == "" {
		return nil, derrors.New(derrors.CodeNotFound, "document has no composed artifact")
	}
	data, err := s.artifacts.Get(ctx, req.ArtifactRef)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeStorage, "failed to load composed document")
	}
	return data, nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) error {
	if err := s.recorder.Record(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditGaps.Inc()
		}
		return derrors.Wrap(err, derrors.CodeAuditGap, "decision committed but audit entry is pending retry")
	}
	return nil
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
		return derrors.New(derrors.CodeNotFound, "document request not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return derrors.Wrap(err, derrors.CodeStorage, "document store unavailable")
	default:
		return derrors.Wrap(err, derrors.CodeInternal, "document store failure")
	}
}

func requestSnapshot(r *models.Request) map[string]any {
	snap := map[string]any{"status": string(r.Status)}
	if r.RejectionReason != "" {
		snap["rejection_reason"] = r.RejectionReason
	}
	if r.ArtifactRef != "" {
		snap["artifact_ref"] = r.ArtifactRef
	}
	return snap
}
