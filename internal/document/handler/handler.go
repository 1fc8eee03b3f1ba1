// Package handler wires document issuance endpoints to the document service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg/internal/authz"
	"civreg/internal/document/models"
	"civreg/internal/platform/middleware"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

// Service defines the document operations the transport exposes.
type Service interface {
	Request(ctx context.Context, citizenID id.CitizenID, docType models.DocumentType, purpose string) (*models.Request, error)
	Approve(ctx context.Context, requestID id.DocumentRequestID, signature, stamp []byte, actor authz.Actor) (*models.Request, error)
	Reject(ctx context.Context, requestID id.DocumentRequestID, reason string, actor authz.Actor) (*models.Request, error)
	GetRequest(ctx context.Context, requestID id.DocumentRequestID) (*models.Request, error)
	ListByCitizen(ctx context.Context, citizenID id.CitizenID) ([]models.Request, error)
	GetArtifact(ctx context.Context, requestID id.DocumentRequestID) ([]byte, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the citizen-facing endpoints on public and the decision
// endpoints on staff.
func (h *Handler) Register(public, staff chi.Router) {
	public.Post("/documents", h.HandleRequest)
	public.Get("/documents/{requestID}", h.HandleGet)
	public.Get("/documents/{requestID}/artifact", h.HandleArtifact)
	public.Get("/registrations/{citizenID}/documents", h.HandleList)

	staff.Post("/documents/{requestID}/approve", h.HandleApprove)
	staff.Post("/documents/{requestID}/reject", h.HandleReject)
}

// CreateRequest is the document request payload.
type CreateRequest struct {
	CitizenID string `json:"citizen_id"`
	Type      string `json:"type"`
	Purpose   string `json:"purpose"`
}

// RequestResponse wraps a request with an optional audit-gap warning.
type RequestResponse struct {
	Request *models.Request `json:"request"`
	Warning string          `json:"warning,omitempty"`
}

// HandleRequest handles POST /documents.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}
	citizenID, err := id.ParseCitizenID(req.CitizenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docType, err := models.ParseDocumentType(req.Type)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Request(ctx, citizenID, docType, req.Purpose)
	if err != nil && !derrors.HasCode(err, derrors.CodeAuditGap) {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document requested",
		"request_id", requestcontext.RequestID(ctx),
		"document_request_id", created.ID.String(),
		"doc_type", string(created.Type),
	)
	writeRequest(w, http.StatusCreated, created, err)
}

// HandleGet handles GET /documents/{requestID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDocumentRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeRequest(w, http.StatusOK, req, nil)
}

// HandleArtifact handles GET /documents/{requestID}/artifact, serving the
// composed document body.
func (h *Handler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDocumentRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := h.service.GetArtifact(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleList handles GET /registrations/{citizenID}/documents.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	citizenID, err := id.ParseCitizenID(chi.URLParam(r, "citizenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	requests, err := h.service.ListByCitizen(r.Context(), citizenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// ApproveRequest carries the officer's signature and stamp images, base64 in
// transit per encoding/json []byte handling.
type ApproveRequest struct {
	Signature []byte `json:"signature"`
	Stamp     []byte `json:"stamp"`
}

// HandleApprove handles POST /documents/{requestID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[ApproveRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.decide(w, r, "approve", func(ctx context.Context, requestID id.DocumentRequestID, actor authz.Actor) (*models.Request, error) {
		return h.service.Approve(ctx, requestID, req.Signature, req.Stamp, actor)
	})
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject handles POST /documents/{requestID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.decide(w, r, "reject", func(ctx context.Context, requestID id.DocumentRequestID, actor authz.Actor) (*models.Request, error) {
		return h.service.Reject(ctx, requestID, req.Reason, actor)
	})
}

func (h *Handler) decide(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(ctx context.Context, requestID id.DocumentRequestID, actor authz.Actor) (*models.Request, error),
) {
	ctx := r.Context()
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthorized, "authentication required"))
		return
	}
	requestID, err := id.ParseDocumentRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := op(ctx, requestID, actor)
	if err != nil && !derrors.HasCode(err, derrors.CodeAuditGap) {
		h.logger.WarnContext(ctx, "document decision refused",
			"request_id", requestcontext.RequestID(ctx),
			"operation", name,
			"document_request_id", requestID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document decision applied",
		"request_id", requestcontext.RequestID(ctx),
		"operation", name,
		"document_request_id", updated.ID.String(),
		"status", string(updated.Status),
	)
	writeRequest(w, http.StatusOK, updated, err)
}

func writeRequest(w http.ResponseWriter, status int, req *models.Request, err error) {
	resp := RequestResponse{Request: req}
	if err != nil {
		resp.Warning = string(derrors.CodeOf(err))
	}
	httputil.WriteJSON(w, status, resp)
}
