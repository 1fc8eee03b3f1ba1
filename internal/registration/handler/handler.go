// Package handler wires registration endpoints to the registration service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg/internal/authz"
	"civreg/internal/platform/middleware"
	"civreg/internal/registration/models"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

// Service defines the registration operations the transport exposes.
type Service interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Citizen, error)
	VerifyIdentity(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error)
	Advance(ctx context.Context, citizenID id.CitizenID, target models.RegistrationStatus, actor authz.Actor) (*models.Citizen, error)
	Approve(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error)
	Reject(ctx context.Context, citizenID id.CitizenID, reason string, actor authz.Actor) (*models.Citizen, error)
	GetCitizen(ctx context.Context, citizenID id.CitizenID) (*models.Citizen, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the citizen-facing submit endpoint on public and the
// officer endpoints on staff (which carries the auth middleware).
func (h *Handler) Register(public, staff chi.Router) {
	public.Post("/registrations", h.HandleSubmit)
	public.Get("/registrations/{citizenID}", h.HandleGet)

	staff.Post("/registrations/{citizenID}/verify", h.HandleVerify)
	staff.Post("/registrations/{citizenID}/advance", h.HandleAdvance)
	staff.Post("/registrations/{citizenID}/approve", h.HandleApprove)
	staff.Post("/registrations/{citizenID}/reject", h.HandleReject)
}

// SubmitRequest is the registration submission payload.
type SubmitRequest struct {
	NationalID       string `json:"national_id"`
	FirstName        string `json:"first_name"`
	MiddleName       string `json:"middle_name,omitempty"`
	LastName         string `json:"last_name"`
	DateOfBirth      string `json:"date_of_birth"`
	Gender           string `json:"gender"`
	MaritalStatus    string `json:"marital_status,omitempty"`
	EmploymentStatus string `json:"employment_status"`
	Nationality      string `json:"nationality,omitempty"`
	Address          string `json:"address"`
}

// CitizenResponse wraps the citizen with an optional warning field for
// committed transitions whose audit entry is pending retry.
type CitizenResponse struct {
	Citizen *models.Citizen `json:"citizen"`
	Warning string          `json:"warning,omitempty"`
}

// HandleSubmit handles POST /registrations.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}

	citizen, err := h.service.Submit(ctx, models.Submission{
		NationalID:       req.NationalID,
		FirstName:        req.FirstName,
		MiddleName:       req.MiddleName,
		LastName:         req.LastName,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		MaritalStatus:    req.MaritalStatus,
		EmploymentStatus: req.EmploymentStatus,
		Nationality:      req.Nationality,
		Address:          req.Address,
	})
	if err != nil && !transitionStands(err) {
		h.logger.ErrorContext(ctx, "registration submit failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration submitted",
		"request_id", requestcontext.RequestID(ctx),
		"citizen_id", citizen.ID.String(),
		"status", string(citizen.Status),
	)
	writeCitizen(w, http.StatusCreated, citizen, err)
}

// HandleGet handles GET /registrations/{citizenID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	citizenID, err := id.ParseCitizenID(chi.URLParam(r, "citizenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	citizen, err := h.service.GetCitizen(r.Context(), citizenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeCitizen(w, http.StatusOK, citizen, nil)
}

// HandleVerify handles POST /registrations/{citizenID}/verify, the retry path
// for a registry match deferred by an outage.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "identity verification", func(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
		return h.service.VerifyIdentity(ctx, citizenID, actor)
	})
}

// AdvanceRequest names the stage to advance to.
type AdvanceRequest struct {
	Target string `json:"target"`
}

// HandleAdvance handles POST /registrations/{citizenID}/advance.
func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[AdvanceRequest](w, r, h.logger)
	if !ok {
		return
	}
	target, err := models.ParseRegistrationStatus(req.Target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.transition(w, r, "advance", func(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
		return h.service.Advance(ctx, citizenID, target, actor)
	})
}

// HandleApprove handles POST /registrations/{citizenID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", func(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
		return h.service.Approve(ctx, citizenID, actor)
	})
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject handles POST /registrations/{citizenID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[RejectRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.transition(w, r, "reject", func(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error) {
		return h.service.Reject(ctx, citizenID, req.Reason, actor)
	})
}

// transition factors the shared shape of officer-driven status changes:
// resolve actor and citizen ID, run the operation, log, and translate the
// audit-gap warning.
func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(ctx context.Context, citizenID id.CitizenID, actor authz.Actor) (*models.Citizen, error),
) {
	ctx := r.Context()
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthorized, "authentication required"))
		return
	}
	citizenID, err := id.ParseCitizenID(chi.URLParam(r, "citizenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	citizen, err := op(ctx, citizenID, actor)
	if err != nil && !transitionStands(err) {
		h.logger.WarnContext(ctx, "registration transition refused",
			"request_id", requestcontext.RequestID(ctx),
			"operation", name,
			"citizen_id", citizenID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration transition applied",
		"request_id", requestcontext.RequestID(ctx),
		"operation", name,
		"citizen_id", citizen.ID.String(),
		"status", string(citizen.Status),
	)
	writeCitizen(w, http.StatusOK, citizen, err)
}

// transitionStands reports whether the error is warning-class: the state
// change committed and the response should carry the entity.
func transitionStands(err error) bool {
	return derrors.HasCode(err, derrors.CodeAuditGap) ||
		derrors.HasCode(err, derrors.CodeUnavailable)
}

func writeCitizen(w http.ResponseWriter, status int, citizen *models.Citizen, err error) {
	resp := CitizenResponse{Citizen: citizen}
	if err != nil {
		resp.Warning = string(derrors.CodeOf(err))
	}
	httputil.WriteJSON(w, status, resp)
}
