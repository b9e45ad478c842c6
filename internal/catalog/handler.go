package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers organization and team routes. All require
// authentication; role checks happen in the service layer.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orgs", func(r chi.Router) {
		r.Post("/", h.CreateOrganization)
		r.Get("/{orgID}", h.GetOrganization)
		r.Delete("/{orgID}", h.DeleteOrganization)
		r.Post("/{orgID}/teams", h.CreateTeam)
	})

	r.Route("/teams/{teamID}", func(r chi.Router) {
		r.Get("/", h.GetTeam)
		r.Delete("/", h.DeleteTeam)
		r.Get("/members", h.ListMemberships)
		r.Put("/members/{principalID}", h.UpsertMembership)
		r.Delete("/members/{principalID}", h.RemoveMembership)
		r.Post("/services", h.CreateService)
		r.Get("/services", h.ListServices)
	})
}

// RegisterServiceRoutes registers the catalog part of the
// /services/{serviceID} subtree. The incidents and maintenance modules
// attach their own routes to the same subtree.
func (h *Handler) RegisterServiceRoutes(r chi.Router) {
	r.Get("/", h.GetService)
	r.Patch("/", h.UpdateService)
	r.Delete("/", h.DeleteService)
	r.Put("/status", h.OverrideServiceStatus)
}

// CreateOrganizationRequest represents the request body for creating an organization.
type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
	Slug string `json:"slug" validate:"required,min=1,max=255"`
}

// CreateTeamRequest represents the request body for creating a team.
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
	Slug string `json:"slug" validate:"required,min=1,max=255"`
}

// UpsertMembershipRequest represents the request body for granting a role.
type UpsertMembershipRequest struct {
	Role string `json:"role" validate:"required,oneof=viewer member admin owner"`
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
	EntityType  string `json:"entity_type" validate:"omitempty,max=64"`
}

// UpdateServiceRequest represents the request body for updating service metadata.
type UpdateServiceRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	EntityType   *string `json:"entity_type" validate:"omitempty,max=64"`
	ActiveStatus *string `json:"active_status" validate:"omitempty,oneof=active inactive"`
}

// OverrideStatusRequest represents the request body for a manual status write.
type OverrideStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=operational degraded partial_outage major_outage"`
}

// CreateOrganization handles POST /orgs.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	org, err := h.service.CreateOrganization(r.Context(), actor, CreateOrganizationInput(req))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, org)
}

// GetOrganization handles GET /orgs/{orgID}.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	org, err := h.service.GetOrganization(r.Context(), actor, chi.URLParam(r, "orgID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, org)
}

// DeleteOrganization handles DELETE /orgs/{orgID}.
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	if err := h.service.DeleteOrganization(r.Context(), actor, chi.URLParam(r, "orgID")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateTeam handles POST /orgs/{orgID}/teams.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	team, err := h.service.CreateTeam(r.Context(), actor, chi.URLParam(r, "orgID"), CreateTeamInput(req))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, team)
}

// GetTeam handles GET /teams/{teamID}.
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	team, err := h.service.GetTeam(r.Context(), actor, chi.URLParam(r, "teamID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, team)
}

// DeleteTeam handles DELETE /teams/{teamID}.
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	if err := h.service.DeleteTeam(r.Context(), actor, chi.URLParam(r, "teamID")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMemberships handles GET /teams/{teamID}/members.
func (h *Handler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	memberships, err := h.service.ListMemberships(r.Context(), actor, chi.URLParam(r, "teamID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, memberships)
}

// UpsertMembership handles PUT /teams/{teamID}/members/{principalID}.
func (h *Handler) UpsertMembership(w http.ResponseWriter, r *http.Request) {
	var req UpsertMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	membership, err := h.service.UpsertMembership(r.Context(), actor,
		chi.URLParam(r, "teamID"), chi.URLParam(r, "principalID"), domain.Role(req.Role))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, membership)
}

// RemoveMembership handles DELETE /teams/{teamID}/members/{principalID}.
func (h *Handler) RemoveMembership(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	err := h.service.RemoveMembership(r.Context(), actor,
		chi.URLParam(r, "teamID"), chi.URLParam(r, "principalID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateService handles POST /teams/{teamID}/services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	service, err := h.service.CreateService(r.Context(), actor, chi.URLParam(r, "teamID"), CreateServiceInput(req))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// ListServices handles GET /teams/{teamID}/services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	services, err := h.service.ListServices(r.Context(), actor, chi.URLParam(r, "teamID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// GetService handles GET /services/{serviceID}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	service, err := h.service.GetService(r.Context(), actor, chi.URLParam(r, "serviceID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// UpdateService handles PATCH /services/{serviceID}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateServiceInput{
		Name:        req.Name,
		Description: req.Description,
		EntityType:  req.EntityType,
	}
	if req.ActiveStatus != nil {
		status := domain.ActiveStatus(*req.ActiveStatus)
		input.ActiveStatus = &status
	}

	actor := httputil.GetPrincipal(r.Context())
	service, err := h.service.UpdateService(r.Context(), actor, chi.URLParam(r, "serviceID"), input)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// DeleteService handles DELETE /services/{serviceID}.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	if err := h.service.DeleteService(r.Context(), actor, chi.URLParam(r, "serviceID")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// OverrideServiceStatus handles PUT /services/{serviceID}/status.
func (h *Handler) OverrideServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req OverrideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	service, err := h.service.OverrideServiceStatus(r.Context(), actor,
		chi.URLParam(r, "serviceID"), domain.ServiceStatus(req.Status))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrOrganizationNotFound, Status: http.StatusNotFound},
	{Error: ErrTeamNotFound, Status: http.StatusNotFound},
	{Error: ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: ErrMembershipNotFound, Status: http.StatusNotFound},
	{Error: access.ErrNotAMember, Status: http.StatusForbidden},
	{Error: access.ErrInsufficientRole, Status: http.StatusForbidden},
	{Error: ErrRoleExceedsGrantor, Status: http.StatusForbidden},
	{Error: ErrInvalidRole, Status: http.StatusBadRequest},
	{Error: ErrSlugTaken, Status: http.StatusConflict},
	{Error: ErrServiceNameTaken, Status: http.StatusConflict},
	{Error: ErrServiceHasOpenIncidents, Status: http.StatusConflict},
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

// handleReadError maps access denials on reads to not-found so that
// resource existence does not leak to non-members.
func (h *Handler) handleReadError(w http.ResponseWriter, r *http.Request, err error) {
	readMappings := append([]httputil.ErrorMapping{
		{Error: access.ErrNotAMember, Status: http.StatusNotFound, Message: "not found"},
	}, errorMappings...)
	httputil.HandleError(r.Context(), w, err, readMappings)
}
