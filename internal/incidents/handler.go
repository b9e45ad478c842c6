package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterServiceRoutes attaches the per-service incident routes to
// the /services/{serviceID} subtree.
func (h *Handler) RegisterServiceRoutes(r chi.Router) {
	r.Post("/incidents", h.Create)
	r.Get("/incidents", h.List)
}

// RegisterRoutes registers the /incidents/{incidentID} routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents/{incidentID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/updates", h.ListUpdates)
		r.Post("/updates", h.AddUpdate)
		r.Post("/resolve", h.Resolve)
	})
}

// CreateRequest represents the request body for opening an incident.
type CreateRequest struct {
	Title       string `json:"title" validate:"required,min=5,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Severity    string `json:"severity" validate:"required,oneof=low medium high critical"`
	Message     string `json:"message" validate:"omitempty,min=10,max=1000"`
}

// UpdateRequest represents the request body for editing an incident.
type UpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=5,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Severity    *string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Status      *string `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
}

// AddUpdateRequest represents the request body for a timeline entry.
type AddUpdateRequest struct {
	Status  string `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	Message string `json:"message" validate:"required,min=10,max=1000"`
}

// ResolveRequest represents the request body for resolving an incident.
type ResolveRequest struct {
	Message string `json:"message" validate:"omitempty,min=10,max=1000"`
}

// Create handles POST /services/{serviceID}/incidents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	incident, err := h.service.Create(r.Context(), actor, chi.URLParam(r, "serviceID"), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    domain.IncidentSeverity(req.Severity),
		Message:     req.Message,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// List handles GET /services/{serviceID}/incidents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	incidents, err := h.service.List(r.Context(), actor, chi.URLParam(r, "serviceID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// Get handles GET /incidents/{incidentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	incident, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "incidentID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Update handles PATCH /incidents/{incidentID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Severity != nil {
		severity := domain.IncidentSeverity(*req.Severity)
		input.Severity = &severity
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}

	actor := httputil.GetPrincipal(r.Context())
	incident, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "incidentID"), input)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Delete handles DELETE /incidents/{incidentID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "incidentID")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUpdates handles GET /incidents/{incidentID}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	updates, err := h.service.ListUpdates(r.Context(), actor, chi.URLParam(r, "incidentID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, updates)
}

// AddUpdate handles POST /incidents/{incidentID}/updates.
func (h *Handler) AddUpdate(w http.ResponseWriter, r *http.Request) {
	var req AddUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	actor := httputil.GetPrincipal(r.Context())
	update, err := h.service.AddUpdate(r.Context(), actor, chi.URLParam(r, "incidentID"), AddUpdateInput{
		Status:  domain.IncidentStatus(req.Status),
		Message: req.Message,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, update)
}

// Resolve handles POST /incidents/{incidentID}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	actor := httputil.GetPrincipal(r.Context())
	incident, err := h.service.Resolve(r.Context(), actor, chi.URLParam(r, "incidentID"), req.Message)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: catalog.ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: access.ErrNotAMember, Status: http.StatusForbidden},
	{Error: access.ErrInsufficientRole, Status: http.StatusForbidden},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrAlreadyResolved, Status: http.StatusConflict},
	{Error: ErrTooOldToDelete, Status: http.StatusConflict},
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

// handleReadError maps access denials on reads to not-found so that
// incident existence does not leak to non-members.
func (h *Handler) handleReadError(w http.ResponseWriter, r *http.Request, err error) {
	readMappings := append([]httputil.ErrorMapping{
		{Error: access.ErrNotAMember, Status: http.StatusNotFound, Message: "not found"},
	}, errorMappings...)
	httputil.HandleError(r.Context(), w, err, readMappings)
}
