package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the maintenance module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new maintenance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterServiceRoutes attaches the per-service maintenance routes to
// the /services/{serviceID} subtree.
func (h *Handler) RegisterServiceRoutes(r chi.Router) {
	r.Post("/maintenance", h.Create)
	r.Get("/maintenance", h.List)
}

// RegisterRoutes registers the /maintenance/{maintenanceID} routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/maintenance/{maintenanceID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Post("/start", h.Start)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.Cancel)
	})
}

// CreateRequest represents the request body for scheduling a window.
type CreateRequest struct {
	Title          string    `json:"title" validate:"required,min=5,max=200"`
	Description    string    `json:"description" validate:"max=2000"`
	ScheduledStart time.Time `json:"scheduled_start" validate:"required"`
	ScheduledEnd   time.Time `json:"scheduled_end" validate:"required"`
}

// UpdateRequest represents the request body for editing a scheduled window.
type UpdateRequest struct {
	Title          *string    `json:"title" validate:"omitempty,min=5,max=200"`
	Description    *string    `json:"description" validate:"omitempty,max=2000"`
	ScheduledStart *time.Time `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end"`
}

// Create handles POST /services/{serviceID}/maintenance.
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
	window, err := h.service.Create(r.Context(), actor, chi.URLParam(r, "serviceID"), CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, window)
}

// List handles GET /services/{serviceID}/maintenance.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	windows, err := h.service.List(r.Context(), actor, chi.URLParam(r, "serviceID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, windows)
}

// Get handles GET /maintenance/{maintenanceID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor := httputil.GetPrincipal(r.Context())

	window, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "maintenanceID"))
	if err != nil {
		h.handleReadError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, window)
}

// Update handles PATCH /maintenance/{maintenanceID}.
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

	actor := httputil.GetPrincipal(r.Context())
	window, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "maintenanceID"), UpdateInput{
		Title:          req.Title,
		Description:    req.Description,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, window)
}

// Start handles POST /maintenance/{maintenanceID}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Start)
}

// Complete handles POST /maintenance/{maintenanceID}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Complete)
}

// Cancel handles POST /maintenance/{maintenanceID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.doTransition(w, r, h.service.Cancel)
}

func (h *Handler) doTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor, windowID string) (*domain.Maintenance, error)) {
	actor := httputil.GetPrincipal(r.Context())

	window, err := fn(r.Context(), actor, chi.URLParam(r, "maintenanceID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, window)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrWindowNotFound, Status: http.StatusNotFound},
	{Error: catalog.ErrServiceNotFound, Status: http.StatusNotFound},
	{Error: access.ErrNotAMember, Status: http.StatusForbidden},
	{Error: access.ErrInsufficientRole, Status: http.StatusForbidden},
	{Error: ErrInvalidSchedule, Status: http.StatusBadRequest},
	{Error: ErrWindowOverlap, Status: http.StatusConflict},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrNotEditable, Status: http.StatusConflict},
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

// handleReadError maps access denials on reads to not-found so that
// window existence does not leak to non-members.
func (h *Handler) handleReadError(w http.ResponseWriter, r *http.Request, err error) {
	readMappings := append([]httputil.ErrorMapping{
		{Error: access.ErrNotAMember, Status: http.StatusNotFound, Message: "not found"},
	}, errorMappings...)
	httputil.HandleError(r.Context(), w, err, readMappings)
}
