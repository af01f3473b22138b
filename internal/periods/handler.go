package periods

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quillbooks/quill/internal/platform/httpx"
	"github.com/quillbooks/quill/internal/shared"
)

// Handler manages accounting period endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.list)
	r.Post("/periods", h.create)
	r.Get("/periods/{id}", h.show)
	r.Delete("/periods/{id}", h.delete)
	r.Post("/periods/{id}/close", h.close)
	r.Post("/periods/{id}/reopen", h.reopen)
	r.Post("/periods/{id}/lock", h.lock)
}

type createRequest struct {
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required"`
	FiscalYear int    `json:"fiscal_year" validate:"required"`
	StartDate  string `json:"start_date" validate:"required"`
	EndDate    string `json:"end_date" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "end_date must be YYYY-MM-DD")
		return
	}
	period, err := h.service.Create(r.Context(), shared.UserFromContext(r.Context()), CreateInput{
		CompanyID:  companyID,
		Name:       req.Name,
		Type:       PeriodType(req.Type),
		FiscalYear: req.FiscalYear,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	period, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reopen)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Lock)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.UserFromContext(r.Context()), companyID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, companyID, periodID int64) (Period, error)) {
	companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	period, err := fn(r.Context(), shared.UserFromContext(r.Context()), companyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (companyID, id int64, ok bool) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err = strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid period id")
		return 0, 0, false
	}
	return companyID, id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodOverlap):
		httpx.Problem(w, http.StatusConflict, "Period Overlap", err.Error())
	case errors.Is(err, ErrPeriodNotEmpty):
		httpx.Problem(w, http.StatusConflict, "Period Not Empty", err.Error())
	case errors.Is(err, ErrNoRetainedEarnings):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Retained Earnings", err.Error())
	case errors.Is(err, shared.ErrInvalidPeriodTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
