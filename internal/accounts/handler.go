package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quillbooks/quill/internal/platform/httpx"
	"github.com/quillbooks/quill/internal/shared"
)

// Handler manages chart of accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.list)
	r.Post("/accounts", h.create)
	r.Get("/accounts/{id}", h.show)
	r.Put("/accounts/{id}", h.update)
	r.Delete("/accounts/{id}", h.remove)
	r.Post("/accounts/{id}/deactivate", h.deactivate)
}

type createRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required"`
	Subtype    string `json:"subtype"`
	ParentID   *int64 `json:"parent_id"`
	NormalSide string `json:"normal_side"`
}

type updateRequest struct {
	Name     string `json:"name" validate:"required"`
	Subtype  string `json:"subtype"`
	ParentID *int64 `json:"parent_id"`
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
	account, err := h.service.Create(r.Context(), shared.UserFromContext(r.Context()), CreateInput{
		CompanyID:  companyID,
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		Subtype:    req.Subtype,
		ParentID:   req.ParentID,
		NormalSide: NormalSide(req.NormalSide),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	account, err := h.service.Update(r.Context(), shared.UserFromContext(r.Context()), UpdateInput{
		CompanyID: companyID,
		ID:        id,
		Name:      req.Name,
		Subtype:   req.Subtype,
		ParentID:  req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accounts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), shared.UserFromContext(r.Context()), companyID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	if err := h.service.Remove(r.Context(), shared.UserFromContext(r.Context()), companyID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCodeTaken):
		httpx.Problem(w, http.StatusConflict, "Code Taken", err.Error())
	case errors.Is(err, ErrParentCycle), errors.Is(err, ErrHasActivity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Account", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
