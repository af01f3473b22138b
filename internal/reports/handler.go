package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillbooks/quill/internal/platform/httpx"
	"github.com/quillbooks/quill/internal/shared"
)

// Handler exposes reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance", h.trialBalance)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be YYYY-MM-DD")
			return
		}
	}
	tb, err := h.service.TrialBalance(r.Context(), shared.UserFromContext(r.Context()), companyID, asOf)
	if err != nil {
		if errors.Is(err, ErrLedgerIntegrity) {
			httpx.Problem(w, http.StatusInternalServerError, "Ledger Integrity Violation", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
