package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillbooks/quill/internal/platform/httpx"
	"github.com/quillbooks/quill/internal/shared"
)

// Handler exposes read access to the projected ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger/accounts/{id}", h.byAccount)
	r.Get("/ledger/entries", h.byDateRange)
	r.Get("/ledger/general", h.general)
	r.Get("/ledger/journal-entries/{id}", h.byJournalEntry)
	r.Post("/ledger/accounts/{id}/repair", h.repair)
}

func (h *Handler) byAccount(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	limit := 100
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	entries, err := h.service.EntriesByAccount(r.Context(), companyID, accountID, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}

func (h *Handler) byDateRange(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
		return
	}
	entries, err := h.service.EntriesByDateRange(r.Context(), companyID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) byJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	entries, err := h.service.EntriesByJournalEntry(r.Context(), companyID, entryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) general(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
		return
	}
	gl, err := h.service.GeneralLedger(r.Context(), companyID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, gl)
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	corrected, err := h.service.Repair(r.Context(), companyID, accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"corrected": corrected})
}
