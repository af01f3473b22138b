package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/platform/httpx"
	"github.com/quillbooks/quill/internal/shared"
)

// Handler manages journal entry endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	idem     *shared.IdempotencyStore
	validate *validator.Validate
}

// NewHandler builds Handler instance. idem may be nil; entry creation then
// skips the Idempotency-Key check.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journal-entries", h.list)
	r.Post("/journal-entries", h.create)
	r.Get("/journal-entries/{id}", h.show)
	r.Put("/journal-entries/{id}", h.update)
	r.Delete("/journal-entries/{id}", h.delete)
	r.Post("/journal-entries/{id}/post", h.post)
	r.Post("/journal-entries/{id}/void", h.void)
}

type lineRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Memo      string `json:"memo"`
}

type entryRequest struct {
	Date  string        `json:"date" validate:"required"`
	Memo  string        `json:"memo"`
	Lines []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) decodeLines(in []lineRequest) ([]LineInput, error) {
	out := make([]LineInput, 0, len(in))
	for idx, l := range in {
		line := LineInput{AccountID: l.AccountID, Memo: l.Memo, Debit: decimal.Zero, Credit: decimal.Zero}
		var err error
		if l.Debit != "" {
			if line.Debit, err = decimal.NewFromString(l.Debit); err != nil {
				return nil, &ValidationError{Issues: []string{fmt.Sprintf("line %d: malformed debit amount", idx)}}
			}
		}
		if l.Credit != "" {
			if line.Credit, err = decimal.NewFromString(l.Credit); err != nil {
				return nil, &ValidationError{Issues: []string{fmt.Sprintf("line %d: malformed credit amount", idx)}}
			}
		}
		out = append(out, line)
	}
	return out, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "date must be YYYY-MM-DD")
		return
	}
	lines, err := h.decodeLines(req.Lines)
	if err != nil {
		h.respondError(w, err)
		return
	}
	idemKey, ok := h.claimIdempotencyKey(w, r)
	if !ok {
		return
	}
	entry, err := h.service.CreateDraft(r.Context(), actorID, DraftInput{
		CompanyID: companyID,
		Date:      date,
		Type:      EntryTypeManual,
		Memo:      req.Memo,
		CreatedBy: actorID,
		Lines:     lines,
	})
	if err != nil {
		if idemKey != "" {
			_ = h.idem.Delete(r.Context(), idemKey)
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// claimIdempotencyKey reserves the request's Idempotency-Key, if any. A replay
// of an already-claimed key answers 409 without creating a second entry.
func (h *Handler) claimIdempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idem == nil {
		return "", true
	}
	if _, err := uuid.Parse(key); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "Idempotency-Key must be a UUID")
		return "", false
	}
	if err := h.idem.CheckAndInsert(r.Context(), key, "journal"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this Idempotency-Key was already used")
			return "", false
		}
		httpx.RespondError(w, err)
		return "", false
	}
	return key, true
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "date must be YYYY-MM-DD")
		return
	}
	lines, err := h.decodeLines(req.Lines)
	if err != nil {
		h.respondError(w, err)
		return
	}
	entry, err := h.service.UpdateDraft(r.Context(), actorID, UpdateDraftInput{
		CompanyID: companyID,
		EntryID:   entryID,
		Date:      date,
		Memo:      req.Memo,
		Lines:     lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), actorID, companyID, entryID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	entry, err := h.service.Post(r.Context(), actorID, companyID, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	var req voidRequest
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.service.Void(r.Context(), actorID, companyID, entryID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	entryID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), companyID, entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	entries, err := h.service.List(r.Context(), companyID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit, "offset": offset})
}

// respondError maps journal errors to problem responses before falling back to
// the shared mapping.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		httpx.JSON(w, http.StatusUnprocessableEntity, httpx.ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: vErr.Error(),
		})
	case errors.Is(err, ErrPeriodClosed), errors.Is(err, ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Not Open", err.Error())
	case errors.Is(err, ErrNoPeriodForDate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Period", err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotPosted), errors.Is(err, ErrAlreadyVoided):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate Source", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (companyID, actorID int64, ok bool) {
	companyID, err := shared.CompanyFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return companyID, shared.UserFromContext(r.Context()), true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
