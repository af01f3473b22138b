package httpx

import (
	"errors"
	"net/http"

	"github.com/quillbooks/quill/internal/shared"
)

// RespondError maps cross-cutting errors to HTTP responses using RFC7807.
// Domain-specific errors are mapped by the owning handler before falling
// through to this default.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrCompanyRequired):
		Problem(w, http.StatusBadRequest, "Company Required", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
