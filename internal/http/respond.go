package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/internal/service/auth"
)

// Error kinds carried in the envelope's error field.
const (
	kindValidation     = "validation_failure"
	kindConflict       = "conflict"
	kindUnauthorized   = "unauthorized"
	kindForbidden      = "forbidden"
	kindSelfDeletion   = "self_deletion_forbidden"
	kindNotFound       = "not_found"
	kindRateLimited    = "rate_limited"
	kindMethodNotAllow = "method_not_allowed"
	kindInternal       = "internal_error"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData sends a success envelope.
func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// writeError sends a failure envelope.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: kind, Message: msg})
}

// writeServiceError maps a service or store error to its status and kind.
// Unclassified errors are logged and reported generically.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, op string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, kindValidation, verr.Error())
	case errors.Is(err, repository.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, kindConflict, "an account with this email already exists")
	case errors.Is(err, repository.ErrVersionConflict):
		writeError(w, http.StatusConflict, kindConflict, "account was modified by another request; reload and retry")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, "account not found")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "authentication required")
	case errors.Is(err, account.ErrSelfDeletion):
		writeError(w, http.StatusForbidden, kindSelfDeletion, "you cannot deactivate your own account")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, kindForbidden, "administrator role required")
	default:
		r.logger.ErrorContext(req.Context(), "request failed", "op", op, "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "internal server error")
	}
}
