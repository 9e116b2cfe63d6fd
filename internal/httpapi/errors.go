package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/access"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/payment"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/session"
)

const (
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeUnauthenticated      = "unauthenticated"
	codeAccessDenied         = "access_denied"
	codeExpired              = "exhibition_expired"
	codeExhibitionNotFound   = "exhibition_not_found"
	codeOrderNotFound        = "order_not_found"
	codeInvalidSignature     = "invalid_signature"
	codeInvalidPurchaseState = "invalid_purchase_state"
	codeForbidden            = "forbidden"
	codeNotReady             = "not_ready"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps errors from the access, payment and exhibition
// packages onto HTTP. Anything unrecognised is logged and reported as 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
	case errors.Is(err, access.ErrExpired):
		writeError(w, http.StatusForbidden, codeExpired, "exhibition has ended")
	case errors.Is(err, access.ErrAccessDenied):
		writeError(w, http.StatusForbidden, codeAccessDenied, "access denied")
	case errors.Is(err, exhibition.ErrNotFound):
		writeError(w, http.StatusNotFound, codeExhibitionNotFound, "exhibition not found")
	case errors.Is(err, payment.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, codeInvalidSignature, "invalid payment signature")
	case errors.Is(err, payment.ErrInvalidPurchaseState):
		writeError(w, http.StatusConflict, codeInvalidPurchaseState, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
