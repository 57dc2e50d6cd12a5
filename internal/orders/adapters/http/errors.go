package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// errorMapping translates a sentinel into a status and a stable error code.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ports.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{ports.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{ports.ErrPurchaseRequired, http.StatusForbidden, "PURCHASE_REQUIRED"},
	{ports.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ports.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{ports.ErrSignatureInvalid, http.StatusBadRequest, "SIGNATURE_INVALID"},
	{ports.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
	{ports.ErrPaymentNotCompleted, http.StatusConflict, "PAYMENT_NOT_COMPLETED"},
	{ports.ErrStaleStatus, http.StatusConflict, "CONFLICT"},
	{ports.ErrDuplicateSession, http.StatusConflict, "CONFLICT"},
	{ports.ErrRequestInFlight, http.StatusConflict, "CONFLICT"},
	{ports.ErrUpstream, http.StatusBadGateway, "UPSTREAM_FAILURE"},
	{ports.ErrInconsistent, http.StatusInternalServerError, "INCONSISTENT"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeServiceError renders err. Server-side failures are logged and their
// details kept out of the response.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
