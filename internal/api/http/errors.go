package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/payment"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
	Booking *bookingResponse  `json:"booking,omitempty"`
}

// statusFor maps service errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var transition *domain.TransitionError
	switch {
	case errors.As(err, &transition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflictRetry), errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "conflict_retry"
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity, "precondition_failed"
	case errors.Is(err, domain.ErrItemUnavailable):
		return http.StatusUnprocessableEntity, "item_unavailable"
	case errors.Is(err, domain.ErrPaymentNotRequired):
		return http.StatusUnprocessableEntity, "payment_not_required"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrSignatureVerificationFailed):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, domain.ErrMalformedEvent):
		return http.StatusBadRequest, "malformed_event"
	case errors.Is(err, domain.ErrPaymentInitiationFailed):
		return http.StatusBadGateway, "payment_initiation_failed"
	case errors.Is(err, payment.ErrGatewayUnavailable), errors.Is(err, payment.ErrGatewayTimeout),
		errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWithBooking(w, r, err, nil)
}

// writeErrorWithBooking reports err and, when the action still changed the
// booking (approve with a gateway failure), includes its new state.
func writeErrorWithBooking(w http.ResponseWriter, r *http.Request, err error, b *domain.Booking) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	resp := errorResponse{Error: msg, Code: code}
	if b != nil {
		mapped := mapBooking(b)
		resp.Booking = &mapped
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "request validation failed", Code: "validation_failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = fe.Tag()
		}
	} else {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
