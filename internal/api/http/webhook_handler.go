package http

import (
	"io"
	"net/http"

	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/service"
)

// SignatureHeader carries the gateway's HMAC signature.
const SignatureHeader = "Paymongo-Signature"

type WebhookHandler struct {
	reconcile service.ReconciliationService
}

func NewWebhookHandler(reconcile service.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile}
}

// HandlePayment verifies and applies a gateway event. The raw body is passed
// through untouched because the signature covers its exact bytes.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large", Code: "body_too_large"})
		return
	}

	if err := h.reconcile.HandlePaymentWebhook(r.Context(), raw, r.Header.Get(SignatureHeader)); err != nil {
		logger.Warn("Payment webhook rejected", "error", err)
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
