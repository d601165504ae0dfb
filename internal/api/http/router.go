package http

import (
	"net/http"

	"gearlend-backend/internal/security"
	"gearlend-backend/internal/service"

	"github.com/gorilla/mux"
)

type RouterDeps struct {
	Bookings      service.BookingService
	Reconcile     service.ReconciliationService
	Notifications service.NotificationService
	Tokens        security.TokenManager
}

// NewRouter registers every route under /api/v1 plus the /healthz probe.
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(NewAuthMiddleware(deps.Tokens).Handler)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	bookings := NewBookingHandler(deps.Bookings, deps.Reconcile)
	api.HandleFunc("/bookings", bookings.CreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", bookings.ListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookings.GetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookings.UpdateBookingTerms).Methods(http.MethodPatch)
	api.HandleFunc("/bookings/{id}/request", bookings.RequestBooking()).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", bookings.CancelBooking()).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/approve", bookings.ApproveBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/reject", bookings.RejectBooking()).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/start", bookings.StartBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/terminate", bookings.TerminateBooking()).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/close", bookings.CloseBooking()).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/payment", bookings.InitiatePayment).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/payment/refresh", bookings.RefreshPaymentStatus).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/settlement", bookings.GetSettlement).Methods(http.MethodGet)

	notifications := NewNotificationHandler(deps.Notifications)
	api.HandleFunc("/notifications", notifications.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/admin/notifications/retry", notifications.RetryNotifications).Methods(http.MethodPost)

	webhooks := NewWebhookHandler(deps.Reconcile)
	api.HandleFunc("/webhooks/payments", webhooks.HandlePayment).Methods(http.MethodPost)

	return router
}
