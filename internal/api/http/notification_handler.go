package http

import (
	"net/http"
	"strconv"

	"gearlend-backend/internal/service"
)

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListNotifications returns the caller's notifications with delivery status.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	page, size := pageParams(r)
	rows, total, err := h.notifications.ListNotifications(r.Context(), actor.ID, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[notificationResponse]{
		Items:      mapNotifications(rows),
		TotalCount: total,
		Page:       page,
		PageSize:   size,
	})
}

// RetryNotifications runs the retry sweep on demand.
func (h *NotificationHandler) RetryNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	sent, err := h.notifications.RetryNotifications(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
