package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/pmtool/internal/models"
	"github.com/iudanet/pmtool/internal/server/storage"
	"github.com/iudanet/pmtool/pkg/api"
)

// NotificationHandler обрабатывает уведомления текущего пользователя
type NotificationHandler struct {
	responder
	notifications storage.NotificationStorage
}

// NewNotificationHandler создает handler уведомлений
func NewNotificationHandler(logger *slog.Logger, notifications storage.NotificationStorage) *NotificationHandler {
	return &NotificationHandler{
		responder:     responder{logger: logger},
		notifications: notifications,
	}
}

// List обрабатывает GET /notifications/?unread=true
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.notifications.ListNotifications(r.Context(), id.UserID(), unreadOnly)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list notifications", err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	h.sendJSON(w, list, http.StatusOK)
}

// MarkRead обрабатывает PATCH /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	if err := h.notifications.MarkNotificationRead(ctx, r.PathValue("id"), id.UserID()); err != nil {
		if errors.Is(err, storage.ErrNotificationNotFound) {
			h.sendError(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.internalError(ctx, w, "failed to mark notification read", err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "Notification marked as read"}, http.StatusOK)
}

// MarkAllRead обрабатывает POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.currentIdentity(w, r)
	if !ok {
		return
	}

	n, err := h.notifications.MarkAllNotificationsRead(ctx, id.UserID())
	if err != nil {
		h.internalError(ctx, w, "failed to mark notifications read", err)
		return
	}

	h.logger.DebugContext(ctx, "notifications marked read",
		slog.String("user_id", id.UserID()),
		slog.Int("count", n))

	h.sendJSON(w, api.ReadAllResponse{Updated: n}, http.StatusOK)
}
