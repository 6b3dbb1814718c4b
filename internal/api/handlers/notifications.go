// notifications.go — обработчики /api/v1/notifications endpoints.
// Доступ ко всем endpoint'ам — только admin.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/domain/model"
	"github.com/mkosareva/docportal/internal/service"
)

// notificationResponse — DTO уведомления администратора.
type notificationResponse struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	EventType   string `json:"event_type"`
	RequestID   string `json:"request_id"`
	Payload     string `json:"payload,omitempty"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

// mapNotification переводит доменную модель в DTO.
func mapNotification(n *model.AdminNotification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		EventType:   string(n.EventType),
		RequestID:   n.RequestID,
		Payload:     n.Payload,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListNotifications — GET /api/v1/notifications.
// Возвращает уведомления текущего администратора (новые — первыми)
// вместе со счётчиком непрочитанных.
func (h *APIHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	limit, offset := paginationParams(r)

	notifications, err := h.notify.ListForAdmin(r.Context(), session.UserID, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения уведомлений", "admin_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка получения уведомлений")
		return
	}

	unread, err := h.notify.CountUnread(r.Context(), session.UserID)
	if err != nil {
		h.logger.Error("Ошибка подсчёта непрочитанных уведомлений", "admin_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка получения уведомлений")
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, mapNotification(n))
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"notifications": out,
		"unread_count":  unread,
	})
}

// MarkNotificationRead — POST /api/v1/notifications/{id}/read.
// Отмечает прочитанным только собственное уведомление администратора.
func (h *APIHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	if err := h.notify.MarkRead(r.Context(), id, session.UserID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Уведомление не найдено")
			return
		}
		h.logger.Error("Ошибка отметки уведомления", "notification_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка отметки уведомления")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"id": id, "is_read": true})
}

// MarkAllNotificationsRead — POST /api/v1/notifications/read-all.
func (h *APIHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	marked, err := h.notify.MarkAllRead(r.Context(), session.UserID)
	if err != nil {
		h.logger.Error("Ошибка массовой отметки уведомлений", "admin_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка отметки уведомлений")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"marked": marked})
}
