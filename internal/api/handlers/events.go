// events.go — SSE (Server-Sent Events) endpoint для real-time доставки
// уведомлений администраторам. Каждый SSE-клиент обслуживается отдельной
// горутиной; hub маршрутизирует события по идентификатору получателя.
// Доставка best-effort: событие уже сохранено в БД до публикации,
// отключённый клиент получит его из /api/v1/notifications.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/service"
)

// sseBufferSize — ёмкость канала одного SSE-клиента.
// При переполнении событие для этого клиента отбрасывается.
const sseBufferSize = 16

// EventsHandler — SSE hub уведомлений. Реализует service.Publisher.
type EventsHandler struct {
	mu sync.Mutex
	// subscribers — каналы активных клиентов по идентификатору администратора.
	// Один администратор может держать несколько вкладок (несколько каналов).
	subscribers map[string]map[chan service.Event]struct{}

	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler создаёт SSE hub.
// heartbeat — интервал отправки keep-alive комментариев (DP_SSE_HEARTBEAT).
func NewEventsHandler(heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		subscribers: make(map[string]map[chan service.Event]struct{}),
		heartbeat:   heartbeat,
		logger:      logger.With(slog.String("component", "sse")),
	}
}

// Publish доставляет событие всем активным подключениям получателя.
// Вызывается сервисом уведомлений после записи события в БД.
// Неблокирующая отправка: медленный клиент событие теряет.
func (h *EventsHandler) Publish(event service.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[event.RecipientID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("SSE-канал переполнен, событие отброшено",
				slog.String("recipient_id", event.RecipientID),
				slog.String("notification_id", event.NotificationID),
			)
		}
	}
}

// subscribe регистрирует нового клиента и возвращает его канал.
func (h *EventsHandler) subscribe(adminID string) chan service.Event {
	ch := make(chan service.Event, sseBufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[adminID] == nil {
		h.subscribers[adminID] = make(map[chan service.Event]struct{})
	}
	h.subscribers[adminID][ch] = struct{}{}
	return ch
}

// unsubscribe снимает регистрацию клиента.
func (h *EventsHandler) unsubscribe(adminID string, ch chan service.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[adminID], ch)
	if len(h.subscribers[adminID]) == 0 {
		delete(h.subscribers, adminID)
	}
}

// SubscriberCount возвращает число активных подключений получателя.
func (h *EventsHandler) SubscriberCount(adminID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[adminID])
}

// HandleNotifications обрабатывает GET /api/v1/events/notifications — SSE endpoint.
// Формат: event: notification\ndata: {json}\n\n
// Между событиями отправляются keep-alive комментарии (: heartbeat).
// Graceful disconnect при закрытии клиентом соединения (context cancel).
func (h *EventsHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// Используем http.ResponseController для корректной работы Flush()
	// через обёрнутый ResponseWriter (logging middleware и др.).
	// ResponseController вызывает Unwrap() и находит оригинальный http.Flusher.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	// Снимаем WriteTimeout сервера для долгоживущего соединения
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	ch := h.subscribe(session.UserID)
	defer h.unsubscribe(session.UserID, ch)

	h.logger.Debug("SSE клиент подключён",
		slog.String("admin_id", session.UserID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Клиент отключился
			h.logger.Debug("SSE клиент отключён",
				slog.String("admin_id", session.UserID),
			)
			return
		case event := <-ch:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Ошибка сериализации SSE-события",
					slog.String("notification_id", event.NotificationID),
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			// Keep-alive: комментарий не парсится клиентом, но держит соединение
			fmt.Fprint(w, ": heartbeat\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
