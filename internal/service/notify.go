// notify.go — рассылка уведомлений администраторам.
// Широковещательное уведомление материализуется в отдельную строку
// на каждого администратора из снимка portal_admins на момент записи.
// Push живым подключениям — best-effort поверх сохранённого состояния:
// гарантия сервиса — персистентные уведомления, не real-time доставка.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkosareva/docportal/internal/domain/model"
	"github.com/mkosareva/docportal/internal/repository"
)

// Event — событие для push-доставки подключённым администраторам.
type Event struct {
	// NotificationID — идентификатор сохранённого уведомления.
	NotificationID string `json:"notification_id"`
	// RecipientID — администратор-получатель.
	RecipientID string `json:"recipient_id"`
	// EventType — тип события.
	EventType model.EventType `json:"event_type"`
	// RequestID — запрос документа, к которому относится событие.
	RequestID string `json:"request_id"`
	// Payload — человекочитаемое описание события.
	Payload string `json:"payload"`
	// CreatedAt — время создания уведомления.
	CreatedAt time.Time `json:"created_at"`
}

// Publisher — транспорт best-effort доставки событий живым подключениям.
// Реализуется SSE-хабом; в тестах подменяется моком.
type Publisher interface {
	Publish(event Event)
}

// NotifyService — сервис уведомлений администраторов.
type NotifyService struct {
	notifications repository.NotificationRepository
	admins        repository.AdminRepository
	publisher     Publisher // может быть nil
	logger        *slog.Logger
}

// NewNotifyService создаёт сервис уведомлений.
// publisher может быть nil — тогда события только сохраняются.
func NewNotifyService(
	notifications repository.NotificationRepository,
	admins repository.AdminRepository,
	publisher Publisher,
	logger *slog.Logger,
) *NotifyService {
	return &NotifyService{
		notifications: notifications,
		admins:        admins,
		publisher:     publisher,
		logger:        logger.With(slog.String("component", "notify_service")),
	}
}

// Broadcast создаёт уведомление для каждого администратора из снимка
// portal_admins и отправляет события в push-транспорт.
// Получатели фиксируются на момент записи, не динамически.
func (s *NotifyService) Broadcast(ctx context.Context, eventType model.EventType, requestID, payload string) error {
	if !eventType.IsValid() {
		return fmt.Errorf("%w: неизвестный тип события %q", ErrValidation, eventType)
	}

	adminIDs, err := s.admins.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("получение списка администраторов: %w", err)
	}
	if len(adminIDs) == 0 {
		s.logger.Warn("Нет зарегистрированных администраторов, уведомление не создано",
			slog.String("event_type", string(eventType)),
			slog.String("request_id", requestID),
		)
		return nil
	}

	batch := make([]*model.AdminNotification, 0, len(adminIDs))
	for _, adminID := range adminIDs {
		batch = append(batch, &model.AdminNotification{
			ID:          uuid.NewString(),
			RecipientID: adminID,
			EventType:   eventType,
			RequestID:   requestID,
			Payload:     payload,
		})
	}

	if err := s.notifications.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("сохранение уведомлений: %w", err)
	}

	// Push после успешного сохранения: потеря подключения не теряет уведомление
	if s.publisher != nil {
		for _, n := range batch {
			s.publisher.Publish(Event{
				NotificationID: n.ID,
				RecipientID:    n.RecipientID,
				EventType:      n.EventType,
				RequestID:      n.RequestID,
				Payload:        n.Payload,
				CreatedAt:      n.CreatedAt,
			})
		}
	}

	s.logger.Debug("Уведомления разосланы",
		slog.String("event_type", string(eventType)),
		slog.String("request_id", requestID),
		slog.Int("recipients", len(batch)),
	)

	return nil
}

// ListForAdmin возвращает уведомления администратора (новые — первыми).
func (s *NotifyService) ListForAdmin(ctx context.Context, adminID string, limit, offset int) ([]*model.AdminNotification, error) {
	return s.notifications.ListForAdmin(ctx, adminID, limit, offset)
}

// CountUnread возвращает количество непрочитанных уведомлений администратора.
func (s *NotifyService) CountUnread(ctx context.Context, adminID string) (int, error) {
	return s.notifications.CountUnread(ctx, adminID)
}

// MarkRead помечает уведомление прочитанным.
// Проверяет принадлежность уведомления администратору: чужое — ErrNotFound.
func (s *NotifyService) MarkRead(ctx context.Context, notificationID, adminID string) error {
	if err := s.notifications.MarkRead(ctx, notificationID, adminID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("пометка уведомления прочитанным: %w", err)
	}
	return nil
}

// MarkAllRead помечает все уведомления администратора прочитанными.
// Возвращает количество помеченных.
func (s *NotifyService) MarkAllRead(ctx context.Context, adminID string) (int, error) {
	n, err := s.notifications.MarkAllRead(ctx, adminID)
	if err != nil {
		return 0, fmt.Errorf("пометка всех уведомлений прочитанными: %w", err)
	}
	return n, nil
}
