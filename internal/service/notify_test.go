package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/mkosareva/docportal/internal/domain/model"
)

// fakePublisher — мок push-транспорта.
type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakePublisher) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func newNotifyFixture(admins []string) (*NotifyService, *fakeNotificationRepo, *fakePublisher) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := &fakeNotificationRepo{}
	pub := &fakePublisher{}
	svc := NewNotifyService(repo, &fakeAdminRepo{ids: admins}, pub, logger)
	return svc, repo, pub
}

// TestBroadcast — по одной строке на каждого администратора из снимка.
func TestBroadcast(t *testing.T) {
	svc, repo, pub := newNotifyFixture([]string{"admin-1", "admin-2", "admin-3"})

	err := svc.Broadcast(context.Background(), model.EventNewRequest, "req-1", "Новый запрос")
	if err != nil {
		t.Fatalf("Broadcast() вернул ошибку: %v", err)
	}

	for _, adminID := range []string{"admin-1", "admin-2", "admin-3"} {
		notifs, _ := repo.ListForAdmin(context.Background(), adminID, 0, 0)
		if len(notifs) != 1 {
			t.Errorf("у %s %d уведомлений, ожидалось 1", adminID, len(notifs))
		}
	}

	// Push-события отправлены после сохранения, по одному на получателя
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 3 {
		t.Errorf("опубликовано %d событий, ожидалось 3", len(pub.events))
	}
	for _, e := range pub.events {
		if e.EventType != model.EventNewRequest {
			t.Errorf("EventType = %q, ожидался new_request", e.EventType)
		}
		if e.NotificationID == "" {
			t.Error("NotificationID пустой — событие опубликовано до сохранения?")
		}
	}
}

// TestBroadcast_NoAdmins — пустой снимок администраторов не является ошибкой.
func TestBroadcast_NoAdmins(t *testing.T) {
	svc, repo, pub := newNotifyFixture(nil)

	err := svc.Broadcast(context.Background(), model.EventNewRequest, "req-1", "Заголовок")
	if err != nil {
		t.Fatalf("Broadcast() вернул ошибку: %v", err)
	}

	if len(repo.notifications) != 0 {
		t.Errorf("создано %d уведомлений, ожидалось 0", len(repo.notifications))
	}
	if len(pub.events) != 0 {
		t.Errorf("опубликовано %d событий, ожидалось 0", len(pub.events))
	}
}

// TestBroadcast_InvalidEventType — неизвестный тип события отклоняется.
func TestBroadcast_InvalidEventType(t *testing.T) {
	svc, _, _ := newNotifyFixture([]string{"admin-1"})

	err := svc.Broadcast(context.Background(), model.EventType("bogus"), "req-1", "")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено: %v", err)
	}
}

// TestMarkRead_Ownership — чужое уведомление пометить нельзя.
func TestMarkRead_Ownership(t *testing.T) {
	svc, repo, _ := newNotifyFixture([]string{"admin-1", "admin-2"})

	if err := svc.Broadcast(context.Background(), model.EventStatusUpdate, "req-1", ""); err != nil {
		t.Fatal(err)
	}

	notifs, _ := repo.ListForAdmin(context.Background(), "admin-1", 0, 0)
	if len(notifs) != 1 {
		t.Fatalf("у admin-1 %d уведомлений, ожидалось 1", len(notifs))
	}

	// admin-2 пытается пометить уведомление admin-1
	if err := svc.MarkRead(context.Background(), notifs[0].ID, "admin-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}

	// Владелец помечает успешно
	if err := svc.MarkRead(context.Background(), notifs[0].ID, "admin-1"); err != nil {
		t.Errorf("MarkRead() владельцем вернул ошибку: %v", err)
	}

	unread, _ := svc.CountUnread(context.Background(), "admin-1")
	if unread != 0 {
		t.Errorf("у admin-1 %d непрочитанных, ожидалось 0", unread)
	}
}

// TestMarkAllRead — обнуляет непрочитанные у одного администратора,
// не затрагивая остальных.
func TestMarkAllRead(t *testing.T) {
	svc, _, _ := newNotifyFixture([]string{"admin-1", "admin-2"})

	for i := 0; i < 3; i++ {
		if err := svc.Broadcast(context.Background(), model.EventNewRequest, "req-1", ""); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.MarkAllRead(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("MarkAllRead() вернул ошибку: %v", err)
	}
	if n != 3 {
		t.Errorf("помечено %d уведомлений, ожидалось 3", n)
	}

	unread1, _ := svc.CountUnread(context.Background(), "admin-1")
	if unread1 != 0 {
		t.Errorf("у admin-1 %d непрочитанных, ожидалось 0", unread1)
	}

	// У admin-2 непрочитанные не изменились
	unread2, _ := svc.CountUnread(context.Background(), "admin-2")
	if unread2 != 3 {
		t.Errorf("у admin-2 %d непрочитанных, ожидалось 3", unread2)
	}
}
