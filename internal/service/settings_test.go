package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mkosareva/docportal/internal/repository"
)

// fakeSettingsRepo — in-memory реализация SettingsRepository.
type fakeSettingsRepo struct {
	settings map[string]map[string]string // userID → key → value
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]map[string]string)}
}

func (f *fakeSettingsRepo) Get(_ context.Context, userID, key string) (*repository.UserSetting, error) {
	if value, ok := f.settings[userID][key]; ok {
		return &repository.UserSetting{UserID: userID, Key: key, Value: value, UpdatedAt: time.Now()}, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSettingsRepo) Set(_ context.Context, userID, key, value string) error {
	if f.settings[userID] == nil {
		f.settings[userID] = make(map[string]string)
	}
	f.settings[userID][key] = value
	return nil
}

func (f *fakeSettingsRepo) ListForUser(_ context.Context, userID string) ([]repository.UserSetting, error) {
	var out []repository.UserSetting
	for key, value := range f.settings[userID] {
		out = append(out, repository.UserSetting{UserID: userID, Key: key, Value: value})
	}
	return out, nil
}

func (f *fakeSettingsRepo) Delete(_ context.Context, userID, key string) error {
	if _, ok := f.settings[userID][key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.settings[userID], key)
	return nil
}

func newSettingsService() (*SettingsService, *fakeSettingsRepo) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := newFakeSettingsRepo()
	return NewSettingsService(repo, logger), repo
}

// TestSettings_SetGet — базовые операции.
func TestSettings_SetGet(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := context.Background()

	if err := svc.Set(ctx, "user-1", "ui.language", "pt"); err != nil {
		t.Fatalf("Set() вернул ошибку: %v", err)
	}

	setting, err := svc.Get(ctx, "user-1", "ui.language")
	if err != nil {
		t.Fatalf("Get() вернул ошибку: %v", err)
	}
	if setting.Value != "pt" {
		t.Errorf("Value = %q, ожидалось pt", setting.Value)
	}

	// Настройки других пользователей не видны
	if _, err := svc.Get(ctx, "user-2", "ui.language"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
}

// TestSettings_InvalidKey — неизвестный ключ отклоняется.
func TestSettings_InvalidKey(t *testing.T) {
	svc, _ := newSettingsService()

	err := svc.Set(context.Background(), "user-1", "bogus.key", "value")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено: %v", err)
	}
}

// TestSettings_ValidateValue — валидация значений по типу ключа.
func TestSettings_ValidateValue(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := context.Background()

	tests := []struct {
		key   string
		value string
		valid bool
	}{
		{"notifications.email", "true", true},
		{"notifications.email", "yes", false},
		{"ui.language", "ru", true},
		{"ui.language", "de", false},
		{"ui.requests_per_page", "25", true},
		{"ui.requests_per_page", "5", false},
		{"ui.requests_per_page", "abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := svc.Set(ctx, "user-1", tt.key, tt.value)
			if tt.valid && err != nil {
				t.Errorf("Set(%q, %q) вернул ошибку: %v", tt.key, tt.value, err)
			}
			if !tt.valid && !errors.Is(err, ErrValidation) {
				t.Errorf("Set(%q, %q): ожидался ErrValidation, получено: %v", tt.key, tt.value, err)
			}
		})
	}
}

// TestSettings_NotificationPrefs_Defaults — отсутствие ключей даёт умолчания.
func TestSettings_NotificationPrefs_Defaults(t *testing.T) {
	svc, _ := newSettingsService()

	prefs, err := svc.GetNotificationPrefs(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetNotificationPrefs() вернул ошибку: %v", err)
	}

	if !prefs.Email || !prefs.Push || prefs.Digest {
		t.Errorf("умолчания = %+v, ожидалось email=true, push=true, digest=false", prefs)
	}
}

// TestSettings_NotificationPrefs_Merge — сохранённые ключи перекрывают умолчания.
func TestSettings_NotificationPrefs_Merge(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := context.Background()

	if err := svc.Set(ctx, "user-1", "notifications.email", "false"); err != nil {
		t.Fatal(err)
	}

	prefs, err := svc.GetNotificationPrefs(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetNotificationPrefs() вернул ошибку: %v", err)
	}

	if prefs.Email {
		t.Error("Email = true, ожидалось перекрытие сохранённым false")
	}
	// Незаданные ключи остаются умолчаниями
	if !prefs.Push {
		t.Error("Push = false, ожидалось умолчание true")
	}
}

// TestSettings_Delete — удаление возвращает ключ к умолчанию.
func TestSettings_Delete(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := context.Background()

	if err := svc.Set(ctx, "user-1", "notifications.push", "false"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "user-1", "notifications.push"); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}

	prefs, _ := svc.GetNotificationPrefs(ctx, "user-1")
	if !prefs.Push {
		t.Error("Push = false после удаления, ожидалось умолчание true")
	}

	if err := svc.Delete(ctx, "user-1", "notifications.push"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete(): ожидался ErrNotFound, получено: %v", err)
	}
}
