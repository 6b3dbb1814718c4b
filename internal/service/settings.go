// settings.go — сервис пользовательских настроек портала.
// Настройки хранятся по ключам (dot-notation); типизированные
// предпочтения уведомлений собираются слиянием с умолчаниями,
// чтобы отсутствие ключа всегда давало предсказуемое значение.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkosareva/docportal/internal/repository"
)

// Допустимые ключи настроек (dot-notation).
// Используется для валидации при Set.
var validSettingKeys = map[string]string{
	"notifications.email":  "Дублировать уведомления на email (true/false)",
	"notifications.push":   "Push-уведомления в браузере (true/false)",
	"notifications.digest": "Режим дайджеста вместо мгновенных уведомлений (true/false)",
	"ui.language":          "Язык интерфейса (ru/en/pt)",
	"ui.requests_per_page": "Количество запросов на странице (10-100)",
}

// NotificationPrefs — типизированные предпочтения уведомлений пользователя.
type NotificationPrefs struct {
	// Email — дублировать уведомления на почту.
	Email bool `json:"email"`
	// Push — push-уведомления в браузере.
	Push bool `json:"push"`
	// Digest — дайджест вместо мгновенной доставки.
	Digest bool `json:"digest"`
}

// defaultNotificationPrefs — умолчания при отсутствии сохранённых ключей.
func defaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{
		Email:  true,
		Push:   true,
		Digest: false,
	}
}

// SettingsService — сервис пользовательских настроек.
type SettingsService struct {
	repo   repository.SettingsRepository
	logger *slog.Logger
}

// NewSettingsService создаёт сервис настроек.
func NewSettingsService(repo repository.SettingsRepository, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		logger: logger.With(slog.String("service", "settings")),
	}
}

// Get возвращает значение настройки по ключу.
// Возвращает ErrNotFound если настройка не существует.
func (s *SettingsService) Get(ctx context.Context, userID, key string) (*repository.UserSetting, error) {
	setting, err := s.repo.Get(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения настройки %q: %w", key, err)
	}
	return setting, nil
}

// Set устанавливает значение настройки. Валидирует ключ и значение.
func (s *SettingsService) Set(ctx context.Context, userID, key, value string) error {
	// Валидация ключа
	if _, ok := validSettingKeys[key]; !ok {
		return fmt.Errorf("%w: недопустимый ключ настройки %q", ErrValidation, key)
	}

	if err := s.validateValue(key, value); err != nil {
		return err
	}

	if err := s.repo.Set(ctx, userID, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения настройки %q: %w", key, err)
	}

	s.logger.Info("Настройка обновлена",
		slog.String("key", key),
		slog.String("user_id", userID),
	)
	return nil
}

// List возвращает все настройки пользователя.
func (s *SettingsService) List(ctx context.Context, userID string) ([]repository.UserSetting, error) {
	settings, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка настроек: %w", err)
	}
	return settings, nil
}

// Delete удаляет настройку по ключу (возврат к умолчанию).
func (s *SettingsService) Delete(ctx context.Context, userID, key string) error {
	if err := s.repo.Delete(ctx, userID, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления настройки %q: %w", key, err)
	}

	s.logger.Info("Настройка удалена",
		slog.String("key", key),
		slog.String("user_id", userID),
	)
	return nil
}

// GetNotificationPrefs возвращает предпочтения уведомлений пользователя.
// Отсутствующие ключи заполняются умолчаниями (merge-with-defaults).
func (s *SettingsService) GetNotificationPrefs(ctx context.Context, userID string) (NotificationPrefs, error) {
	prefs := defaultNotificationPrefs()

	settings, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return prefs, fmt.Errorf("ошибка получения настроек уведомлений: %w", err)
	}

	for _, setting := range settings {
		switch setting.Key {
		case "notifications.email":
			prefs.Email = strings.EqualFold(setting.Value, "true")
		case "notifications.push":
			prefs.Push = strings.EqualFold(setting.Value, "true")
		case "notifications.digest":
			prefs.Digest = strings.EqualFold(setting.Value, "true")
		}
	}

	return prefs, nil
}

// validateValue проверяет корректность значения для указанного ключа.
func (s *SettingsService) validateValue(key, value string) error {
	switch key {
	case "notifications.email", "notifications.push", "notifications.digest":
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s должен быть true или false", ErrValidation, key)
		}
	case "ui.language":
		switch value {
		case "ru", "en", "pt":
		default:
			return fmt.Errorf("%w: %s — недопустимый язык: %s", ErrValidation, key, value)
		}
	case "ui.requests_per_page":
		n := 0
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 10 || n > 100 {
			return fmt.Errorf("%w: %s должен быть числом от 10 до 100", ErrValidation, key)
		}
	}
	return nil
}
