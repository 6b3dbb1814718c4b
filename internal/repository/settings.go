package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UserSetting — модель записи из таблицы user_settings.
type UserSetting struct {
	// Идентификатор пользователя-владельца настройки
	UserID string
	// Ключ настройки (dot-notation, например "notifications.email")
	Key string
	// Значение настройки (строковое представление)
	Value string
	// Время последнего обновления
	UpdatedAt time.Time
}

// SettingsRepository — интерфейс для таблицы user_settings.
type SettingsRepository interface {
	// Get возвращает настройку по ключу. Если не найдена — ErrNotFound.
	Get(ctx context.Context, userID, key string) (*UserSetting, error)
	// Set создаёт или обновляет настройку (upsert).
	Set(ctx context.Context, userID, key, value string) error
	// ListForUser возвращает все настройки пользователя.
	ListForUser(ctx context.Context, userID string) ([]UserSetting, error)
	// Delete удаляет настройку по ключу.
	Delete(ctx context.Context, userID, key string) error
}

// settingsRepo — реализация SettingsRepository.
type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт репозиторий пользовательских настроек.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, userID, key string) (*UserSetting, error) {
	query := `
		SELECT user_id, key, value, updated_at
		FROM user_settings
		WHERE user_id = $1 AND key = $2`

	s := &UserSetting{}
	err := r.db.QueryRow(ctx, query, userID, key).Scan(
		&s.UserID, &s.Key, &s.Value, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения user_settings[%s]: %w", key, err)
	}
	return s, nil
}

func (r *settingsRepo) Set(ctx context.Context, userID, key, value string) error {
	query := `
		INSERT INTO user_settings (user_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query, userID, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения user_settings[%s]: %w", key, err)
	}
	return nil
}

func (r *settingsRepo) ListForUser(ctx context.Context, userID string) ([]UserSetting, error) {
	query := `
		SELECT user_id, key, value, updated_at
		FROM user_settings
		WHERE user_id = $1
		ORDER BY key`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка user_settings: %w", err)
	}
	defer rows.Close()

	var settings []UserSetting
	for rows.Next() {
		var s UserSetting
		if err := rows.Scan(&s.UserID, &s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_settings: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (r *settingsRepo) Delete(ctx context.Context, userID, key string) error {
	query := `DELETE FROM user_settings WHERE user_id = $1 AND key = $2`
	tag, err := r.db.Exec(ctx, query, userID, key)
	if err != nil {
		return fmt.Errorf("ошибка удаления user_settings[%s]: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
