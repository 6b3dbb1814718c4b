package repository

import (
	"context"
	"fmt"
)

// AdminRepository — интерфейс для таблицы portal_admins.
// Таблица — локальный реестр известных администраторов; пополняется
// при первой аутентификации администратора через session validator.
// Используется как снимок получателей broadcast-уведомлений.
type AdminRepository interface {
	// Upsert создаёт или обновляет запись администратора.
	Upsert(ctx context.Context, adminID, displayName string) error
	// ListIDs возвращает идентификаторы всех известных администраторов.
	ListIDs(ctx context.Context) ([]string, error)
}

// adminRepo — реализация AdminRepository.
type adminRepo struct {
	db DBTX
}

// NewAdminRepository создаёт репозиторий администраторов.
func NewAdminRepository(db DBTX) AdminRepository {
	return &adminRepo{db: db}
}

func (r *adminRepo) Upsert(ctx context.Context, adminID, displayName string) error {
	query := `
		INSERT INTO portal_admins (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			last_seen_at = NOW()`

	_, err := r.db.Exec(ctx, query, adminID, displayName)
	if err != nil {
		return fmt.Errorf("ошибка регистрации администратора %s: %w", adminID, err)
	}
	return nil
}

func (r *adminRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM portal_admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка администраторов: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования id администратора: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
