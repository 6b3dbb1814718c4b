package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkosareva/docportal/internal/domain/model"
)

// NotificationRepository — интерфейс для таблицы admin_notifications.
// Broadcast-уведомления материализуются в отдельные строки на каждого
// администратора в момент записи (фиксированный снимок получателей).
type NotificationRepository interface {
	// CreateBatch вставляет пачку уведомлений.
	CreateBatch(ctx context.Context, notifications []*model.AdminNotification) error
	// ListForAdmin возвращает уведомления администратора (новые первыми).
	ListForAdmin(ctx context.Context, adminID string, limit, offset int) ([]*model.AdminNotification, error)
	// CountUnread возвращает количество непрочитанных уведомлений администратора.
	CountUnread(ctx context.Context, adminID string) (int, error)
	// MarkRead помечает уведомление прочитанным.
	// Проверяет принадлежность уведомления администратору.
	MarkRead(ctx context.Context, notificationID, adminID string) error
	// MarkAllRead помечает все уведомления администратора прочитанными.
	// Возвращает количество затронутых строк.
	MarkAllRead(ctx context.Context, adminID string) (int, error)
}

// notificationRepo — реализация NotificationRepository.
type notificationRepo struct {
	db DBTX
	// tx — при ненулевом значении CreateBatch выполняется в транзакции:
	// снимок получателей вставляется целиком либо не вставляется вовсе.
	tx *TxRunner
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

// NewNotificationRepositoryTx создаёт репозиторий уведомлений
// с транзакционной вставкой пачек.
func NewNotificationRepositoryTx(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepo{db: pool, tx: NewTxRunner(pool)}
}

func (r *notificationRepo) CreateBatch(ctx context.Context, notifications []*model.AdminNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	if r.tx != nil {
		return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			return insertBatch(ctx, tx, notifications)
		})
	}
	return insertBatch(ctx, r.db, notifications)
}

// insertBatch вставляет пачку уведомлений через переданный DBTX.
func insertBatch(ctx context.Context, db DBTX, notifications []*model.AdminNotification) error {
	query := `
		INSERT INTO admin_notifications (id, recipient_id, event_type, request_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	for _, n := range notifications {
		err := db.QueryRow(ctx, query,
			n.ID, n.RecipientID, n.EventType, n.RequestID, n.Payload,
		).Scan(&n.CreatedAt)
		if err != nil {
			return fmt.Errorf("ошибка создания уведомления для %s: %w", n.RecipientID, err)
		}
	}
	return nil
}

func (r *notificationRepo) ListForAdmin(ctx context.Context, adminID string, limit, offset int) ([]*model.AdminNotification, error) {
	query := `
		SELECT id, recipient_id, event_type, request_id, payload, is_read, created_at
		FROM admin_notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, adminID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	defer rows.Close()

	var result []*model.AdminNotification
	for rows.Next() {
		n := &model.AdminNotification{}
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.EventType, &n.RequestID, &n.Payload, &n.IsRead, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepo) CountUnread(ctx context.Context, adminID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM admin_notifications WHERE recipient_id = $1 AND NOT is_read`,
		adminID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта непрочитанных уведомлений: %w", err)
	}
	return count, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, notificationID, adminID string) error {
	// recipient_id в условии — проверка принадлежности: чужое уведомление
	// не будет затронуто и вернётся ErrNotFound.
	query := `
		UPDATE admin_notifications
		SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2`

	tag, err := r.db.Exec(ctx, query, notificationID, adminID)
	if err != nil {
		return fmt.Errorf("ошибка пометки уведомления прочитанным: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, adminID string) (int, error) {
	query := `
		UPDATE admin_notifications
		SET is_read = TRUE
		WHERE recipient_id = $1 AND NOT is_read`

	tag, err := r.db.Exec(ctx, query, adminID)
	if err != nil {
		return 0, fmt.Errorf("ошибка пометки всех уведомлений прочитанными: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
