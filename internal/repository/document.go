package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkosareva/docportal/internal/domain/model"
)

// DocumentRepository — интерфейс для таблицы approved_documents.
// Записи создаются контроллером при одобрении и никогда не обновляются.
type DocumentRepository interface {
	// Create создаёт запись одобренного документа.
	Create(ctx context.Context, d *model.ApprovedDocument) error
	// GetByID возвращает документ по UUID.
	GetByID(ctx context.Context, id string) (*model.ApprovedDocument, error)
	// ListForUser возвращает документы пользователя.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*model.ApprovedDocument, error)
	// CountForUser возвращает количество документов пользователя.
	CountForUser(ctx context.Context, userID string) (int, error)
}

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий одобренных документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, d *model.ApprovedDocument) error {
	query := `
		INSERT INTO approved_documents (id, user_id, title, filename, path, mime_type, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.UserID, d.Title, d.Filename, d.Path, d.MimeType, d.Size,
	).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id string) (*model.ApprovedDocument, error) {
	query := `
		SELECT id, user_id, title, filename, path, mime_type, size, created_at
		FROM approved_documents
		WHERE id = $1`

	d := &model.ApprovedDocument{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Title, &d.Filename, &d.Path, &d.MimeType, &d.Size, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

func (r *documentRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*model.ApprovedDocument, error) {
	query := `
		SELECT id, user_id, title, filename, path, mime_type, size, created_at
		FROM approved_documents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	defer rows.Close()

	var result []*model.ApprovedDocument
	for rows.Next() {
		d := &model.ApprovedDocument{}
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Title, &d.Filename, &d.Path, &d.MimeType, &d.Size, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *documentRepo) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM approved_documents WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}
	return count, nil
}
