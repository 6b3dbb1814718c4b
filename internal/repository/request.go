package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mkosareva/docportal/internal/domain/model"
)

// requestColumns — список колонок таблицы document_requests для SELECT.
const requestColumns = `id, user_id, title, message, document_type, status,
	has_attachment, file_path, file_name, file_size, file_mime_type,
	admin_message, responded_by, responded_by_name, responded_at,
	created_at, updated_at`

// RequestRepository — интерфейс для таблицы document_requests.
// Все записи — одиночные UPDATE; межстрочные транзакции не требуются,
// поскольку каждый запрос принадлежит ровно одному пользователю.
type RequestRepository interface {
	// Create создаёт новый запрос документа.
	Create(ctx context.Context, r *model.DocumentRequest) error
	// GetByID возвращает запрос по UUID.
	GetByID(ctx context.Context, id string) (*model.DocumentRequest, error)
	// AttachFile записывает метаданные загруженного файла.
	// Переход выполняется только для нетерминальных запросов.
	AttachFile(ctx context.Context, id, path, filename string, size int64, mimeType string) error
	// ApproveAndSetFile переводит запрос в completed одним условным UPDATE.
	// finalPath == "" оставляет file_path без изменений.
	// Ноль затронутых строк — ErrAlreadyFinalized (гонка двух администраторов).
	ApproveAndSetFile(ctx context.Context, id, finalPath, adminMessage, adminID, adminName string) (*model.DocumentRequest, error)
	// Reject переводит запрос в rejected (файловая система не затрагивается).
	Reject(ctx context.Context, id, adminMessage, adminID, adminName string) (*model.DocumentRequest, error)
	// SetInProgress переводит pending-запрос в in_progress.
	SetInProgress(ctx context.Context, id string) (*model.DocumentRequest, error)
	// ListForUser возвращает запросы пользователя.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*model.DocumentRequest, error)
	// ListAll возвращает все запросы с фильтрацией (для администраторов).
	ListAll(ctx context.Context, filters RequestListFilters, limit, offset int) ([]*model.DocumentRequest, error)
	// Count возвращает количество запросов с фильтрацией.
	Count(ctx context.Context, filters RequestListFilters) (int, error)
}

// RequestListFilters — фильтры для списка запросов.
type RequestListFilters struct {
	Status *string
	UserID *string
}

// requestRepo — реализация RequestRepository.
type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий запросов документов.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) Create(ctx context.Context, req *model.DocumentRequest) error {
	query := `
		INSERT INTO document_requests (id, user_id, title, message, document_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.UserID, req.Title, req.Message, req.DocumentType, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запрос с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.DocumentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_requests WHERE id = $1`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения запроса: %w", err)
	}
	return req, nil
}

func (r *requestRepo) AttachFile(ctx context.Context, id, path, filename string, size int64, mimeType string) error {
	query := `
		UPDATE document_requests
		SET file_path = $2, file_name = $3, file_size = $4, file_mime_type = $5,
			has_attachment = TRUE, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'rejected')`

	tag, err := r.db.Exec(ctx, query, id, path, filename, size, mimeType)
	if err != nil {
		return fmt.Errorf("ошибка записи метаданных файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *requestRepo) ApproveAndSetFile(ctx context.Context, id, finalPath, adminMessage, adminID, adminName string) (*model.DocumentRequest, error) {
	// COALESCE(NULLIF(...)) оставляет существующий file_path при пустом finalPath
	// (одобрение без вложения или staged-файл уже продвинут ранее).
	query := fmt.Sprintf(`
		UPDATE document_requests
		SET status = 'completed',
			file_path = COALESCE(NULLIF($2, ''), file_path),
			admin_message = $3, responded_by = $4, responded_by_name = $5,
			responded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'rejected')
		RETURNING %s`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, finalPath, adminMessage, adminID, adminName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyFinalized
		}
		return nil, fmt.Errorf("ошибка одобрения запроса: %w", err)
	}
	return req, nil
}

func (r *requestRepo) Reject(ctx context.Context, id, adminMessage, adminID, adminName string) (*model.DocumentRequest, error) {
	query := fmt.Sprintf(`
		UPDATE document_requests
		SET status = 'rejected',
			admin_message = $2, responded_by = $3, responded_by_name = $4,
			responded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'rejected')
		RETURNING %s`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, adminMessage, adminID, adminName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyFinalized
		}
		return nil, fmt.Errorf("ошибка отклонения запроса: %w", err)
	}
	return req, nil
}

func (r *requestRepo) SetInProgress(ctx context.Context, id string) (*model.DocumentRequest, error) {
	query := fmt.Sprintf(`
		UPDATE document_requests
		SET status = 'in_progress', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING %s`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyFinalized
		}
		return nil, fmt.Errorf("ошибка перевода запроса в работу: %w", err)
	}
	return req, nil
}

func (r *requestRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*model.DocumentRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM document_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, requestColumns)

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения запросов пользователя: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// buildRequestWhere строит WHERE-условие и аргументы для фильтрации запросов.
func buildRequestWhere(filters RequestListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *filters.UserID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *requestRepo) ListAll(ctx context.Context, filters RequestListFilters, limit, offset int) ([]*model.DocumentRequest, error) {
	where, args := buildRequestWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s FROM document_requests
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, requestColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка запросов: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *requestRepo) Count(ctx context.Context, filters RequestListFilters) (int, error) {
	where, args := buildRequestWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM document_requests %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта запросов: %w", err)
	}
	return count, nil
}

// scanRequest сканирует одну строку в модель DocumentRequest.
func scanRequest(row pgx.Row) (*model.DocumentRequest, error) {
	req := &model.DocumentRequest{}
	err := row.Scan(
		&req.ID, &req.UserID, &req.Title, &req.Message, &req.DocumentType, &req.Status,
		&req.HasAttachment, &req.FilePath, &req.FileName, &req.FileSize, &req.FileMimeType,
		&req.AdminMessage, &req.RespondedBy, &req.RespondedByName, &req.RespondedAt,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// collectRequests сканирует все строки результата в срез моделей.
func collectRequests(rows pgx.Rows) ([]*model.DocumentRequest, error) {
	var result []*model.DocumentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}
