// lifecycle.go — контроллер жизненного цикла запросов документов.
// Состояния: pending → in_progress → {completed, rejected}.
// Связывает файловое хранилище (custody) и репозиторий: staging при загрузке,
// promotion при утверждении, компенсирующее удаление при сбое регистрации.
// Файловая система и БД не разделяют транзакцию: перемещение файла —
// необратимая нога операции, запись в БД — best-effort после неё,
// повторное утверждение идемпотентно (отсутствующий staged-файл допустим).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mkosareva/docportal/internal/domain/model"
	"github.com/mkosareva/docportal/internal/repository"
	"github.com/mkosareva/docportal/internal/storage/custody"
)

// LifecycleService — бизнес-логика запросов документов.
type LifecycleService struct {
	requests  repository.RequestRepository
	documents repository.DocumentRepository
	store     *custody.Store
	notify    *NotifyService
	cache     *CacheService // может быть nil
	logger    *slog.Logger
}

// NewLifecycleService создаёт контроллер жизненного цикла.
// cache может быть nil — тогда каждое чтение идёт в БД.
func NewLifecycleService(
	requests repository.RequestRepository,
	documents repository.DocumentRepository,
	store *custody.Store,
	notify *NotifyService,
	cache *CacheService,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		requests:  requests,
		documents: documents,
		store:     store,
		notify:    notify,
		cache:     cache,
		logger:    logger.With(slog.String("component", "lifecycle_service")),
	}
}

// CreateRequest создаёт новый запрос документа от пользователя
// и рассылает администраторам уведомление new_request.
func (s *LifecycleService) CreateRequest(ctx context.Context, userID, title, message, documentType string) (*model.DocumentRequest, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: не указан пользователь", ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: не указан заголовок запроса", ErrValidation)
	}
	if strings.TrimSpace(documentType) == "" {
		return nil, fmt.Errorf("%w: не указан тип документа", ErrValidation)
	}

	req := &model.DocumentRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        strings.TrimSpace(title),
		Message:      strings.TrimSpace(message),
		DocumentType: documentType,
		Status:       model.StatusPending,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Сбой рассылки не откатывает создание запроса
	if err := s.notify.Broadcast(ctx, model.EventNewRequest, req.ID, req.Title); err != nil {
		s.logger.Error("Ошибка рассылки уведомления new_request",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Создан запрос документа",
		slog.String("request_id", req.ID),
		slog.String("user_id", userID),
		slog.String("document_type", documentType),
	)

	return req, nil
}

// GetRequest возвращает запрос по идентификатору.
// Пользователь видит только свои запросы, администратор — любые.
func (s *LifecycleService) GetRequest(ctx context.Context, requestID, requestingUserID string, admin bool) (*model.DocumentRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !admin && req.UserID != requestingUserID {
		return nil, ErrForbidden
	}
	return req, nil
}

// ListForUser возвращает запросы пользователя (новые — первыми).
func (s *LifecycleService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*model.DocumentRequest, error) {
	return s.requests.ListForUser(ctx, userID, limit, offset)
}

// ListAll возвращает запросы по фильтрам (для администраторов).
func (s *LifecycleService) ListAll(ctx context.Context, filters repository.RequestListFilters, limit, offset int) ([]*model.DocumentRequest, int, error) {
	reqs, err := s.requests.ListAll(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.requests.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// UploadAttachment принимает файл пользователя во временную зону хранилища
// и регистрирует его метаданные в запросе.
// Если регистрация в БД не удалась после успешного staging — staged-файл
// удаляется компенсирующим действием, чтобы не оставить бесхозный blob.
func (s *LifecycleService) UploadAttachment(
	ctx context.Context,
	requestID, userID string,
	reader io.Reader,
	originalFilename, contentType string,
	maxSize int64,
) (*model.DocumentRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrForbidden
	}
	if req.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: запрос уже завершён", ErrValidation)
	}

	staged, err := s.store.Stage(userID, req.DocumentType, requestID, reader, originalFilename, contentType, maxSize)
	if err != nil {
		return nil, err
	}

	if err := s.requests.AttachFile(ctx, requestID, staged.RelPath, originalFilename, staged.Size, staged.MimeType); err != nil {
		// Компенсация: БД не приняла метаданные, staged-файл больше никому не нужен
		if delErr := s.store.Delete(staged.RelPath); delErr != nil {
			s.logger.Error("Не удалось удалить staged-файл при компенсации",
				slog.String("request_id", requestID),
				slog.String("path", staged.RelPath),
				slog.String("error", delErr.Error()),
			)
		}
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return nil, fmt.Errorf("%w: запрос уже завершён", ErrValidation)
		}
		s.logger.Error("Регистрация файла в БД не удалась, staged-файл удалён",
			slog.String("request_id", requestID),
			slog.String("user_id", userID),
			slog.String("path", staged.RelPath),
			slog.String("error", err.Error()),
		)
		return nil, ErrRegistrationFailed
	}

	s.invalidate(requestID)

	if err := s.notify.Broadcast(ctx, model.EventNewMessage, requestID,
		fmt.Sprintf("Загружен файл %s", originalFilename)); err != nil {
		s.logger.Error("Ошибка рассылки уведомления о загрузке файла",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}

	return s.loadFresh(ctx, requestID)
}

// Approve утверждает запрос: promotion staged-файла в постоянную зону,
// создание ApprovedDocument, перевод в completed, уведомление status_update.
// Повторное утверждение уже завершённого запроса — no-op: возвращается
// текущее финальное состояние без ошибки.
func (s *LifecycleService) Approve(ctx context.Context, requestID, adminID, adminName, adminMessage string) (*model.DocumentRequest, error) {
	if adminID == "" || adminName == "" {
		return nil, ErrMissingApprover
	}

	req, err := s.loadFresh(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Уже завершён — возвращаем текущее финальное состояние
	if req.Status.IsTerminal() {
		s.logger.Info("Запрос уже завершён, утверждение пропущено",
			slog.String("request_id", requestID),
			slog.String("status", string(req.Status)),
		)
		return req, nil
	}

	finalPath := ""
	if req.HasAttachment {
		promoted, promoteErr := s.store.Promote(req.FilePath, req.UserID, req.FileName)
		switch {
		case promoteErr == nil:
			finalPath = promoted
		case errors.Is(promoteErr, custody.ErrMissingSource):
			// Файл уже перемещён (повтор после сбоя) или утерян:
			// метаданные записи остаются авторитетными, утверждение продолжается
			s.logger.Warn("Staged-файл отсутствует, используется текущий file_path",
				slog.String("request_id", requestID),
				slog.String("path", req.FilePath),
			)
		default:
			return nil, fmt.Errorf("перемещение файла в постоянную зону: %w", promoteErr)
		}

		// Best-effort: сбой создания ApprovedDocument не откатывает promotion,
		// слепой обратный rename опаснее отсутствующей вторичной записи
		docPath := finalPath
		if docPath == "" {
			docPath = req.FilePath
		}
		doc := &model.ApprovedDocument{
			ID:       uuid.NewString(),
			UserID:   req.UserID,
			Title:    req.Title,
			Filename: req.FileName,
			Path:     docPath,
			MimeType: req.FileMimeType,
			Size:     req.FileSize,
		}
		if docErr := s.documents.Create(ctx, doc); docErr != nil {
			s.logger.Error("Не удалось создать запись ApprovedDocument, утверждение продолжается",
				slog.String("request_id", requestID),
				slog.String("user_id", req.UserID),
				slog.String("path", docPath),
				slog.String("error", docErr.Error()),
			)
		}
	}

	updated, err := s.requests.ApproveAndSetFile(ctx, requestID, finalPath, adminMessage, adminID, adminName)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			// Гонка двух администраторов: проигравший видит текущее финальное состояние
			s.logger.Info("Запрос завершён конкурентно, утверждение — no-op",
				slog.String("request_id", requestID),
			)
			s.invalidate(requestID)
			return s.loadFresh(ctx, requestID)
		}
		// Фатально: файл мог быть перемещён, а статус остался прежним.
		// Рассинхронизация видна по file_path в постоянной зоне при незавершённом
		// статусе и устраняется повторным утверждением.
		s.logger.Error("Запись перехода completed не удалась",
			slog.String("request_id", requestID),
			slog.String("user_id", req.UserID),
			slog.String("final_path", finalPath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.invalidate(requestID)

	if err := s.notify.Broadcast(ctx, model.EventStatusUpdate, requestID,
		fmt.Sprintf("Запрос %q утверждён", updated.Title)); err != nil {
		s.logger.Error("Ошибка рассылки уведомления status_update",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Запрос утверждён",
		slog.String("request_id", requestID),
		slog.String("admin_id", adminID),
		slog.Bool("has_attachment", updated.HasAttachment),
	)

	return updated, nil
}

// Reject отклоняет запрос. Файловая система не затрагивается:
// только статус и метаданные ответа администратора.
// Повторное отклонение завершённого запроса — no-op, как и в Approve.
func (s *LifecycleService) Reject(ctx context.Context, requestID, adminID, adminName, adminMessage string) (*model.DocumentRequest, error) {
	if adminID == "" || adminName == "" {
		return nil, ErrMissingApprover
	}

	req, err := s.loadFresh(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		s.logger.Info("Запрос уже завершён, отклонение пропущено",
			slog.String("request_id", requestID),
			slog.String("status", string(req.Status)),
		)
		return req, nil
	}

	updated, err := s.requests.Reject(ctx, requestID, adminMessage, adminID, adminName)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			s.invalidate(requestID)
			return s.loadFresh(ctx, requestID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.invalidate(requestID)

	if err := s.notify.Broadcast(ctx, model.EventStatusUpdate, requestID,
		fmt.Sprintf("Запрос %q отклонён", updated.Title)); err != nil {
		s.logger.Error("Ошибка рассылки уведомления status_update",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}

	return updated, nil
}

// SetInProgress переводит запрос из pending в in_progress.
// Если запрос уже не pending — возвращает текущее состояние без ошибки.
func (s *LifecycleService) SetInProgress(ctx context.Context, requestID string) (*model.DocumentRequest, error) {
	updated, err := s.requests.SetInProgress(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return s.loadFresh(ctx, requestID)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.invalidate(requestID)
	return updated, nil
}

// DownloadResult — открытый файл и метаданные для отдачи клиенту.
type DownloadResult struct {
	// File — открытый файл; закрывает вызывающая сторона.
	File *os.File
	// Filename — санитизированное имя для Content-Disposition.
	Filename string
	// MimeType — MIME-тип содержимого.
	MimeType string
	// Size — размер файла в байтах.
	Size int64
}

// AuthorizeDownload проверяет право на скачивание файла запроса и открывает его.
// Пользователь скачивает только свои запросы; администратор (admin=true) — любые.
// requesterName — полное имя владельца для санитизированного имени файла.
func (s *LifecycleService) AuthorizeDownload(ctx context.Context, requestID, requestingUserID, requesterName string, admin bool) (*DownloadResult, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !admin && req.UserID != requestingUserID {
		return nil, ErrForbidden
	}
	if req.FilePath == "" || req.FileName == "" {
		return nil, ErrNotFound
	}

	f, err := s.store.OpenRead(req.FilePath)
	if err != nil {
		if errors.Is(err, custody.ErrNotFound) {
			return nil, ErrFileMissing
		}
		return nil, fmt.Errorf("открытие файла: %w", err)
	}

	return &DownloadResult{
		File:     f,
		Filename: DownloadFilename(req.Title, requesterName, req.FileName),
		MimeType: req.FileMimeType,
		Size:     req.FileSize,
	}, nil
}

// ListDocuments возвращает утверждённые документы пользователя.
func (s *LifecycleService) ListDocuments(ctx context.Context, userID string, limit, offset int) ([]*model.ApprovedDocument, int, error) {
	docs, err := s.documents.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.documents.CountForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// OpenDocument открывает утверждённый документ для скачивания.
// Пользователь скачивает только свои документы; администратор — любые.
func (s *LifecycleService) OpenDocument(ctx context.Context, documentID, requestingUserID string, admin bool) (*DownloadResult, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !admin && doc.UserID != requestingUserID {
		return nil, ErrForbidden
	}

	f, err := s.store.OpenRead(doc.Path)
	if err != nil {
		if errors.Is(err, custody.ErrNotFound) {
			return nil, ErrFileMissing
		}
		return nil, fmt.Errorf("открытие файла: %w", err)
	}

	return &DownloadResult{
		File:     f,
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		Size:     doc.Size,
	}, nil
}

// --- Вспомогательные функции ---

// loadRequest возвращает запрос, используя кэш при наличии.
func (s *LifecycleService) loadRequest(ctx context.Context, requestID string) (*model.DocumentRequest, error) {
	if s.cache != nil {
		if req, ok := s.cache.Get(requestID); ok {
			return req, nil
		}
	}
	return s.loadFresh(ctx, requestID)
}

// loadFresh читает запрос из БД, минуя кэш, и обновляет кэш.
func (s *LifecycleService) loadFresh(ctx context.Context, requestID string) (*model.DocumentRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(requestID, req)
	}
	return req, nil
}

// invalidate удаляет запрос из кэша после мутации.
func (s *LifecycleService) invalidate(requestID string) {
	if s.cache != nil {
		s.cache.Delete(requestID)
	}
}

// filenameAllowed оставляет только буквы, цифры и пробелы.
var filenameAllowed = regexp.MustCompile(`[^A-Za-z0-9 ]+`)

// whitespaceRuns — последовательности пробельных символов.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// DownloadFilename строит санитизированное имя файла для скачивания:
// "<заголовок> - <имя владельца><расширение исходного файла>".
// Из заголовка и имени удаляются все символы вне [A-Za-z0-9 ],
// последовательности пробелов сжимаются в один.
func DownloadFilename(title, ownerName, originalFilename string) string {
	base := sanitizeNamePart(title)
	owner := sanitizeNamePart(ownerName)
	if owner != "" {
		base = base + " - " + owner
	}
	if base == "" {
		base = "document"
	}
	return base + filepath.Ext(originalFilename)
}

// sanitizeNamePart чистит одну часть имени файла.
func sanitizeNamePart(s string) string {
	s = filenameAllowed.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
