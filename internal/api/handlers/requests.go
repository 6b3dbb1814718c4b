// requests.go — обработчики /api/v1/requests endpoints.
// Создание запроса, загрузка вложения, утверждение/отклонение, скачивание.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/domain/model"
	"github.com/mkosareva/docportal/internal/repository"
	"github.com/mkosareva/docportal/internal/service"
	"github.com/mkosareva/docportal/internal/storage/custody"
)

// requestResponse — DTO запроса документа для API.
type requestResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Title           string `json:"title"`
	Message         string `json:"message,omitempty"`
	DocumentType    string `json:"document_type"`
	Status          string `json:"status"`
	HasAttachment   bool   `json:"has_attachment"`
	FileName        string `json:"file_name,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	FileMimeType    string `json:"file_mime_type,omitempty"`
	AdminMessage    string `json:"admin_message,omitempty"`
	RespondedByName string `json:"responded_by_name,omitempty"`
	RespondedAt     string `json:"responded_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// mapRequest переводит доменную модель в DTO.
// Внутренний file_path наружу не отдаётся.
func mapRequest(req *model.DocumentRequest) requestResponse {
	resp := requestResponse{
		ID:              req.ID,
		UserID:          req.UserID,
		Title:           req.Title,
		Message:         req.Message,
		DocumentType:    req.DocumentType,
		Status:          string(req.Status),
		HasAttachment:   req.HasAttachment,
		FileName:        req.FileName,
		FileSize:        req.FileSize,
		FileMimeType:    req.FileMimeType,
		AdminMessage:    req.AdminMessage,
		RespondedByName: req.RespondedByName,
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if req.RespondedAt != nil {
		resp.RespondedAt = req.RespondedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// mapRequests переводит срез доменных моделей в DTO.
func mapRequests(reqs []*model.DocumentRequest) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, mapRequest(req))
	}
	return out
}

// createRequestBody — тело POST /api/v1/requests.
type createRequestBody struct {
	Title        string `json:"title"`
	Message      string `json:"message"`
	DocumentType string `json:"document_type"`
}

// CreateRequest — POST /api/v1/requests.
// Создаёт запрос документа от имени аутентифицированного пользователя.
func (h *APIHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, apierrors.GlobalField, "Некорректный JSON: "+err.Error())
		return
	}

	fields := map[string]string{}
	if body.Title == "" {
		fields["title"] = "Заголовок обязателен"
	}
	if body.DocumentType == "" {
		fields["document_type"] = "Тип документа обязателен"
	}
	if len(fields) > 0 {
		apierrors.ValidationErrors(w, fields)
		return
	}

	req, err := h.lifecycle.CreateRequest(r.Context(), session.UserID, body.Title, body.Message, body.DocumentType)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, apierrors.GlobalField, err.Error())
			return
		}
		h.logger.Error("Ошибка создания запроса", "user_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка создания запроса")
		return
	}

	writeSuccess(w, http.StatusCreated, mapRequest(req))
}

// ListRequests — GET /api/v1/requests.
// Пользователь видит свои запросы; администратор — все, с фильтрами
// status и user_id.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	limit, offset := paginationParams(r)

	if !session.IsAdmin() {
		reqs, err := h.lifecycle.ListForUser(r.Context(), session.UserID, limit, offset)
		if err != nil {
			h.logger.Error("Ошибка получения запросов пользователя", "user_id", session.UserID, "error", err)
			apierrors.InternalError(w, "Ошибка получения списка запросов")
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"requests": mapRequests(reqs)})
		return
	}

	filters := repository.RequestListFilters{}
	if status := r.URL.Query().Get("status"); status != "" {
		if !model.RequestStatus(status).IsValid() {
			apierrors.ValidationError(w, "status", "Недопустимый статус: "+status)
			return
		}
		filters.Status = &status
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filters.UserID = &userID
	}

	reqs, total, err := h.lifecycle.ListAll(r.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка запросов", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка запросов")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"requests": mapRequests(reqs),
		"total":    total,
	})
}

// GetRequest — GET /api/v1/requests/{id}.
func (h *APIHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")
	req, err := h.lifecycle.GetRequest(r.Context(), id, session.UserID, session.IsAdmin())
	if err != nil {
		h.writeRequestError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusOK, mapRequest(req))
}

// UploadAttachment — POST /api/v1/requests/{id}/attachment.
// Принимает multipart/form-data с полем file.
func (h *APIHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	// Потолок тела запроса: файл + служебные поля multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		apierrors.ValidationError(w, "file", "Некорректный multipart запрос: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "file", "Поле file обязательно")
		return
	}
	defer file.Close()

	req, err := h.lifecycle.UploadAttachment(
		r.Context(), id, session.UserID,
		file, header.Filename, header.Header.Get("Content-Type"),
		h.maxFileSize,
	)
	if err != nil {
		switch {
		case errors.Is(err, custody.ErrFileTooLarge):
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxFileSize))
		case errors.Is(err, custody.ErrInvalidFileType):
			apierrors.InvalidFileType(w, "Недопустимый тип файла")
		case errors.Is(err, custody.ErrEmptyFile):
			apierrors.ValidationError(w, "file", "Пустой файл")
		case errors.Is(err, service.ErrRegistrationFailed):
			apierrors.StorageError(w, "Не удалось зарегистрировать файл, попробуйте ещё раз")
		default:
			h.writeRequestError(w, id, err)
		}
		return
	}

	writeSuccess(w, http.StatusOK, mapRequest(req))
}

// adminActionBody — тело approve/reject.
type adminActionBody struct {
	Message string `json:"message"`
}

// ApproveRequest — POST /api/v1/requests/{id}/approve.
// Доступ: admin. Повторное утверждение завершённого запроса возвращает
// текущее финальное состояние.
func (h *APIHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	var body adminActionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, apierrors.GlobalField, "Некорректный JSON: "+err.Error())
		return
	}

	req, err := h.lifecycle.Approve(r.Context(), id, session.UserID, session.Name, body.Message)
	if err != nil {
		if errors.Is(err, service.ErrMissingApprover) {
			apierrors.ValidationError(w, apierrors.GlobalField, "В сессии отсутствует имя администратора")
			return
		}
		h.writeRequestError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusOK, mapRequest(req))
}

// RejectRequest — POST /api/v1/requests/{id}/reject.
// Доступ: admin.
func (h *APIHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	var body adminActionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, apierrors.GlobalField, "Некорректный JSON: "+err.Error())
		return
	}

	req, err := h.lifecycle.Reject(r.Context(), id, session.UserID, session.Name, body.Message)
	if err != nil {
		if errors.Is(err, service.ErrMissingApprover) {
			apierrors.ValidationError(w, apierrors.GlobalField, "В сессии отсутствует имя администратора")
			return
		}
		h.writeRequestError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusOK, mapRequest(req))
}

// SetRequestStatus — POST /api/v1/requests/{id}/status.
// Переводит запрос из pending в in_progress. Доступ: admin.
func (h *APIHandler) SetRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.lifecycle.SetInProgress(r.Context(), id)
	if err != nil {
		h.writeRequestError(w, id, err)
		return
	}

	writeSuccess(w, http.StatusOK, mapRequest(req))
}

// DownloadAttachment — GET /api/v1/requests/{id}/download.
// Отдаёт файл запроса с санитизированным именем в Content-Disposition.
// Пользователь скачивает только свои файлы, администратор — любые.
func (h *APIHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	result, err := h.lifecycle.AuthorizeDownload(r.Context(), id, session.UserID, session.Name, session.IsAdmin())
	if err != nil {
		h.writeRequestError(w, id, err)
		return
	}
	defer result.File.Close()

	serveDownload(w, r, result)
}

// serveDownload отдаёт открытый файл с заголовками скачивания.
func serveDownload(w http.ResponseWriter, r *http.Request, result *service.DownloadResult) {
	mimeType := result.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", result.Size))
	}

	_, _ = io.Copy(w, result.File)
}

// writeRequestError маппит ошибки сервисного слоя в HTTP-ответы.
func (h *APIHandler) writeRequestError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Запрос не найден")
	case errors.Is(err, service.ErrFileMissing):
		apierrors.NotFound(w, "Файл не найден в хранилище")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Доступ к чужому запросу запрещён")
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, apierrors.GlobalField, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса", "request_id", requestID, "error", err)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
