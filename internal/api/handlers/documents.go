// documents.go — обработчики /api/v1/documents endpoints.
// Одобренные документы: список владельца и скачивание артефакта.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/domain/model"
)

// documentResponse — DTO одобренного документа.
type documentResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

// mapDocument переводит доменную модель в DTO.
// Путь в хранилище наружу не отдаётся.
func mapDocument(doc *model.ApprovedDocument) documentResponse {
	return documentResponse{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Title:     doc.Title,
		Filename:  doc.Filename,
		MimeType:  doc.MimeType,
		Size:      doc.Size,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListDocuments — GET /api/v1/documents.
// Возвращает одобренные документы текущего пользователя.
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	limit, offset := paginationParams(r)

	docs, total, err := h.lifecycle.ListDocuments(r.Context(), session.UserID, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения списка документов", "user_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка получения списка документов")
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, mapDocument(doc))
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"documents": out,
		"total":     total,
	})
}

// DownloadDocument — GET /api/v1/documents/{id}/download.
// Пользователь скачивает свой документ, администратор — любой.
func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	id := chi.URLParam(r, "id")

	result, err := h.lifecycle.OpenDocument(r.Context(), id, session.UserID, session.IsAdmin())
	if err != nil {
		h.writeRequestError(w, id, err)
		return
	}
	defer result.File.Close()

	serveDownload(w, r, result)
}
