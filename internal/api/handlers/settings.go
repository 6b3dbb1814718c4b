// settings.go — обработчики /api/v1/settings endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/repository"
	"github.com/mkosareva/docportal/internal/service"
)

// settingResponse — DTO пользовательской настройки.
type settingResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

func mapSetting(s repository.UserSetting) settingResponse {
	return settingResponse{
		Key:       s.Key,
		Value:     s.Value,
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListSettings — GET /api/v1/settings.
// Возвращает все сохранённые настройки пользователя и собранные
// предпочтения уведомлений (с умолчаниями).
func (h *APIHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	settings, err := h.settings.List(r.Context(), session.UserID)
	if err != nil {
		h.logger.Error("Ошибка получения настроек", "user_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка получения настроек")
		return
	}

	prefs, err := h.settings.GetNotificationPrefs(r.Context(), session.UserID)
	if err != nil {
		h.logger.Error("Ошибка получения предпочтений уведомлений", "user_id", session.UserID, "error", err)
		apierrors.InternalError(w, "Ошибка получения настроек")
		return
	}

	out := make([]settingResponse, 0, len(settings))
	for _, s := range settings {
		out = append(out, mapSetting(s))
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"settings":      out,
		"notifications": prefs,
	})
}

// setSettingBody — тело PUT /api/v1/settings/{key}.
type setSettingBody struct {
	Value string `json:"value"`
}

// SetSetting — PUT /api/v1/settings/{key}.
func (h *APIHandler) SetSetting(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	key := chi.URLParam(r, "key")

	var body setSettingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, apierrors.GlobalField, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), session.UserID, key, body.Value); err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, key, err.Error())
			return
		}
		h.logger.Error("Ошибка сохранения настройки", "key", key, "error", err)
		apierrors.InternalError(w, "Ошибка сохранения настройки")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"key": key, "value": body.Value})
}

// DeleteSetting — DELETE /api/v1/settings/{key}.
// Удаление возвращает настройку к умолчанию.
func (h *APIHandler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		apierrors.Unauthorized(w, "Отсутствует сессия")
		return
	}

	key := chi.URLParam(r, "key")

	if err := h.settings.Delete(r.Context(), session.UserID, key); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Настройка не найдена")
			return
		}
		h.logger.Error("Ошибка удаления настройки", "key", key, "error", err)
		apierrors.InternalError(w, "Ошибка удаления настройки")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
}
