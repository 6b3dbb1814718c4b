// Пакет errors — конструкторы стандартных ошибок портала документов.
// Единый формат: {"success": false, "error": {"code": "...", "fields": {...}}}.
// Ключ "global" используется для ошибок, не привязанных к конкретному полю.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeStorageError    = "STORAGE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// GlobalField — ключ для ошибок, не относящихся к конкретному полю формы.
const GlobalField = "global"

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

// errorDetail — детали ошибки. Fields содержит сообщения по именам полей,
// внутренние детали (стектрейсы, пути файлов) сюда не попадают.
type errorDetail struct {
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

// WriteError записывает ответ ошибки в стандартном формате портала.
// statusCode — HTTP статус-код, code — машиночитаемый код,
// fields — сообщения по именам полей.
func WriteError(w http.ResponseWriter, statusCode int, code string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Error: errorDetail{
			Code:   code,
			Fields: fields,
		},
	})
}

// global оборачивает одно сообщение в карту с ключом "global".
func global(message string) map[string]string {
	return map[string]string{GlobalField: message}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректное значение конкретного поля.
func ValidationError(w http.ResponseWriter, field, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, map[string]string{field: message})
}

// ValidationErrors — 400 несколько некорректных полей разом.
func ValidationErrors(w http.ResponseWriter, fields map[string]string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, fields)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, global(message))
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, global(message))
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, global(message))
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, global(message))
}

// FileTooLarge — 413 файл превышает допустимый размер.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, map[string]string{"file": message})
}

// InvalidFileType — 400 недопустимый тип файла.
func InvalidFileType(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidFileType, map[string]string{"file": message})
}

// StorageError — 500 ошибка файлового хранилища.
func StorageError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStorageError, global(message))
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, global(message))
}
