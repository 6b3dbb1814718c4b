// Пакет model — доменные модели портала онбординга.
package model

import "time"

// RequestStatus — статус запроса документа.
type RequestStatus string

const (
	// StatusPending — запрос создан, ожидает обработки.
	StatusPending RequestStatus = "pending"
	// StatusInProgress — администратор взял запрос в работу.
	StatusInProgress RequestStatus = "in_progress"
	// StatusCompleted — запрос одобрен (терминальный статус).
	StatusCompleted RequestStatus = "completed"
	// StatusRejected — запрос отклонён (терминальный статус).
	StatusRejected RequestStatus = "rejected"
)

// IsTerminal возвращает true для терминальных статусов (completed, rejected).
// Из терминального статуса переходы запрещены.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// IsValid проверяет, что статус — одно из допустимых значений.
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// DocumentRequest — запрос администратора на предоставление документа.
// Жизненный цикл: pending → in_progress → {completed, rejected}.
//
// Инвариант: HasAttachment == true тогда и только тогда, когда FilePath != "".
type DocumentRequest struct {
	// ID — UUID запроса (неизменяемый).
	ID string
	// UserID — владелец запроса (неизменяемый).
	UserID string
	// Title — заголовок запроса.
	Title string
	// Message — сообщение администратора при создании запроса.
	Message string
	// DocumentType — тип запрашиваемого документа (свободная форма).
	DocumentType string
	// Status — текущий статус запроса.
	Status RequestStatus

	// HasAttachment — признак наличия загруженного файла.
	HasAttachment bool
	// FilePath — относительный путь файла в хранилище.
	// До одобрения указывает во временную зону, после — в постоянную.
	FilePath string
	// FileName — оригинальное имя загруженного файла.
	FileName string
	// FileSize — размер файла в байтах.
	FileSize int64
	// FileMimeType — MIME-тип файла.
	FileMimeType string

	// AdminMessage — ответ администратора (устанавливается один раз).
	AdminMessage string
	// RespondedBy — идентификатор ответившего администратора.
	RespondedBy string
	// RespondedByName — имя ответившего администратора.
	RespondedByName string
	// RespondedAt — время ответа.
	RespondedAt *time.Time

	// CreatedAt — время создания (неизменяемое).
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time
}
