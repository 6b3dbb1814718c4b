package model

import "time"

// EventType — тип события жизненного цикла запроса.
type EventType string

const (
	// EventNewRequest — создан новый запрос документа.
	EventNewRequest EventType = "new_request"
	// EventStatusUpdate — статус запроса изменился.
	EventStatusUpdate EventType = "status_update"
	// EventNewMessage — новое сообщение по запросу.
	EventNewMessage EventType = "new_message"
)

// IsValid проверяет, что тип события — одно из допустимых значений.
func (e EventType) IsValid() bool {
	switch e {
	case EventNewRequest, EventStatusUpdate, EventNewMessage:
		return true
	}
	return false
}

// AdminNotification — уведомление администратора о событии жизненного цикла.
// Broadcast-уведомление материализуется в отдельные строки для каждого
// администратора на момент записи (фиксированный снимок, не динамический список).
type AdminNotification struct {
	// ID — UUID уведомления.
	ID string
	// RecipientID — идентификатор администратора-получателя.
	RecipientID string
	// EventType — тип события.
	EventType EventType
	// RequestID — UUID связанного запроса документа.
	RequestID string
	// Payload — краткий контекст события (заголовок запроса, статус).
	Payload string
	// IsRead — признак прочтения.
	IsRead bool
	// CreatedAt — время создания.
	CreatedAt time.Time
}
