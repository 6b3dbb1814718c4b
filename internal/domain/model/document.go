package model

import "time"

// ApprovedDocument — одобренный документ в постоянном хранилище.
// Создаётся контроллером жизненного цикла при одобрении запроса
// и после этого никогда не изменяется (неизменяемая запись-артефакт).
type ApprovedDocument struct {
	// ID — UUID документа.
	ID string
	// UserID — владелец документа (совпадает с user_id запроса).
	UserID string
	// Title — заголовок (наследуется от запроса).
	Title string
	// Filename — оригинальное имя файла.
	Filename string
	// Path — относительный путь в постоянной зоне хранилища.
	Path string
	// MimeType — MIME-тип файла.
	MimeType string
	// Size — размер файла в байтах.
	Size int64
	// CreatedAt — время создания записи.
	CreatedAt time.Time
}
