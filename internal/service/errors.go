// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — доступ запрещён (нарушение владения).
	ErrForbidden = errors.New("доступ запрещён")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrMissingApprover — отсутствует идентификатор или имя администратора.
	ErrMissingApprover = errors.New("не указан администратор, обрабатывающий запрос")
	// ErrRegistrationFailed — файл принят в хранилище, но запись в БД не удалась.
	// Загруженный файл удалён компенсирующим действием.
	ErrRegistrationFailed = errors.New("не удалось зарегистрировать файл в базе данных")
	// ErrPersistence — ошибка записи в базу данных.
	ErrPersistence = errors.New("ошибка сохранения в базе данных")
	// ErrFileMissing — файл отсутствует в хранилище.
	ErrFileMissing = errors.New("файл отсутствует в хранилище")
)
