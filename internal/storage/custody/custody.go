// Пакет custody — операции с физическими файлами документов на диске.
// Двухзонная раскладка на пользователя: временная зона для загруженных
// вложений ({user_id}/temp) и постоянная зона для одобренных документов
// ({user_id}). Продвижение из временной зоны в постоянную — атомарный rename.
package custody

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ошибки хранилища.
var (
	// ErrInvalidFileType — тип файла вне списка разрешённых.
	ErrInvalidFileType = errors.New("недопустимый тип файла")
	// ErrFileTooLarge — размер файла превышает лимит.
	ErrFileTooLarge = errors.New("файл превышает максимальный размер")
	// ErrEmptyFile — пустое содержимое файла.
	ErrEmptyFile = errors.New("пустой файл")
	// ErrMissingSource — исходный файл для продвижения отсутствует на диске.
	ErrMissingSource = errors.New("исходный файл не найден")
	// ErrNotFound — файл не найден.
	ErrNotFound = errors.New("файл не найден")
	// ErrUnsafePath — путь содержит запрещённые сегменты.
	ErrUnsafePath = errors.New("небезопасный путь")
)

// allowedTypes — разрешённые MIME-типы и их расширения.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
}

// allowedExtensions — разрешённые расширения файлов.
var allowedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
}

// Store — управление физическими файлами документов.
type Store struct {
	// root — корневая директория хранения (DP_STORAGE_ROOT)
	root string
}

// StageResult — результат сохранения файла во временную зону.
type StageResult struct {
	// RelPath — относительный путь файла в корне хранилища
	RelPath string
	// MimeType — нормализованный MIME-тип
	MimeType string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт новый Store. Проверяет и создаёт корневую директорию,
// если она не существует.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корневую директорию %s: %w", root, err)
	}

	return &Store{root: root}, nil
}

// Stage записывает загруженное вложение во временную зону пользователя.
// Формат имени: {document_type}_{request_id}_{timestamp}.{ext}
// Валидация типа и размера выполняется до создания директорий.
//
// Паттерн: .part файл → запись → fsync → atomic rename.
// При ошибке .part файл удаляется.
func (s *Store) Stage(userID, documentType, requestID string, reader io.Reader, originalFilename, contentType string, maxSize int64) (*StageResult, error) {
	mimeType, err := validateType(originalFilename, contentType)
	if err != nil {
		return nil, err
	}

	if err := checkSegment(userID); err != nil {
		return nil, err
	}

	// Директория временной зоны пользователя
	tempDir := filepath.Join(s.root, userID, "temp")
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию %s: %w", tempDir, err)
	}

	name := stagedName(documentType, requestID, originalFilename)
	fullPath := filepath.Join(tempDir, name)
	partPath := fullPath + ".part"

	f, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Запись с контролем лимита: читаем на один байт больше лимита,
	// чтобы отличить файл ровно по границе от превышения.
	size, err := io.Copy(f, io.LimitReader(reader, maxSize+1))
	if err != nil {
		f.Close()
		os.Remove(partPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if size > maxSize {
		f.Close()
		os.Remove(partPath)
		return nil, fmt.Errorf("%w: %d байт при лимите %d", ErrFileTooLarge, size, maxSize)
	}
	if size == 0 {
		f.Close()
		os.Remove(partPath)
		return nil, ErrEmptyFile
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(partPath, fullPath); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &StageResult{
		RelPath:  filepath.Join(userID, "temp", name),
		MimeType: mimeType,
		Size:     size,
	}, nil
}

// Promote атомарно переносит файл из временной зоны в постоянную зону
// пользователя под оригинальным именем. При коллизии имени добавляется
// числовой суффикс (_1, _2, ...) — существующие документы не перезаписываются.
// Если исходный файл отсутствует — ErrMissingSource (вызывающий код решает,
// фатально это или нет).
func (s *Store) Promote(tempRelPath, userID, finalFilename string) (string, error) {
	if err := checkPath(tempRelPath); err != nil {
		return "", err
	}
	if err := checkSegment(userID); err != nil {
		return "", err
	}
	finalFilename = filepath.Base(finalFilename)

	srcPath := filepath.Join(s.root, tempRelPath)
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingSource, tempRelPath)
		}
		return "", fmt.Errorf("ошибка проверки исходного файла %s: %w", tempRelPath, err)
	}

	// Постоянная директория пользователя
	userDir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать директорию пользователя %s: %w", userDir, err)
	}

	// Разрешаем коллизию имени
	finalName := resolveCollision(userDir, finalFilename)
	destPath := filepath.Join(userDir, finalName)

	if err := os.Rename(srcPath, destPath); err != nil {
		return "", fmt.Errorf("ошибка продвижения файла %s: %w", tempRelPath, err)
	}

	return filepath.Join(userID, finalName), nil
}

// OpenRead открывает файл для чтения и возвращает *os.File.
// Вызывающий код обязан закрыть файл.
func (s *Store) OpenRead(relPath string) (*os.File, error) {
	if err := checkPath(relPath); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", relPath, err)
	}

	return f, nil
}

// Delete удаляет файл с диска. Используется как компенсация при неудачной
// записи метаданных после успешного сохранения файла.
// Возвращает nil, если файл уже не существует.
func (s *Store) Delete(relPath string) error {
	if err := checkPath(relPath); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.root, relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", relPath, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (s *Store) Exists(relPath string) bool {
	if checkPath(relPath) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, relPath))
	return err == nil
}

// Root возвращает путь к корневой директории хранилища.
func (s *Store) Root() string {
	return s.root
}

// CheckReady проверяет доступность корневой директории на запись.
// Используется readiness probe.
func (s *Store) CheckReady() (status string, message string) {
	testFile := filepath.Join(s.root, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return "fail", "Хранилище недоступно для записи: " + err.Error()
	}
	_ = os.Remove(testFile)
	return "ok", ""
}

// validateType проверяет MIME-тип и расширение по списку разрешённых.
// Возвращает нормализованный MIME-тип. Вызывается до создания директорий.
func validateType(filename, contentType string) (string, error) {
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	contentType = strings.ToLower(contentType)

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: расширение %q (допустимые: pdf, png, jpg, jpeg)", ErrInvalidFileType, ext)
	}

	if contentType == "" || contentType == "application/octet-stream" {
		// Клиент не передал тип — выводим из расширения
		switch ext {
		case ".pdf":
			return "application/pdf", nil
		case ".png":
			return "image/png", nil
		default:
			return "image/jpeg", nil
		}
	}

	if _, ok := allowedTypes[contentType]; !ok {
		return "", fmt.Errorf("%w: %q (допустимые: pdf, png, jpg, jpeg)", ErrInvalidFileType, contentType)
	}
	return contentType, nil
}

// stagedName генерирует имя файла временной зоны.
// Формат: {document_type}_{request_id}_{timestamp}.{ext}
// Пример: passport_б7f3..._20260830150405.pdf
func stagedName(documentType, requestID, originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	ts := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s_%s_%s%s", sanitize(documentType), sanitize(requestID), ts, ext)
}

// resolveCollision подбирает свободное имя в директории dir.
// При занятом имени добавляет суффикс _1, _2, ... перед расширением.
func resolveCollision(dir, filename string) string {
	if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
		return filename
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// checkPath отклоняет пути с parent-сегментами и абсолютные пути.
// Основное ограничение путей — на вызывающей стороне, это защитная мера.
func checkPath(relPath string) error {
	if relPath == "" || filepath.IsAbs(relPath) {
		return fmt.Errorf("%w: %q", ErrUnsafePath, relPath)
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrUnsafePath, relPath)
		}
	}
	return nil
}

// checkSegment проверяет одиночный сегмент пути (идентификатор пользователя).
func checkSegment(seg string) error {
	if seg == "" || strings.ContainsAny(seg, `/\`) || seg == ".." {
		return fmt.Errorf("%w: %q", ErrUnsafePath, seg)
	}
	return nil
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
