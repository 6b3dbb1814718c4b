package custody

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testMaxSize = 10 << 20

// TestNew_CreatesRoot проверяет создание корневой директории.
func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "documents")

	s, err := New(root)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	if s.Root() != root {
		t.Errorf("ожидался путь %s, получен %s", root, s.Root())
	}

	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestStage проверяет сохранение вложения во временную зону.
func TestStage(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := []byte("%PDF-1.7 тестовое содержимое")
	result, err := s.Stage("user-1", "passport", "req-42", bytes.NewReader(content), "scan.pdf", "application/pdf", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}
	if result.MimeType != "application/pdf" {
		t.Errorf("mime: ожидался application/pdf, получен %s", result.MimeType)
	}

	// Файл во временной зоне пользователя
	if !strings.HasPrefix(filepath.ToSlash(result.RelPath), "user-1/temp/") {
		t.Errorf("путь должен начинаться с user-1/temp/: %s", result.RelPath)
	}
	if !strings.Contains(result.RelPath, "passport") {
		t.Errorf("имя должно содержать тип документа: %s", result.RelPath)
	}
	if !strings.Contains(result.RelPath, "req-42") {
		t.Errorf("имя должно содержать id запроса: %s", result.RelPath)
	}
	if !strings.HasSuffix(result.RelPath, ".pdf") {
		t.Errorf("имя должно сохранять расширение: %s", result.RelPath)
	}

	// Содержимое совпадает
	data, err := os.ReadFile(filepath.Join(s.Root(), result.RelPath))
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// .part файл удалён
	if _, err := os.Stat(filepath.Join(s.Root(), result.RelPath) + ".part"); !os.IsNotExist(err) {
		t.Error("временный .part файл не должен существовать")
	}
}

// TestStage_InvalidType проверяет отказ до создания директорий.
func TestStage_InvalidType(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	_, err = s.Stage("user-1", "passport", "req-1", bytes.NewReader([]byte("data")), "malware.exe", "application/x-msdownload", testMaxSize)
	if !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("ожидался ErrInvalidFileType, получено: %v", err)
	}

	// Директория пользователя не должна быть создана
	if _, statErr := os.Stat(filepath.Join(root, "user-1")); !os.IsNotExist(statErr) {
		t.Error("директория пользователя не должна создаваться при недопустимом типе")
	}
}

// TestStage_MimeMismatch проверяет отказ при недопустимом MIME с разрешённым расширением.
func TestStage_MimeMismatch(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	_, err = s.Stage("user-1", "passport", "req-1", bytes.NewReader([]byte("data")), "doc.pdf", "text/html", testMaxSize)
	if !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("ожидался ErrInvalidFileType, получено: %v", err)
	}
}

// TestStage_NoContentType проверяет вывод MIME-типа из расширения.
func TestStage_NoContentType(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	result, err := s.Stage("user-1", "photo", "req-1", bytes.NewReader([]byte("png-данные")), "face.png", "", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}
	if result.MimeType != "image/png" {
		t.Errorf("mime: ожидался image/png, получен %s", result.MimeType)
	}
}

// TestStage_TooLarge проверяет отказ при превышении лимита без остаточных файлов.
func TestStage_TooLarge(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := bytes.Repeat([]byte("x"), 1025)
	_, err = s.Stage("user-1", "passport", "req-1", bytes.NewReader(content), "big.pdf", "application/pdf", 1024)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("ожидался ErrFileTooLarge, получено: %v", err)
	}

	// Во временной зоне не должно остаться файлов
	entries, _ := os.ReadDir(filepath.Join(root, "user-1", "temp"))
	if len(entries) != 0 {
		t.Errorf("во временной зоне остались файлы: %d", len(entries))
	}
}

// TestStage_ExactLimit проверяет файл ровно по границе лимита.
func TestStage_ExactLimit(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := bytes.Repeat([]byte("x"), 1024)
	result, err := s.Stage("user-1", "passport", "req-1", bytes.NewReader(content), "edge.pdf", "application/pdf", 1024)
	if err != nil {
		t.Fatalf("файл ровно по лимиту должен приниматься: %v", err)
	}
	if result.Size != 1024 {
		t.Errorf("размер: ожидалось 1024, получено %d", result.Size)
	}
}

// TestStage_Empty проверяет отказ для пустого содержимого.
func TestStage_Empty(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	_, err = s.Stage("user-1", "passport", "req-1", bytes.NewReader(nil), "empty.pdf", "application/pdf", testMaxSize)
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("ожидался ErrEmptyFile, получено: %v", err)
	}
}

// TestPromote проверяет атомарное продвижение в постоянную зону.
func TestPromote(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	content := []byte("содержимое договора")
	staged, err := s.Stage("user-1", "contract", "req-1", bytes.NewReader(content), "contrato.pdf", "application/pdf", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}

	permPath, err := s.Promote(staged.RelPath, "user-1", "contrato.pdf")
	if err != nil {
		t.Fatalf("ошибка promote: %v", err)
	}

	if filepath.ToSlash(permPath) != "user-1/contrato.pdf" {
		t.Errorf("постоянный путь: ожидался user-1/contrato.pdf, получен %s", permPath)
	}

	// Исходный файл во временной зоне отсутствует
	if s.Exists(staged.RelPath) {
		t.Error("файл временной зоны должен быть перемещён")
	}

	// Файл в постоянной зоне присутствует, содержимое совпадает
	f, err := s.OpenRead(permPath)
	if err != nil {
		t.Fatalf("ошибка открытия продвинутого файла: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое продвинутого файла не совпадает")
	}
}

// TestPromote_Collision проверяет суффиксирование при занятом имени.
func TestPromote_Collision(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	// Первый файл занимает имя contrato.pdf
	staged1, err := s.Stage("user-1", "contract", "req-1", bytes.NewReader([]byte("первый")), "contrato.pdf", "application/pdf", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}
	if _, err := s.Promote(staged1.RelPath, "user-1", "contrato.pdf"); err != nil {
		t.Fatalf("ошибка promote: %v", err)
	}

	// Второй файл с тем же именем получает суффикс
	staged2, err := s.Stage("user-1", "contract", "req-2", bytes.NewReader([]byte("второй")), "contrato.pdf", "application/pdf", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}
	permPath2, err := s.Promote(staged2.RelPath, "user-1", "contrato.pdf")
	if err != nil {
		t.Fatalf("ошибка promote: %v", err)
	}

	if filepath.ToSlash(permPath2) != "user-1/contrato_1.pdf" {
		t.Errorf("ожидался суффикс _1: %s", permPath2)
	}

	// Первый файл не перезаписан
	f, err := s.OpenRead("user-1/contrato.pdf")
	if err != nil {
		t.Fatalf("первый файл должен существовать: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "первый" {
		t.Error("первый файл не должен перезаписываться")
	}
}

// TestPromote_MissingSource проверяет ErrMissingSource для отсутствующего файла.
func TestPromote_MissingSource(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	_, err = s.Promote("user-1/temp/ghost.pdf", "user-1", "ghost.pdf")
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("ожидался ErrMissingSource, получено: %v", err)
	}
}

// TestOpenRead_NotFound проверяет ErrNotFound при чтении несуществующего файла.
func TestOpenRead_NotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	_, err = s.OpenRead("user-1/nope.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено: %v", err)
	}
}

// TestDelete проверяет удаление и идемпотентность удаления.
func TestDelete(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}

	staged, err := s.Stage("user-1", "passport", "req-1", bytes.NewReader([]byte("data")), "x.pdf", "application/pdf", testMaxSize)
	if err != nil {
		t.Fatalf("ошибка staging: %v", err)
	}

	if err := s.Delete(staged.RelPath); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if s.Exists(staged.RelPath) {
		t.Error("файл должен быть удалён")
	}

	// Повторное удаление — не ошибка
	if err := s.Delete(staged.RelPath); err != nil {
		t.Errorf("удаление несуществующего файла не должно быть ошибкой: %v", err)
	}
}

// TestCheckPath проверяет защиту от parent-сегментов.
func TestCheckPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"user-1/temp/a.pdf", false},
		{"user-1/a.pdf", false},
		{"../etc/passwd", true},
		{"user-1/../../etc/passwd", true},
		{"/etc/passwd", true},
		{"", true},
	}

	for _, tt := range tests {
		err := checkPath(tt.path)
		if tt.wantErr && err == nil {
			t.Errorf("checkPath(%q): ожидалась ошибка", tt.path)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("checkPath(%q): %v", tt.path, err)
		}
	}
}

// TestSanitize проверяет очистку строк для имени файла.
func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"passport", "passport"},
		{"proof of address", "proofofaddress"},
		{"doc-type_01", "doc-type_01"},
		{"type@#$%", "type"},
		{"", "file"},
	}

	for _, tt := range tests {
		result := sanitize(tt.input)
		if result != tt.expected {
			t.Errorf("sanitize(%q): ожидалось %q, получено %q", tt.input, tt.expected, result)
		}
	}
}
