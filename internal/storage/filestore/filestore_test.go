package filestore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/pathguard"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	g, err := pathguard.New(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("ошибка создания Guard: %v", err)
	}
	s, err := New(g)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return s
}

// TestNew_CreatesTempDir проверяет создание директории для загрузок.
func TestNew_CreatesTempDir(t *testing.T) {
	s := newStore(t)

	info, err := os.Stat(filepath.Join(s.Guard().Root(), TempDir))
	if err != nil {
		t.Fatalf("директория tmp не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("tmp не является директорией")
	}
}

// TestSaveUpload проверяет сохранение загрузки во временный файл.
func TestSaveUpload(t *testing.T) {
	s := newStore(t)
	content := []byte("%PDF-1.4\nтестовые данные\n%%EOF\n")

	res, err := s.SaveUpload(bytes.NewReader(content), 1024)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if res.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), res.Size)
	}
	if !strings.HasPrefix(res.Path, TempDir+string(filepath.Separator)) || !strings.HasSuffix(res.Path, ".upload") {
		t.Errorf("неожиданное имя временного файла: %s", res.Path)
	}

	full, err := s.Abs(res.Path)
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
}

// TestSaveUpload_TooLarge проверяет отказ и очистку при превышении лимита.
func TestSaveUpload_TooLarge(t *testing.T) {
	s := newStore(t)

	_, err := s.SaveUpload(bytes.NewReader(make([]byte, 2048)), 1024)
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("ожидалась ValidationError, получено %v", err)
	}

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("после отказа не должно остаться файлов, найдено %d", len(files))
	}
}

// TestSaveUpload_ExactLimit проверяет, что файл ровно в лимит принимается.
func TestSaveUpload_ExactLimit(t *testing.T) {
	s := newStore(t)

	res, err := s.SaveUpload(bytes.NewReader(make([]byte, 1024)), 1024)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Size != 1024 {
		t.Errorf("размер: ожидалось 1024, получено %d", res.Size)
	}
}

// TestDetectType проверяет определение типа по содержимому.
func TestDetectType(t *testing.T) {
	s := newStore(t)

	pdf, err := s.SaveUpload(strings.NewReader("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"), 1024)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	txt, err := s.SaveUpload(strings.NewReader("просто текст"), 1024)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}

	if mt, _ := s.DetectType(pdf.Path); mt != "application/pdf" {
		t.Errorf("PDF: получено %q", mt)
	}
	if mt, _ := s.DetectType(txt.Path); mt == "application/pdf" {
		t.Errorf("текст не должен определяться как PDF")
	}
}

// TestReplace проверяет атомарную замену.
func TestReplace(t *testing.T) {
	s := newStore(t)

	res, err := s.SaveUpload(strings.NewReader("новое"), 1024)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}

	if err := s.Replace(res.Path, "doc.pdf"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if s.Exists(res.Path) {
		t.Error("исходный файл должен исчезнуть после Replace")
	}

	f, err := s.Open("doc.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "новое" {
		t.Errorf("содержимое: получено %q", data)
	}
}

// TestPathViolations проверяет, что операции не выходят за песочницу.
func TestPathViolations(t *testing.T) {
	s := newStore(t)
	outside := filepath.Join(filepath.Dir(s.Guard().Root()), "outside.pdf")
	if err := os.WriteFile(outside, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Open("../outside.pdf"); !errors.Is(err, fault.ErrPathViolation) {
		t.Errorf("Open: ожидалась PathViolation, получено %v", err)
	}
	if err := s.Delete("../outside.pdf"); !errors.Is(err, fault.ErrPathViolation) {
		t.Errorf("Delete: ожидалась PathViolation, получено %v", err)
	}
	if err := s.Replace("../outside.pdf", "in.pdf"); !errors.Is(err, fault.ErrPathViolation) {
		t.Errorf("Replace: ожидалась PathViolation, получено %v", err)
	}
	if s.Exists("../outside.pdf") {
		t.Error("Exists не должен видеть файлы вне песочницы")
	}

	if _, err := os.Stat(outside); err != nil {
		t.Error("файл вне песочницы не должен быть затронут")
	}
}

// TestDelete_Missing проверяет, что удаление отсутствующего файла не ошибка.
func TestDelete_Missing(t *testing.T) {
	s := newStore(t)
	if err := s.Delete("nope.pdf"); err != nil {
		t.Errorf("ожидалось nil, получено %v", err)
	}
}

// TestOpen_Missing проверяет ошибку для отсутствующего файла.
func TestOpen_Missing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Open("nope.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ожидалась ErrNotExist, получено %v", err)
	}
}

// TestListFiles_AndUsedBytes проверяет обход песочницы.
func TestListFiles_AndUsedBytes(t *testing.T) {
	s := newStore(t)

	for _, c := range []string{"aa", "bbb"} {
		if _, err := s.SaveUpload(strings.NewReader(c), 1024); err != nil {
			t.Fatal(err)
		}
	}

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ожидалось 2 файла, получено %d", len(files))
	}

	used, err := s.UsedBytes()
	if err != nil {
		t.Fatalf("UsedBytes: %v", err)
	}
	if used != 5 {
		t.Errorf("UsedBytes: ожидалось 5, получено %d", used)
	}

	size, err := s.Size(files[0].Path)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != files[0].Size {
		t.Errorf("Size: ожидалось %d, получено %d", files[0].Size, size)
	}
}
