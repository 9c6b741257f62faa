// Пакет filestore — операции с физическими файлами внутри песочницы.
// Обеспечивает streaming-запись загрузок с ограничением размера,
// атомарную замену файлов, чтение, удаление и обход песочницы.
//
// Все имена — относительные пути в песочнице. Каждое имя проходит
// через pathguard до обращения к файловой системе; сама ФС — afero
// BasePathFs поверх OsFs, поэтому внешние инструменты видят те же файлы.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/pathguard"
)

// TempDir — поддиректория песочницы для сырых загрузок.
const TempDir = "tmp"

// FileStore — управление физическими файлами в песочнице.
type FileStore struct {
	guard *pathguard.Guard
	fs    afero.Fs
}

// SaveResult — результат сохранения загрузки.
type SaveResult struct {
	// Path — путь относительно песочницы
	Path string
	// Size — фактический размер записанных данных в байтах
	Size int64
}

// FileInfo — сведения о файле при обходе песочницы.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore поверх песочницы guard.
func New(guard *pathguard.Guard) (*FileStore, error) {
	base := afero.NewBasePathFs(afero.NewOsFs(), guard.Root())
	if err := base.MkdirAll(TempDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", TempDir, err)
	}
	return &FileStore{guard: guard, fs: base}, nil
}

// Guard возвращает проверку путей песочницы.
func (s *FileStore) Guard() *pathguard.Guard {
	return s.guard
}

// Abs возвращает абсолютный путь для передачи внешним инструментам.
func (s *FileStore) Abs(rel string) (string, error) {
	return s.guard.Resolve(rel)
}

// SaveUpload записывает поток во временный файл tmp/<uuid>.upload.
// Читает не больше maxSize+1 байт: заявленный клиентом размер не доверенный.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке или превышении лимита файл удаляется.
func (s *FileStore) SaveUpload(reader io.Reader, maxSize int64) (*SaveResult, error) {
	name := filepath.Join(TempDir, uuid.NewString()+".upload")
	if _, err := s.guard.Resolve(name); err != nil {
		return nil, err
	}
	partial := name + ".part"

	f, err := s.fs.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(reader, maxSize+1))
	if err != nil {
		f.Close()
		_ = s.fs.Remove(partial)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if size > maxSize {
		f.Close()
		_ = s.fs.Remove(partial)
		return nil, fault.Validation("размер файла превышает максимум %s", humanize.IBytes(uint64(maxSize)))
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(partial)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(partial)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(partial, name); err != nil {
		_ = s.fs.Remove(partial)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{Path: name, Size: size}, nil
}

// DetectType определяет MIME-тип файла по содержимому.
func (s *FileStore) DetectType(rel string) (string, error) {
	f, err := s.Open(rel)
	if err != nil {
		return "", err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("ошибка определения типа %s: %w", rel, err)
	}
	return mt.String(), nil
}

// Replace атомарно заменяет dst содержимым src (rename). src перестаёт существовать.
func (s *FileStore) Replace(src, dst string) error {
	if _, err := s.guard.Resolve(src); err != nil {
		return err
	}
	if _, err := s.guard.Resolve(dst); err != nil {
		return err
	}
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("ошибка замены %s → %s: %w", src, dst, err)
	}
	return nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(rel string) (afero.File, error) {
	if _, err := s.guard.Resolve(rel); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("файл не найден: %s: %w", rel, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", rel, err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствие файла ошибкой не считается.
func (s *FileStore) Delete(rel string) error {
	if _, err := s.guard.Resolve(rel); err != nil {
		return err
	}
	err := s.fs.Remove(rel)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", rel, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (s *FileStore) Exists(rel string) bool {
	if _, err := s.guard.Resolve(rel); err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, rel)
	return err == nil && ok
}

// Size возвращает размер файла.
func (s *FileStore) Size(rel string) (int64, error) {
	if _, err := s.guard.Resolve(rel); err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(rel)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", rel, err)
	}
	return info.Size(), nil
}

// ListFiles возвращает все обычные файлы песочницы (рекурсивно).
func (s *FileStore) ListFiles() ([]FileInfo, error) {
	var result []FileInfo
	err := afero.Walk(s.fs, ".", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			// Файл мог быть удалён во время обхода
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		result = append(result, FileInfo{
			Path:    filepath.Clean(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода песочницы: %w", err)
	}
	return result, nil
}

// UsedBytes возвращает суммарный размер файлов песочницы.
func (s *FileStore) UsedBytes() (int64, error) {
	files, err := s.ListFiles()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}
