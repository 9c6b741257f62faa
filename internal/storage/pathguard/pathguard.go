// Пакет pathguard — ограничение всех путей одной директорией-песочницей.
//
// Любое имя файла, производное или полученное от клиента, проходит через
// Resolve до первой операции с файловой системой.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
)

// Guard — проверка путей относительно корня песочницы.
type Guard struct {
	// root — абсолютный очищенный путь песочницы
	root string
}

// New создаёт Guard. Корень приводится к абсолютному пути,
// символические ссылки в корне раскрываются, директория создаётся при отсутствии.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь песочницы %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать песочницу %s: %w", abs, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Guard{root: filepath.Clean(abs)}, nil
}

// Root возвращает абсолютный путь песочницы.
func (g *Guard) Root() string {
	return g.root
}

// Resolve нормализует относительный путь и возвращает абсолютный путь
// внутри песочницы. Возвращает PathViolation, если результат выходит за корень.
func (g *Guard) Resolve(rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) || filepath.IsAbs(rel) {
		return "", fault.PathViolation(rel)
	}

	full := filepath.Join(g.root, filepath.Clean(rel))
	if !g.contains(full) {
		return "", fault.PathViolation(rel)
	}
	return full, nil
}

// Rel возвращает путь относительно песочницы для абсолютного пути внутри неё.
func (g *Guard) Rel(full string) (string, error) {
	full = filepath.Clean(full)
	if !g.contains(full) {
		return "", fault.PathViolation(full)
	}
	rel, err := filepath.Rel(g.root, full)
	if err != nil {
		return "", fault.PathViolation(full)
	}
	return rel, nil
}

// Contains проверяет, находится ли абсолютный путь внутри песочницы.
func (g *Guard) Contains(full string) bool {
	return g.contains(filepath.Clean(full))
}

// contains сравнивает через filepath.Rel, а не по строковому префиксу:
// "/data/sandbox2" не находится внутри "/data/sandbox".
func (g *Guard) contains(full string) bool {
	rel, err := filepath.Rel(g.root, full)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
