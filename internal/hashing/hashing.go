// Пакет hashing — потоковое вычисление дайджестов документа.
//
// Области (scope):
//   - content — байты файла;
//   - metadata — детерминированный JSON метаданных;
//   - full — байты файла, затем JSON метаданных.
//
// Одинаковые входные данные всегда дают одинаковый дайджест.
package hashing

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
)

// Scope — что входит в дайджест.
type Scope string

const (
	ScopeContent  Scope = "content"
	ScopeMetadata Scope = "metadata"
	ScopeFull     Scope = "full"
)

// Поддерживаемые алгоритмы.
const (
	AlgSHA256     = "sha256"
	AlgSHA384     = "sha384"
	AlgSHA512     = "sha512"
	AlgSHA3_256   = "sha3-256"
	AlgBLAKE2b256 = "blake2b-256"
)

// DefaultAlgorithm — алгоритм по умолчанию и алгоритм documentHash.
const DefaultAlgorithm = AlgSHA256

var constructors = map[string]func() hash.Hash{
	AlgSHA256:   sha256.New,
	AlgSHA384:   sha512.New384,
	AlgSHA512:   sha512.New,
	AlgSHA3_256: func() hash.Hash { return sha3.New256() },
	AlgBLAKE2b256: func() hash.Hash {
		// без ключа New256 не возвращает ошибку
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Algorithms возвращает имена поддерживаемых алгоритмов (отсортированы).
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseScope разбирает область; пустая строка — content.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeContent:
		return ScopeContent, nil
	case ScopeMetadata:
		return ScopeMetadata, nil
	case ScopeFull:
		return ScopeFull, nil
	}
	return "", fault.Validation("неизвестная область хэширования: %q", s)
}

// NewHash создаёт хэш по имени алгоритма; пустое имя — sha256.
func NewHash(algorithm string) (hash.Hash, string, error) {
	name := strings.ToLower(strings.TrimSpace(algorithm))
	if name == "" {
		name = DefaultAlgorithm
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, "", fault.Validation("неподдерживаемый алгоритм хэширования: %q", algorithm)
	}
	return ctor(), name, nil
}

// Opener открывает файл документа по пути относительно песочницы.
type Opener interface {
	Open(rel string) (afero.File, error)
}

// Request — запрос на вычисление дайджеста.
type Request struct {
	// Path — путь файла относительно песочницы (нужен для content и full)
	Path      string
	Metadata  model.Metadata
	Algorithm string
	Scope     string
}

// Result — вычисленный дайджест.
type Result struct {
	Hash      string `json:"hash"`
	Algorithm string `json:"algorithm"`
	Scope     Scope  `json:"scope"`
}

// Service — вычисление дайджестов.
type Service struct {
	files Opener
}

// NewService создаёт сервис хэширования поверх хранилища файлов.
func NewService(files Opener) *Service {
	return &Service{files: files}
}

// Digest вычисляет дайджест по запросу.
func (s *Service) Digest(ctx context.Context, req Request) (*Result, error) {
	scope, err := ParseScope(req.Scope)
	if err != nil {
		return nil, err
	}
	h, name, err := NewHash(req.Algorithm)
	if err != nil {
		return nil, err
	}

	if scope == ScopeContent || scope == ScopeFull {
		if err := s.hashFile(ctx, h, req.Path); err != nil {
			return nil, err
		}
	}
	if scope == ScopeMetadata || scope == ScopeFull {
		data, err := CanonicalMetadata(req.Metadata)
		if err != nil {
			return nil, err
		}
		h.Write(data)
	}

	return &Result{Hash: hex.EncodeToString(h.Sum(nil)), Algorithm: name, Scope: scope}, nil
}

// File вычисляет SHA-256 файла — значение documentHash.
func (s *Service) File(ctx context.Context, rel string) (string, error) {
	h := sha256.New()
	if err := s.hashFile(ctx, h, rel); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) hashFile(ctx context.Context, h hash.Hash, rel string) error {
	f, err := s.files.Open(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("ошибка чтения файла для хэширования: %w", err)
	}
	return nil
}

// CanonicalMetadata возвращает детерминированное JSON-представление метаданных.
func CanonicalMetadata(md model.Metadata) ([]byte, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	return data, nil
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
