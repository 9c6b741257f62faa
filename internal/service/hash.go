// hash.go — вычисление дайджеста документа по запросу клиента.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
)

// HashResult — дайджест с именем документа.
type HashResult struct {
	hashing.Result
	Name string `json:"name"`
}

// HashService — дайджест документа под разделяемой арендой.
type HashService struct {
	reg    *registry.Registry
	hasher *hashing.Service
	logger *slog.Logger
}

// NewHashService создаёт сервис дайджестов.
func NewHashService(reg *registry.Registry, hasher *hashing.Service, logger *slog.Logger) *HashService {
	return &HashService{
		reg:    reg,
		hasher: hasher,
		logger: logger.With(slog.String("component", "hash_service")),
	}
}

// Hash вычисляет дайджест файла и/или метаданных документа.
func (s *HashService) Hash(ctx context.Context, id, algorithm, scope string) (*HashResult, error) {
	lease, err := s.reg.Acquire(id, false)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	rec, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}

	res, err := s.hasher.Digest(ctx, hashing.Request{
		Path:      rec.Path,
		Metadata:  rec.Metadata,
		Algorithm: algorithm,
		Scope:     scope,
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("hash", "error").Inc()
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("hash", "success").Inc()
	s.logger.Debug("Дайджест вычислен",
		slog.String("file_id", id),
		slog.String("algorithm", res.Algorithm),
		slog.String("scope", string(res.Scope)),
	)
	return &HashResult{Result: *res, Name: rec.Name}, nil
}
