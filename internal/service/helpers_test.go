package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/ratelimit"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/pathguard"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// encryptedMarker дописывается фейковым шифратором к файлу.
const encryptedMarker = "\n%encrypted\n"

// fakeRunner имитирует инструменты: санитайзер и шифратор копируют
// вход в выход, запись метаданных ничего не делает.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runner.Command
	failOn string
}

func (f *fakeRunner) Run(_ context.Context, cmd runner.Command) error {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if cmd.Tool == f.failOn {
		return fault.ToolFailure(cmd.Tool, 1, "инструмент упал", nil)
	}

	switch cmd.Tool {
	case tools.StageSanitize:
		var out string
		for _, a := range cmd.Args {
			if v, ok := strings.CutPrefix(a, "-sOutputFile="); ok {
				out = v
			}
		}
		return copyFile(cmd.Args[len(cmd.Args)-1], out, "")
	case tools.StageEncrypt:
		n := len(cmd.Args)
		return copyFile(cmd.Args[n-2], cmd.Args[n-1], encryptedMarker)
	}
	return nil
}

func (f *fakeRunner) tools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Tool)
	}
	return names
}

func copyFile(in, out, suffix string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(data, suffix...), 0o640)
}

// testEnv — сервисы поверх временной песочницы.
type testEnv struct {
	root     string
	store    *filestore.FileStore
	reg      *registry.Registry
	runner   *fakeRunner
	window   *ratelimit.MemoryWindow
	upload   *UploadService
	pipeline *PipelineService
	download *DownloadService
	hash     *HashService
	cleanup  *CleanupScheduler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T, uploadMax int) *testEnv {
	t.Helper()

	guard, err := pathguard.New(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("Ошибка создания Guard: %v", err)
	}
	store, err := filestore.New(guard)
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	logger := testLogger()
	reg := registry.New(logger)
	fr := &fakeRunner{}
	bins := tools.Binaries{Sanitizer: "gs", Metadata: "exiftool", Encryptor: "qpdf"}
	hasher := hashing.NewService(store)
	window := ratelimit.NewMemoryWindow(ratelimit.Config{Max: uploadMax, Window: time.Hour})
	gate := NewUploadGate(store, window, 1<<20, 2, logger)

	return &testEnv{
		root:     guard.Root(),
		store:    store,
		reg:      reg,
		runner:   fr,
		window:   window,
		upload:   NewUploadService(gate, store, reg, fr, bins, logger),
		pipeline: NewPipelineService(store, reg, fr, bins, hasher, logger),
		download: NewDownloadService(store, reg, logger),
		hash:     NewHashService(reg, hasher, logger),
		cleanup:  NewCleanupScheduler(store, reg, time.Hour, time.Minute, logger, window),
	}
}

// samplePDF возвращает PDF-подобное содержимое заданного размера.
func samplePDF(size int) []byte {
	head := []byte("%PDF-1.7\n")
	tail := []byte("\n%%EOF\n")
	body := bytes.Repeat([]byte("0"), max(size-len(head)-len(tail), 0))
	return append(append(head, body...), tail...)
}

func pdfRequest(name string, data []byte) UploadRequest {
	return UploadRequest{
		Name:         name,
		DeclaredType: PDFMimeType,
		DeclaredSize: int64(len(data)),
		Body:         bytes.NewReader(data),
		ClientIP:     "192.0.2.10",
	}
}

// sandboxFiles возвращает относительные пути всех файлов песочницы.
func (e *testEnv) sandboxFiles(t *testing.T) []string {
	t.Helper()
	files, err := e.store.ListFiles()
	if err != nil {
		t.Fatalf("Ошибка обхода песочницы: %v", err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
