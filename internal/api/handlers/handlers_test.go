package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/middleware"
	"github.com/bigkaa/goartstore/pdfvault/internal/config"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
	"github.com/bigkaa/goartstore/pdfvault/internal/ratelimit"
	"github.com/bigkaa/goartstore/pdfvault/internal/runner"
	"github.com/bigkaa/goartstore/pdfvault/internal/server"
	"github.com/bigkaa/goartstore/pdfvault/internal/service"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/pathguard"
	"github.com/bigkaa/goartstore/pdfvault/internal/storage/registry"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// copyRunner имитирует инструменты: санитайзер копирует файл,
// шифратор копирует и дописывает маркер.
type copyRunner struct{}

func (copyRunner) Run(_ context.Context, cmd runner.Command) error {
	switch cmd.Tool {
	case tools.StageSanitize:
		var out string
		for _, a := range cmd.Args {
			if v, ok := strings.CutPrefix(a, "-sOutputFile="); ok {
				out = v
			}
		}
		return copyWith(cmd.Args[len(cmd.Args)-1], out, "")
	case tools.StageEncrypt:
		n := len(cmd.Args)
		return copyWith(cmd.Args[n-2], cmd.Args[n-1], "\n%encrypted\n")
	}
	return nil
}

func copyWith(in, out, suffix string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(data, suffix...), 0o640)
}

type apiEnv struct {
	router http.Handler
	reg    *registry.Registry
	store  *filestore.FileStore
}

func newAPIEnv(t *testing.T, validate bool) *apiEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard, err := pathguard.New(filepath.Join(t.TempDir(), "sandbox"))
	require.NoError(t, err)
	store, err := filestore.New(guard)
	require.NoError(t, err)

	cfg := &config.Config{
		MaxFileSize:      1 << 20,
		UploadRateMax:    100,
		UploadRateWindow: time.Hour,
		MaxFileAge:       time.Hour,
	}

	reg := registry.New(logger)
	r := copyRunner{}
	bins := tools.Binaries{Sanitizer: "gs", Metadata: "exiftool", Encryptor: "qpdf"}
	hasher := hashing.NewService(store)
	window := ratelimit.NewMemoryWindow(ratelimit.Config{Max: cfg.UploadRateMax, Window: cfg.UploadRateWindow})
	gate := service.NewUploadGate(store, window, cfg.MaxFileSize, 2, logger)
	pipeline := service.NewPipelineService(store, reg, r, bins, hasher, logger)
	rs := errors.NewResponder(false, logger)

	api := NewAPIHandler(
		NewFilesHandler(service.NewUploadService(gate, store, reg, r, bins, logger),
			service.NewDownloadService(store, reg, logger), pipeline, cfg.MaxFileSize, rs),
		NewDocumentsHandler(pipeline, service.NewHashService(reg, hasher, logger), rs, false),
		NewSystemHandler(cfg, reg, store, logger),
		NewMaintenanceHandler(service.NewCleanupScheduler(store, reg, cfg.MaxFileAge, time.Minute, logger, window)),
		NewHealthHandler(guard.Root(), bins, nil, nil),
		server.NewMetricsHandler(),
	)

	var opts server.Options
	if validate {
		doc, err := generated.GetSwagger()
		require.NoError(t, err)
		opts.Validator, err = middleware.NewOpenAPIValidator(doc, logger)
		require.NoError(t, err)
	}

	return &apiEnv{router: server.NewRouter(logger, api, opts), reg: reg, store: store}
}

func (e *apiEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) upload(t *testing.T, name, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("author", "Иванов"))
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
}

func samplePDF(size int) []byte {
	head := []byte("%PDF-1.7\n")
	tail := []byte("\n%%EOF\n")
	return append(append(head, bytes.Repeat([]byte("0"), size-len(head)-len(tail))...), tail...)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body generated.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestAPI_DocumentLifecycle(t *testing.T) {
	for _, validate := range []bool{false, true} {
		t.Run(fmt.Sprintf("validate=%v", validate), func(t *testing.T) {
			env := newAPIEnv(t, validate)

			rec := env.upload(t, "report.pdf", "application/pdf", samplePDF(10*1024))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var uploaded model.FileRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
			assert.Equal(t, model.StatusUploaded, uploaded.Status)
			assert.Equal(t, "Иванов", uploaded.Metadata.Basic.Text("author"))

			rec = env.do(t, http.MethodPost, "/api/metadata/"+uploaded.ID,
				strings.NewReader(`{"metadata":{"basic":{"title":"Отчёт"},"xmp":{"rights":"internal"}}}`), "application/json")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = env.do(t, http.MethodPost, "/api/finalize/"+uploaded.ID, nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var fin generated.FinalizeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fin))
			assert.Equal(t, string(model.StatusProcessed), fin.Status)
			assert.Equal(t, "report.pdf", fin.Name)

			rec = env.do(t, http.MethodGet, "/api/download/"+uploaded.ID, nil, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
			sum := sha256.Sum256(rec.Body.Bytes())
			assert.Equal(t, fin.DocumentHash, hex.EncodeToString(sum[:]))

			rec = env.do(t, http.MethodPost, "/api/hash/"+uploaded.ID, nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var hashed generated.HashResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hashed))
			assert.Equal(t, "sha256", hashed.Algorithm)
			assert.Equal(t, fin.DocumentHash, hashed.Hash)

			rec = env.do(t, http.MethodPost, "/api/finalize/"+uploaded.ID, nil, "")
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, errors.CodeConflict, errorCode(t, rec))

			rec = env.do(t, http.MethodGet, "/api/files?limit=10", nil, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
		})
	}
}

func TestAPI_ListReturnsAllRecords(t *testing.T) {
	env := newAPIEnv(t, true)
	const n = 60
	for i := range n {
		rec := env.upload(t, fmt.Sprintf("doc-%d.pdf", i), "application/pdf", samplePDF(1024))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []model.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, n)
	assert.Equal(t, fmt.Sprint(n), rec.Header().Get("X-Total-Count"))

	rec = env.do(t, http.MethodGet, "/api/files?limit=20&offset=50", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 10)
	assert.Equal(t, fmt.Sprint(n), rec.Header().Get("X-Total-Count"))
}

func TestAPI_UploadRejectsNonPDF(t *testing.T) {
	env := newAPIEnv(t, false)

	rec := env.upload(t, "notes.txt", "text/plain", []byte("просто текст"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeValidationError, errorCode(t, rec))
	assert.Equal(t, 0, env.reg.Count())

	files, err := env.store.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAPI_FinalizeUnknownID(t *testing.T) {
	env := newAPIEnv(t, false)
	rec := env.upload(t, "a.pdf", "application/pdf", samplePDF(2048))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/finalize/00000000-0000-4000-8000-000000000000", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, errorCode(t, rec))
	assert.Equal(t, 1, env.reg.CountByStatus(model.StatusUploaded))
	assert.Equal(t, 0, env.reg.CountByStatus(model.StatusProcessed))
}

func TestAPI_MalformedID(t *testing.T) {
	for _, validate := range []bool{false, true} {
		t.Run(fmt.Sprintf("validate=%v", validate), func(t *testing.T) {
			env := newAPIEnv(t, validate)
			rec := env.do(t, http.MethodGet, "/api/files/not-a-uuid", nil, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, errors.CodeValidationError, errorCode(t, rec))
		})
	}
}

func TestAPI_SecurityDiagnosticsDisabled(t *testing.T) {
	env := newAPIEnv(t, false)
	rec := env.upload(t, "a.pdf", "application/pdf", samplePDF(2048))
	require.Equal(t, http.StatusOK, rec.Code)
	var uploaded model.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))

	rec = env.do(t, http.MethodPost, "/api/security/"+uploaded.ID,
		strings.NewReader(`{"action":"encryptMetadata"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_MetadataValidation(t *testing.T) {
	env := newAPIEnv(t, false)
	rec := env.upload(t, "a.pdf", "application/pdf", samplePDF(2048))
	require.Equal(t, http.StatusOK, rec.Code)
	var uploaded model.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))

	rec = env.do(t, http.MethodPost, "/api/metadata/"+uploaded.ID, strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/hash/"+uploaded.ID,
		strings.NewReader(`{"algorithm":"crc32"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_InfoAndUnknownRoute(t *testing.T) {
	env := newAPIEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/info", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info generated.InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "pdfvault", info.Service)
	require.NotNil(t, info.Limits.MaxFileSize)
	assert.Equal(t, int64(1<<20), *info.Limits.MaxFileSize)

	rec = env.do(t, http.MethodGet, "/api/nothing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, errorCode(t, rec))
}
