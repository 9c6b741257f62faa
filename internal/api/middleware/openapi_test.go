package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
)

const testFileID = "0b7e6f0e-2f4a-4c1e-9d3a-5a6b7c8d9e0f"

func newTestValidator(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	doc, err := generated.GetSwagger()
	require.NoError(t, err)
	v, err := NewOpenAPIValidator(doc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return v.Middleware()(next)
}

func TestOpenAPIValidator_PassesValidBody(t *testing.T) {
	var got []byte
	handler := newTestValidator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"metadata":{"basic":{"title":"Отчёт"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/metadata/"+testFileID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, body, string(got))
}

func TestOpenAPIValidator_RejectsOversizedBody(t *testing.T) {
	handler := newTestValidator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	var body bytes.Buffer
	body.WriteString(`{"metadata":{"basic":{"title":"`)
	body.WriteString(strings.Repeat("x", maxValidatedBody))
	body.WriteString(`"}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/metadata/"+testFileID, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenAPIValidator_RejectsSchemaMismatch(t *testing.T) {
	handler := newTestValidator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/hash/"+testFileID,
		strings.NewReader(`{"scope":"everything"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
