// Пакет errors — ответы с ошибками в формате pdfvault.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/tools"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodePathViolation   = "PATH_VIOLATION"
	CodeToolFailure     = "TOOL_FAILURE"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Обобщённые сообщения для production-режима.
const (
	genericToolMessage     = "Ошибка обработки документа"
	genericInternalMessage = "Внутренняя ошибка сервера"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Responder переводит доменные ошибки в HTTP-ответы.
type Responder struct {
	// production — скрывать детали ошибок инструментов и внутренних ошибок
	production bool
	logger     *slog.Logger
}

// NewResponder создаёт Responder.
func NewResponder(production bool, logger *slog.Logger) *Responder {
	return &Responder{
		production: production,
		logger:     logger.With(slog.String("component", "api_errors")),
	}
}

// FromError записывает ответ по классу доменной ошибки.
//
// tool_failure этапа sanitize — ошибка загрузки (400), остальных этапов — 500.
// rate_limited дополнительно выставляет Retry-After.
func (rs *Responder) FromError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	message := err.Error()

	var fe *fault.Error
	if stderrors.As(err, &fe) {
		if fe.Message != "" {
			message = fe.Message
		}
		if fe.Kind == fault.KindRateLimited && fe.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(fe.RetryAfter))
		}
	}

	if status >= http.StatusInternalServerError {
		rs.logger.Error("Ошибка обработки запроса",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}

	if rs.production {
		switch code {
		case CodeToolFailure:
			message = genericToolMessage
		case CodeInternalError:
			message = genericInternalMessage
		}
	}

	WriteError(w, status, code, message)
}

// Classify возвращает HTTP-статус и код ошибки.
func Classify(err error) (int, string) {
	var fe *fault.Error
	if !stderrors.As(err, &fe) {
		return http.StatusInternalServerError, CodeInternalError
	}
	switch fe.Kind {
	case fault.KindValidation:
		return http.StatusBadRequest, CodeValidationError
	case fault.KindRateLimited:
		return http.StatusTooManyRequests, CodeRateLimited
	case fault.KindPathViolation:
		return http.StatusBadRequest, CodePathViolation
	case fault.KindToolFailure:
		if fe.Stage == tools.StageSanitize {
			return http.StatusBadRequest, CodeToolFailure
		}
		return http.StatusInternalServerError, CodeToolFailure
	case fault.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case fault.KindConflict:
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// RateLimited — 429 превышен лимит запросов.
func RateLimited(w http.ResponseWriter, retryAfterSec int, message string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
