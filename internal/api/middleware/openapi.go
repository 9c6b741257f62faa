// openapi.go — проверка запросов по встроенному OpenAPI-документу.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
)

// maxValidatedBody — предел JSON-тела, которое валидатор читает целиком.
const maxValidatedBody = 1 << 20

// OpenAPIValidator проверяет параметры и JSON-тела запросов по документу.
// Запросы вне документа пропускаются дальше (404/405 выдаст роутер).
// Multipart-тела не буферизуются и не проверяются.
type OpenAPIValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewOpenAPIValidator создаёт middleware проверки по документу doc.
func NewOpenAPIValidator(doc *openapi3.T, logger *slog.Logger) (*OpenAPIValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание OpenAPI-роутера: %w", err)
	}
	return &OpenAPIValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware.
func (v *OpenAPIValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			multipart := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
			if !multipart && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxValidatedBody)
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					ExcludeRequestBody: multipart,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					apierrors.ValidationError(w, fmt.Sprintf("Тело запроса больше %d байт", tooLarge.Limit))
					return
				}
				v.logger.Debug("Запрос не соответствует OpenAPI-документу",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, requestErrorMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestErrorMessage — краткое описание ошибки без дампа схемы.
func requestErrorMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("Некорректный параметр %s: %s", reqErr.Parameter.Name, shortReason(reqErr))
		}
		if reqErr.RequestBody != nil {
			return "Некорректное тело запроса: " + shortReason(reqErr)
		}
		return "Некорректный запрос: " + shortReason(reqErr)
	}
	return "Некорректный запрос: " + err.Error()
}

func shortReason(e *openapi3filter.RequestError) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(e.Err, &schemaErr) {
		if field := strings.Join(schemaErr.JSONPointer(), "."); field != "" {
			return field + ": " + schemaErr.Reason
		}
		return schemaErr.Reason
	}
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "ошибка проверки"
}
