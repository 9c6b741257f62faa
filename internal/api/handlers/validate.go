// validate.go — разбор и проверка JSON-тел запросов.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/pdfvault/internal/hashing"
)

// maxJSONBody — ограничение на размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// errEmptyBody — тело запроса отсутствует.
var errEmptyBody = stderrors.New("пустое тело запроса")

// newValidator создаёт validator с правилом hashalg (поддерживаемый алгоритм хэширования).
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hashalg", func(fl validator.FieldLevel) bool {
		_, _, err := hashing.NewHash(fl.Field().String())
		return err == nil
	})
	return v
}

// decodeJSON читает тело запроса в dst. Пустое тело — errEmptyBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return nil
}

// validationMessage формирует читаемое сообщение из ошибок validator.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("поле %s обязательно", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("поле %s должно быть одним из: %s", fe.Field(), fe.Param()))
		case "hashalg":
			parts = append(parts, fmt.Sprintf("неподдерживаемый алгоритм хэширования: %q (доступны: %s)",
				fe.Value(), strings.Join(hashing.Algorithms(), ", ")))
		default:
			parts = append(parts, fmt.Sprintf("поле %s не прошло проверку %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
