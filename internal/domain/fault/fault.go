// Пакет fault — таксономия доменных ошибок pdfvault.
//
// Каждая ошибка несёт Kind (класс ошибки), по которому HTTP-слой
// выбирает статус-код. Сравнение через errors.Is работает по классу:
//
//	errors.Is(err, fault.ErrNotFound)
//
// Детали (этап конвейера, код выхода инструмента) доступны через errors.As.
package fault

import (
	"errors"
	"fmt"
)

// Kind — класс доменной ошибки.
type Kind string

const (
	// KindValidation — некорректные входные данные (тип, размер, формат).
	KindValidation Kind = "validation"
	// KindRateLimited — превышен лимит запросов клиента.
	KindRateLimited Kind = "rate_limited"
	// KindPathViolation — путь выходит за пределы песочницы.
	KindPathViolation Kind = "path_violation"
	// KindToolFailure — внешний инструмент завершился с ошибкой или по таймауту.
	KindToolFailure Kind = "tool_failure"
	// KindNotFound — запись не найдена в реестре.
	KindNotFound Kind = "not_found"
	// KindConflict — запись занята конвейером или уже обработана.
	KindConflict Kind = "conflict"
	// KindInternal — прочие внутренние ошибки.
	KindInternal Kind = "internal"
)

// Сентинелы для errors.Is. Совпадение определяется по Kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
	ErrPathViolation = &Error{Kind: KindPathViolation}
	ErrToolFailure   = &Error{Kind: KindToolFailure}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrInternal      = &Error{Kind: KindInternal}
)

// Error — доменная ошибка.
type Error struct {
	Kind Kind
	// Stage — этап конвейера или имя инструмента (для tool_failure)
	Stage string
	// Message — человекочитаемое описание
	Message string
	// ExitCode — код выхода внешнего инструмента (-1, если процесс не запустился)
	ExitCode int
	// RetryAfter — через сколько секунд можно повторить (для rate_limited)
	RetryAfter int
	// Err — исходная ошибка
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по классу.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Validation создаёт ошибку валидации входных данных.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// RateLimited создаёт ошибку превышения лимита.
func RateLimited(retryAfterSec int, format string, args ...any) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfterSec, Message: fmt.Sprintf(format, args...)}
}

// PathViolation создаёт ошибку выхода пути за пределы песочницы.
func PathViolation(path string) *Error {
	return &Error{Kind: KindPathViolation, Message: fmt.Sprintf("путь %q выходит за пределы песочницы", path)}
}

// ToolFailure создаёт ошибку внешнего инструмента.
func ToolFailure(stage string, exitCode int, detail string, err error) *Error {
	return &Error{Kind: KindToolFailure, Stage: stage, ExitCode: exitCode, Message: detail, Err: err}
}

// NotFound создаёт ошибку отсутствия записи.
func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("файл %s не найден", id)}
}

// Conflict создаёт ошибку конфликта состояния.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal оборачивает внутреннюю ошибку.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf возвращает класс ошибки. Ошибки вне таксономии считаются internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// WithStage возвращает копию ошибки с указанным этапом,
// если этап ещё не задан. Ошибки вне таксономии оборачиваются как internal.
func WithStage(err error, stage string) *Error {
	var fe *Error
	if !errors.As(err, &fe) {
		return &Error{Kind: KindInternal, Stage: stage, Message: "внутренняя ошибка", Err: err}
	}
	copied := *fe
	if copied.Stage == "" {
		copied.Stage = stage
	}
	return &copied
}
