// Пакет runner — запуск внешних инструментов обработки PDF.
//
// Каждый запуск ограничен таймаутом; по истечении процесс убивается через
// контекст. stdout никогда не считается данными: инструменты пишут
// результат в файлы. Ненулевой код выхода, ошибка запуска и таймаут
// превращаются в ToolFailure с хвостом stderr. Повторов нет.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
)

// MaxStderrTail — сколько последних байт stderr попадает в описание ошибки.
const MaxStderrTail = 512

// toolDuration — длительность запусков инструментов.
var toolDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pv_tool_duration_seconds",
		Help:    "Длительность запуска внешних инструментов в секундах",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"tool", "result"},
)

// Command — один запуск инструмента.
type Command struct {
	// Tool — логическое имя этапа (sanitize, metadata, encrypt), метка метрики
	Tool string
	// Binary — исполняемый файл
	Binary string
	Args   []string
	// Dir — рабочая директория (пусто — текущая)
	Dir string
}

// Runner — запуск внешнего инструмента. В тестах подменяется фейком.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner — Runner на базе go-execute.
type ExecRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner создаёт ExecRunner с таймаутом на каждый запуск.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{
		timeout: timeout,
		logger:  logger.With(slog.String("component", "runner")),
	}
}

// Run запускает инструмент и ждёт завершения.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	task := execute.ExecTask{
		Command: cmd.Binary,
		Args:    cmd.Args,
		Cwd:     cmd.Dir,
	}

	start := time.Now()
	res, err := task.Execute(runCtx)
	elapsed := time.Since(start)

	runErr := classify(cmd, res, err, runCtx.Err())
	result := "success"
	if runErr != nil {
		result = "failure"
	}
	toolDuration.WithLabelValues(cmd.Tool, result).Observe(elapsed.Seconds())

	if runErr != nil {
		r.logger.Warn("Инструмент завершился с ошибкой",
			slog.String("tool", cmd.Tool),
			slog.String("binary", cmd.Binary),
			slog.Int("exit_code", res.ExitCode),
			slog.Duration("duration", elapsed),
			slog.String("error", runErr.Error()),
		)
		return runErr
	}

	r.logger.Debug("Инструмент выполнен",
		slog.String("tool", cmd.Tool),
		slog.String("binary", cmd.Binary),
		slog.Duration("duration", elapsed),
	)
	return nil
}

// classify сводит результат запуска к nil или ToolFailure.
func classify(cmd Command, res execute.ExecResult, execErr, ctxErr error) error {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fault.ToolFailure(cmd.Tool, -1, "превышен таймаут выполнения", ctxErr)
	case errors.Is(ctxErr, context.Canceled):
		return fault.ToolFailure(cmd.Tool, -1, "выполнение отменено", ctxErr)
	case execErr != nil:
		return fault.ToolFailure(cmd.Tool, -1, fmt.Sprintf("не удалось запустить %s", cmd.Binary), execErr)
	case res.ExitCode != 0:
		return fault.ToolFailure(cmd.Tool, res.ExitCode, StderrTail(res.Stderr), nil)
	}
	return nil
}

// StderrTail возвращает не более MaxStderrTail последних байт stderr без
// обрезанных UTF-8 последовательностей в начале.
func StderrTail(stderr string) string {
	s := strings.TrimSpace(stderr)
	if len(s) <= MaxStderrTail {
		return s
	}
	s = s[len(s)-MaxStderrTail:]
	// пропускаем байты продолжения UTF-8
	for len(s) > 0 && s[0]&0xC0 == 0x80 {
		s = s[1:]
	}
	return s
}
