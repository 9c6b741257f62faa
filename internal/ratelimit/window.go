// Пакет ratelimit — ограничение частоты запросов.
//
// Window — скользящее окно загрузок на клиента: не больше Max допусков за
// Window. Проверка и учёт выполняются атомарно, отказ не расходует лимит.
// Две реализации: in-memory (по умолчанию) и Redis (несколько экземпляров
// сервиса делят один счётчик).
//
// IPLimiter — общий token bucket на IP для всех API-запросов.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config — параметры скользящего окна.
type Config struct {
	// Max — допустимое число событий в окне
	Max int
	// Window — длина окна
	Window time.Duration
}

// Decision — результат проверки лимита.
type Decision struct {
	Allowed bool
	// Remaining — сколько ещё событий допустимо в текущем окне
	Remaining int
	// RetryAfter — через сколько освободится место (только при отказе)
	RetryAfter time.Duration
}

// Window — скользящее окно с атомарной проверкой и учётом.
type Window interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryWindow — in-memory реализация Window.
type MemoryWindow struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewMemoryWindow создаёт in-memory окно.
func NewMemoryWindow(cfg Config) *MemoryWindow {
	return &MemoryWindow{
		cfg:    cfg,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// Allow проверяет лимит для key и при допуске учитывает событие.
func (w *MemoryWindow) Allow(_ context.Context, key string) (Decision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	events := w.pruneLocked(key, now)

	if len(events) >= w.cfg.Max {
		retry := events[0].Add(w.cfg.Window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	w.events[key] = append(events, now)
	return Decision{Allowed: true, Remaining: w.cfg.Max - len(events) - 1}, nil
}

// Prune удаляет устаревшие события всех ключей. Возвращает число
// оставшихся ключей.
func (w *MemoryWindow) Prune() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for key := range w.events {
		w.pruneLocked(key, now)
	}
	return len(w.events)
}

// pruneLocked отбрасывает события старше окна. Пустой ключ удаляется.
func (w *MemoryWindow) pruneLocked(key string, now time.Time) []time.Time {
	events := w.events[key]
	cutoff := now.Add(-w.cfg.Window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	events = events[i:]
	if len(events) == 0 {
		delete(w.events, key)
		return nil
	}
	w.events[key] = events
	return events
}
