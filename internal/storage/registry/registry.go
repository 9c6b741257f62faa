// Пакет registry — потокобезопасный in-memory реестр записей о документах.
//
// Реестр — единственный владелец FileRecord. Хранит и отдаёт глубокие копии,
// поэтому читатели никогда не видят частично обновлённую запись.
//
// Аренды (leases) защищают запись от конкурирующих операций:
// финализация берёт эксклюзивную аренду на весь прогон, скачивание и
// хэширование — разделяемую. Очистка и удаление не трогают арендованные записи.
//
// Не персистентный: при рестарте реестр пуст.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
	"github.com/bigkaa/goartstore/pdfvault/internal/domain/model"
)

// leaseState — счётчики аренд одной записи.
type leaseState struct {
	shared    int
	exclusive bool
}

func (l *leaseState) held() bool {
	return l.exclusive || l.shared > 0
}

// Registry — реестр записей id → FileRecord.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*model.FileRecord
	leases  map[string]*leaseState
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		records: make(map[string]*model.FileRecord),
		leases:  make(map[string]*leaseState),
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Create добавляет новую запись. Повтор id — Conflict.
func (r *Registry) Create(rec *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; ok {
		return fault.Conflict("запись %s уже существует", rec.ID)
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

// Get возвращает копию записи.
func (r *Registry) Get(id string) (*model.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fault.NotFound(id)
	}
	return rec.Clone(), nil
}

// Update атомарно изменяет запись функцией fn над копией.
// Если fn вернула ошибку, запись не меняется.
func (r *Registry) Update(id string, fn func(rec *model.FileRecord) error) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fault.NotFound(id)
	}

	working := rec.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	// id не меняется через Update
	working.ID = rec.ID
	r.records[id] = working
	return working.Clone(), nil
}

// Delete удаляет запись и возвращает её. Арендованную запись удалить нельзя.
func (r *Registry) Delete(id string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fault.NotFound(id)
	}
	if l := r.leases[id]; l != nil && l.held() {
		return nil, fault.Conflict("файл %s сейчас обрабатывается", id)
	}
	delete(r.records, id)
	delete(r.leases, id)
	return rec, nil
}

// List возвращает копии записей, новые первыми, с опциональным фильтром по статусу.
// limit = 0 — без ограничения. Второе значение — общее количество с учётом фильтра.
func (r *Registry) List(limit, offset int, statusFilter model.FileStatus) ([]*model.FileRecord, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := make([]*model.FileRecord, 0, len(r.records))
	for _, rec := range r.records {
		if statusFilter != "" && rec.Status != statusFilter {
			continue
		}
		filtered = append(filtered, rec.Clone())
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return []*model.FileRecord{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return filtered[offset:end], total
}

// Count возвращает количество записей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// CountByStatus возвращает количество записей с указанным статусом.
func (r *Registry) CountByStatus(status model.FileStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rec := range r.records {
		if rec.Status == status {
			count++
		}
	}
	return count
}

// OwnedPaths возвращает множество путей, принадлежащих записям.
func (r *Registry) OwnedPaths() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make(map[string]struct{}, len(r.records))
	for _, rec := range r.records {
		paths[rec.Path] = struct{}{}
	}
	return paths
}

// Expired атомарно удаляет из реестра и возвращает неарендованные записи
// старше maxAge. Арендованные записи остаются до следующего прохода.
func (r *Registry) Expired(now time.Time, maxAge time.Duration) []*model.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*model.FileRecord
	for id, rec := range r.records {
		if !rec.IsExpired(now, maxAge) {
			continue
		}
		if l := r.leases[id]; l != nil && l.held() {
			r.logger.Debug("Истёкшая запись арендована, пропуск",
				slog.String("file_id", id),
			)
			continue
		}
		delete(r.records, id)
		delete(r.leases, id)
		evicted = append(evicted, rec)
	}
	return evicted
}

// Lease — аренда записи. Release идемпотентен.
type Lease struct {
	reg       *Registry
	id        string
	exclusive bool
	once      sync.Once
}

// ID возвращает идентификатор арендованной записи.
func (l *Lease) ID() string {
	return l.id
}

// Exclusive сообщает, эксклюзивна ли аренда.
func (l *Lease) Exclusive() bool {
	return l.exclusive
}

// Release освобождает аренду.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.reg.release(l.id, l.exclusive)
	})
}

// Acquire берёт аренду записи.
// Эксклюзивная аренда невозможна при любой другой аренде;
// разделяемая — при эксклюзивной. В обоих случаях — Conflict.
func (r *Registry) Acquire(id string, exclusive bool) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil, fault.NotFound(id)
	}

	l := r.leases[id]
	if l == nil {
		l = &leaseState{}
		r.leases[id] = l
	}

	switch {
	case l.exclusive:
		return nil, fault.Conflict("файл %s сейчас обрабатывается", id)
	case exclusive && l.shared > 0:
		return nil, fault.Conflict("файл %s сейчас читается", id)
	}

	if exclusive {
		l.exclusive = true
	} else {
		l.shared++
	}
	return &Lease{reg: r, id: id, exclusive: exclusive}, nil
}

// IsLeased проверяет, арендована ли запись.
func (r *Registry) IsLeased(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l := r.leases[id]
	return l != nil && l.held()
}

func (r *Registry) release(id string, exclusive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.leases[id]
	if l == nil {
		return
	}
	if exclusive {
		l.exclusive = false
	} else if l.shared > 0 {
		l.shared--
	}
	if !l.held() {
		delete(r.leases, id)
	}
}
