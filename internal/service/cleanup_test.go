package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/pdfvault/internal/domain/fault"
)

func TestCleanupRunOnce_NothingToDo(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := uploadSample(t, env)

	result := env.cleanup.RunOnce()

	if len(result.Evicted) != 0 {
		t.Errorf("Evicted: хотели 0, получили %v", result.Evicted)
	}
	if result.Orphans != 0 || result.Errors != 0 {
		t.Errorf("Orphans/Errors: хотели 0/0, получили %d/%d", result.Orphans, result.Errors)
	}
	if _, err := env.reg.Get(rec.ID); err != nil {
		t.Errorf("Свежая запись не должна удаляться: %v", err)
	}
}

func TestCleanupRunOnce_EvictsExpired(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := uploadSample(t, env)
	done := uploadSample(t, env)
	if _, err := env.pipeline.Finalize(context.Background(), done.ID); err != nil {
		t.Fatalf("Ошибка финализации: %v", err)
	}

	// Через два часа обе записи старше PV_MAX_FILE_AGE (1h)
	env.cleanup.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	result := env.cleanup.RunOnce()

	if len(result.Evicted) != 2 {
		t.Fatalf("Evicted: хотели 2, получили %v", result.Evicted)
	}
	for _, id := range []string{rec.ID, done.ID} {
		if !slices.Contains(result.Evicted, id) {
			t.Errorf("Запись %s должна быть удалена", id)
		}
		if _, err := env.reg.Get(id); !errors.Is(err, fault.ErrNotFound) {
			t.Errorf("Запись %s осталась в реестре", id)
		}
	}
	if files := env.sandboxFiles(t); len(files) != 0 {
		t.Errorf("Файлы должны быть удалены, получили %v", files)
	}
	if result.Errors != 0 {
		t.Errorf("Errors: хотели 0, получили %d", result.Errors)
	}
}

func TestCleanupRunOnce_SkipsLeased(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := uploadSample(t, env)

	lease, err := env.reg.Acquire(rec.ID, false)
	if err != nil {
		t.Fatalf("Ошибка аренды: %v", err)
	}

	env.cleanup.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	result := env.cleanup.RunOnce()

	if len(result.Evicted) != 0 {
		t.Errorf("Арендованная запись не должна удаляться, получили %v", result.Evicted)
	}
	if !env.store.Exists(rec.Path) {
		t.Error("Файл арендованной записи не должен удаляться")
	}

	// После снятия аренды запись удаляется следующим проходом
	lease.Release()
	result = env.cleanup.RunOnce()
	if len(result.Evicted) != 1 || result.Evicted[0] != rec.ID {
		t.Errorf("Evicted: хотели [%s], получили %v", rec.ID, result.Evicted)
	}
}

func TestCleanupRunOnce_SweepsOldOrphans(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := uploadSample(t, env)

	old := time.Now().Add(-3 * time.Hour)
	oldOrphan := filepath.Join(env.root, "tmp", "stale.upload")
	youngOrphan := filepath.Join(env.root, "tmp", "inflight.upload.part")
	for _, p := range []string{oldOrphan, youngOrphan} {
		if err := os.WriteFile(p, []byte("partial"), 0o640); err != nil {
			t.Fatalf("Ошибка создания файла: %v", err)
		}
	}
	if err := os.Chtimes(oldOrphan, old, old); err != nil {
		t.Fatalf("Ошибка изменения mtime: %v", err)
	}
	// Старый файл записи сиротой не считается
	if err := os.Chtimes(filepath.Join(env.root, rec.Path), old, old); err != nil {
		t.Fatalf("Ошибка изменения mtime: %v", err)
	}

	result := env.cleanup.RunOnce()

	if result.Orphans != 1 {
		t.Errorf("Orphans: хотели 1, получили %d", result.Orphans)
	}
	if _, err := os.Stat(oldOrphan); !os.IsNotExist(err) {
		t.Error("Старый файл-сирота должен быть удалён")
	}
	if _, err := os.Stat(youngOrphan); err != nil {
		t.Error("Молодой файл (незавершённая загрузка) не должен удаляться")
	}
	if !env.store.Exists(rec.Path) {
		t.Error("Файл записи не должен удаляться")
	}
}

func TestCleanupScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t, 10)
	uploadSample(t, env)
	env.cleanup.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	env.cleanup.Start(context.Background())

	// Первый проход выполняется сразу после старта
	deadline := time.Now().Add(2 * time.Second)
	for env.reg.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	env.cleanup.Stop()

	if env.reg.Count() != 0 {
		t.Errorf("Первый проход должен удалить запись, осталось %d", env.reg.Count())
	}
}
