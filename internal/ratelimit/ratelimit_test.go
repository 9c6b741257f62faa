package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock — управляемое время для окна.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryWindow_RejectsOverLimitAndRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := NewMemoryWindow(Config{Max: 3, Window: time.Hour})
	w.now = clock.now
	ctx := context.Background()

	for i := range 3 {
		d, err := w.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "загрузка %d должна быть допущена", i+1)
		assert.Equal(t, 3-i-1, d.Remaining)
		clock.advance(time.Minute)
	}

	d, err := w.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "N+1 загрузка должна быть отклонена")
	assert.Equal(t, 57*time.Minute, d.RetryAfter)

	// отказ не расходует лимит: после выхода первого события место одно
	clock.advance(57*time.Minute + time.Second)
	d, _ = w.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	d, _ = w.Allow(ctx, "10.0.0.1")
	assert.False(t, d.Allowed)

	// полное восстановление после окна
	clock.advance(2 * time.Hour)
	d, _ = w.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestMemoryWindow_KeysAreIndependent(t *testing.T) {
	w := NewMemoryWindow(Config{Max: 1, Window: time.Hour})
	ctx := context.Background()

	d, _ := w.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	d, _ = w.Allow(ctx, "a")
	assert.False(t, d.Allowed)
	d, _ = w.Allow(ctx, "b")
	assert.True(t, d.Allowed)
}

func TestMemoryWindow_Prune(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	w := NewMemoryWindow(Config{Max: 5, Window: time.Minute})
	w.now = clock.now

	_, _ = w.Allow(context.Background(), "a")
	_, _ = w.Allow(context.Background(), "b")
	assert.Equal(t, 2, w.Prune())

	clock.advance(2 * time.Minute)
	assert.Equal(t, 0, w.Prune())
}

func TestIPLimiter(t *testing.T) {
	l := NewIPLimiter(Config{Max: 2, Window: time.Hour})

	ok, _ := l.Allow("1.1.1.1")
	assert.True(t, ok)
	ok, _ = l.Allow("1.1.1.1")
	assert.True(t, ok)

	ok, retry := l.Allow("1.1.1.1")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, retry, time.Second)

	ok, _ = l.Allow("2.2.2.2")
	assert.True(t, ok, "другой IP имеет свой бакет")
	assert.Equal(t, 2, l.Tracked())
}

// TestRedisWindow — интеграционный тест, нужен PV_TEST_REDIS_URL.
func TestRedisWindow(t *testing.T) {
	url := os.Getenv("PV_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PV_TEST_REDIS_URL не задан, пропуск интеграционного теста")
	}
	client, err := NewRedisClient(url)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis недоступен: %v", err)
	}

	prefix := "pv:test:" + uuid.NewString() + ":"
	defer client.Del(ctx, prefix+"ip", prefix+"ip:counter")

	w := NewRedisWindow(client, Config{Max: 2, Window: time.Minute}, prefix)
	for i := range 2 {
		d, err := w.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "загрузка %d", i+1)
	}
	d, err := w.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
