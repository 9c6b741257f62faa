package ratelimit

import (
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// maxTrackedClients — сколько IP одновременно отслеживается.
const maxTrackedClients = 10000

// IPLimiter — token bucket на каждый IP. Бакеты хранятся в LRU с TTL,
// неактивные клиенты вытесняются.
type IPLimiter struct {
	limit rate.Limit
	burst int
	cache *expirable.LRU[string, *rate.Limiter]
}

// NewIPLimiter создаёт ограничитель: в среднем cfg.Max запросов за cfg.Window,
// всплеск до cfg.Max.
func NewIPLimiter(cfg Config) *IPLimiter {
	return &IPLimiter{
		limit: rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		burst: cfg.Max,
		cache: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, cfg.Window),
	}
}

// Allow расходует токен клиента ip. При отказе возвращает время до
// появления следующего токена.
func (l *IPLimiter) Allow(ip string) (bool, time.Duration) {
	lim, ok := l.cache.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(ip, lim)
	}

	now := time.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, time.Duration(math.Ceil(delay.Seconds())) * time.Second
}

// Tracked возвращает число отслеживаемых клиентов.
func (l *IPLimiter) Tracked() int {
	return l.cache.Len()
}
