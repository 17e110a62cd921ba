package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter ограничивает число запросов на ключ (IP) за окно
type RateLimiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	cleanupC chan struct{}
	stopOnce sync.Once
	rate     int
	window   time.Duration
	mu       sync.Mutex
}

// bucket представляет bucket для конкретного IP/ключа
type bucket struct {
	lastRefill time.Time
	tokens     int
}

// NewRateLimiter создает rate limiter: rate запросов за window.
// Остановить фоновую очистку - Stop.
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные buckets
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets(time.Now())
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupOldBuckets удаляет buckets, которые не пополнялись дольше 2*window
func (rl *RateLimiter) cleanupOldBuckets(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.window*2 {
			delete(rl.buckets, key)
		}
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.cleanupC)
	})
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.rate, lastRefill: now}
		rl.buckets[key] = b
	}

	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// RateLimitMiddleware отвечает 429, когда limiter исчерпан для IP клиента
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return RateLimitByPathMiddleware(nil, limiter)
}

// RateLimitByPathMiddleware применяет отдельные limiters к путям
// (например, строже для /api/login), остальным - defaultLimiter
func RateLimitByPathMiddleware(limiters map[string]*RateLimiter, defaultLimiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, ok := limiters[r.URL.Path]
			if !ok {
				limiter = defaultLimiter
			}

			key := getClientIP(r)
			if !limiter.Allow(key) {
				limiter.logger.Warn("Rate limit exceeded",
					"ip", key,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", retryAfter(limiter.window))
				writeMessage(w, http.StatusTooManyRequests, "Too Many Attempts.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// getClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
