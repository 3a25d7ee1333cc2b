package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fixedWindowScript увеличивает счётчик и ставит срок жизни на первом запросе окна.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RateLimiter ограничивает число запросов с одного адреса за окно времени.
// Счётчики лежат в Redis и общие для всех экземпляров сервиса.
type RateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	logger *zap.Logger
}

// NewRateLimiter создаёт ограничитель. Нулевые параметры заменяются на 30 запросов в минуту.
func NewRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, logger *zap.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, logger: logger}
}

// Middleware отклоняет запросы сверх лимита с 429. Если Redis недоступен, запрос пропускается.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := rl.incr(r.Context(), rl.prefix+":"+clientKey(r))
		if err != nil {
			rl.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	n, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit script: %w", err)
	}
	return n, nil
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
