package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/commerce-router/internal/logging"
	"github.com/zhouzirui/commerce-router/pkg/utils"
)

// RateLimiter 按客户端IP限流，空闲的限流器自动过期
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

// NewRateLimiter 创建每分钟perMinute次请求的限流器；perMinute<=0 表示不限流
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: cache.New(10*time.Minute, 5*time.Minute),
	}
}

// Handler 返回限流中间件；nil限流器直接放行
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	logger := logging.For("ratelimit")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r)
		if !l.Allow(key) {
			logger.WithField("client", key).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow 消耗 key 的一个配额；nil限流器总是放行
func (l *RateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(key).Allow()
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	if v, ok := l.limiters.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.limiters.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// lost the race with a concurrent request for the same client
		if v, ok := l.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// ClientKey 返回限流使用的客户端标识，依赖 chi RealIP 中间件已改写 RemoteAddr
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
