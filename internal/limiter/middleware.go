// Package limiter 限流中间件实现
package limiter

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/warestack/lotkeeper/internal/middleware"
	"github.com/warestack/lotkeeper/internal/resp"
)

// KeyFunc 从请求提取限流key
type KeyFunc func(r *http.Request) string

// IPKey 按客户端IP限流
func IPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", host)
}

// CompanyKey 按认证声明中的公司限流，未认证时退回IP维度
func CompanyKey(r *http.Request) string {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.CompanyID > 0 {
		return fmt.Sprintf("company:%d", claims.CompanyID)
	}
	return IPKey(r)
}

// Middleware 返回HTTP限流中间件
// 限流器本身出错时放行请求，可用性优先于限流精度。
func Middleware(l Limiter, keyFn KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = IPKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.RequestIDFromContext(r.Context())

			result, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("request_id", reqID), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			if !result.Allowed {
				if result.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				}
				resp.Error(w, http.StatusTooManyRequests, resp.CodeRateLimited, "too many requests", reqID, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
