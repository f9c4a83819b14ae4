package middleware

import (
	"math"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit ограничивает общий поток запросов до perSecond в секунду.
// Неположительное значение отключает ограничение.
func RateLimit(perSecond float64, logger *zap.Logger) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	burst := int(math.Ceil(perSecond))
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("rate limit exceeded", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				w.Header().Set("Retry-After", "1")
				writeFailure(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
