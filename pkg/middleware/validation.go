package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/ratelimit"
	"spaces-backend/pkg/utils"
)

// ContentTypeJSON 带请求体的写请求必须是 application/json
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			// 检查是否为application/json（忽略charset等参数）
			if r.ContentLength != 0 && contentType != "" &&
				!strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				utils.WriteErrorMessage(w, http.StatusUnsupportedMediaType, apperr.InvalidInput,
					"Content-Type must be application/json")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize 限制请求体大小
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit 按客户端IP与请求类别限流
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 存储出错时 Decide 已放行并记录日志
			decision, _ := limiter.Decide(r.Context(), ClientIP(r), ratelimit.Classify(r))
			if !decision.Allowed {
				seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				utils.WriteErrorMessage(w, http.StatusTooManyRequests, apperr.RateLimited,
					"Rate limit exceeded. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
