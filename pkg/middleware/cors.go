package middleware

import (
	"net/http"
	"strings"

	"spaces-backend/pkg/config"

	"github.com/go-chi/cors"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodPatch,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"X-Requested-With",
			"Cache-Control",
		},
		ExposedHeaders: []string{
			"Retry-After",
			"X-Request-Id",
		},
		MaxAge: 300, // 5分钟
	}

	// 当AllowedOrigins为*时，不能设置AllowCredentials为true
	if len(cfg.AllowedOrigins) > 0 && !contains(cfg.AllowedOrigins, "*") {
		corsOptions.AllowCredentials = true
		corsOptions.AllowOriginFunc = func(_ *http.Request, origin string) bool {
			return isOriginAllowed(origin, cfg.AllowedOrigins)
		}
	}

	return cors.Handler(corsOptions)
}

// isOriginAllowed 检查来源是否被允许。
// 每项最多一个 *，如 https://*.example.com 或 http://localhost:*；* 至少匹配一个字符
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" || len(allowedOrigins) == 0 {
		return false
	}
	if contains(allowedOrigins, "*") || contains(allowedOrigins, origin) {
		return true
	}
	for _, allowed := range allowedOrigins {
		prefix, suffix, ok := strings.Cut(allowed, "*")
		if !ok || strings.Contains(suffix, "*") {
			continue
		}
		if len(origin) > len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// contains 检查切片是否包含指定的字符串
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
