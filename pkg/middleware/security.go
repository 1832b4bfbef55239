package middleware

import (
	"net/http"
	"strings"
)

var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com https://cdn.jsdelivr.net https://unpkg.com",
	"style-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com https://cdn.jsdelivr.net https://fonts.googleapis.com",
	"font-src 'self' https://fonts.gstatic.com https://cdnjs.cloudflare.com",
	"img-src 'self' data: https:",
	"connect-src 'self'",
}

// ContentSecurityPolicy 预览模式允许任意页面嵌入
func ContentSecurityPolicy(preview bool) string {
	frameAncestors := "frame-ancestors 'self'"
	if preview {
		frameAncestors = "frame-ancestors *"
	}
	return strings.Join(append(append([]string{}, cspDirectives...), frameAncestors), "; ")
}

// SecurityHeaders 为每个响应添加安全头；?preview=true 时放开嵌入与跨域读取
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			preview := r.URL.Query().Get("preview") == "true"
			h := w.Header()
			h.Set("Content-Security-Policy", ContentSecurityPolicy(preview))
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if preview {
				h.Set("Access-Control-Allow-Origin", "*")
			}
			next.ServeHTTP(w, r)
		})
	}
}
