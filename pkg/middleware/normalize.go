package middleware

import (
	"net/http"
	"strings"
)

// Normalize standardizes request fields coming through proxies (Vercel/Cloudflare)
// - Trims whitespace around URL.Path to avoid paths like "/s/demo%20%20"
// - Restores scheme/host from forwarding headers, only when RealIP saw a trusted proxy
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := r.URL.Path; strings.TrimSpace(p) != p {
				r.URL.Path = strings.TrimSpace(p)
			}

			if viaTrustedProxy(r) {
				if xfproto := r.Header.Get("X-Forwarded-Proto"); xfproto == "http" || xfproto == "https" {
					r.URL.Scheme = xfproto
				}
				if xfhost := r.Header.Get("X-Forwarded-Host"); xfhost != "" {
					r.Host = xfhost
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
