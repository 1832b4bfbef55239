package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"spaces-backend/pkg/config"
	"spaces-backend/pkg/log"

	"go.uber.org/zap"
)

type clientKey struct{}

type clientInfo struct {
	ip           string
	trustedProxy bool
}

// RealIP 解析客户端IP。
// 只有直连对端属于 trusted 时才读取 X-Forwarded-For / X-Real-IP；
// X-Forwarded-For 从右向左跳过可信代理，取第一个不可信的地址。
func RealIP(trusted []string) func(http.Handler) http.Handler {
	var networks []*net.IPNet
	for _, entry := range trusted {
		network, err := config.ParseProxy(entry)
		if err != nil {
			log.WithName("http").Warn("ignoring invalid trusted proxy", zap.String("entry", entry), zap.Error(err))
			continue
		}
		networks = append(networks, network)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := resolveClient(r, networks)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, info)))
		})
	}
}

func resolveClient(r *http.Request, networks []*net.IPNet) clientInfo {
	peer := remoteHost(r)
	if !isTrusted(net.ParseIP(peer), networks) {
		return clientInfo{ip: peer}
	}

	info := clientInfo{ip: peer, trustedProxy: true}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			info.ip = ip.String()
			if !isTrusted(ip, networks) {
				break
			}
		}
		return info
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		info.ip = ip.String()
	}
	return info
}

func isTrusted(ip net.IP, networks []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP 客户端IP；未经过 RealIP 时使用连接对端地址
func ClientIP(r *http.Request) string {
	if info, ok := r.Context().Value(clientKey{}).(clientInfo); ok {
		return info.ip
	}
	return remoteHost(r)
}

// viaTrustedProxy 请求是否由可信代理转发
func viaTrustedProxy(r *http.Request) bool {
	info, ok := r.Context().Value(clientKey{}).(clientInfo)
	return ok && info.trustedProxy
}
