package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/metrics"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Logger 请求日志中间件；m 可为 nil
func Logger(m *metrics.Metrics) func(http.Handler) http.Handler {
	logger := log.WithName("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			// Session 中间件在内层写入 principal，这里通过指针回读
			holder := &principalHolder{}
			r = r.WithContext(withPrincipalHolder(r.Context(), holder))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if m != nil {
				m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			}

			user := "anonymous"
			if holder.principal.IsAuthenticated() {
				user = holder.principal.Username()
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("user", user),
				zap.String("ip", ClientIP(r)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

type principalHolder struct {
	principal auth.Principal
}

type holderKey struct{}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func recordPrincipal(ctx context.Context, p auth.Principal) {
	if h, ok := ctx.Value(holderKey{}).(*principalHolder); ok {
		h.principal = p
	}
}
