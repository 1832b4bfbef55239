package middleware

import (
	"context"
	"net/http"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/utils"

	"go.uber.org/zap"
)

// LivenessChecker 数据库健康检查
type LivenessChecker interface {
	Check(ctx context.Context) error
}

// SettingsReader 读取系统设置
type SettingsReader interface {
	Get(ctx context.Context) (models.SystemSettings, error)
}

// DBLiveness 数据库不可用时返回 503；/health 与 /metrics 自行处理
func DBLiveness(checker LivenessChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/static/") {
				next.ServeHTTP(w, r)
				return
			}
			if err := checker.Check(r.Context()); err != nil {
				if utils.WantsHTML(r) {
					utils.WriteHTMLError(w, http.StatusServiceUnavailable, utils.DatabaseUnavailablePage())
					return
				}
				utils.WriteErrorMessage(w, http.StatusServiceUnavailable, apperr.DatabaseUnavailable,
					"Database temporarily unavailable. Please try again shortly.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maintenanceExempt 维护模式下仍然开放的路径
func maintenanceExempt(path string) bool {
	switch path {
	case "/health", "/metrics", "/login", "/logout":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// Maintenance 维护模式下对非管理员返回 503
func Maintenance(settings SettingsReader) func(http.Handler) http.Handler {
	logger := log.WithName("maintenance")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maintenanceExempt(r.URL.Path) || auth.FromContext(r.Context()).IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			current, err := settings.Get(r.Context())
			if err != nil {
				logger.Warn("failed to read settings, skipping maintenance check", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !current.MaintenanceMode {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "300")
			if utils.WantsHTML(r) {
				utils.WriteHTMLError(w, http.StatusServiceUnavailable, utils.ErrorPage{
					Title:   "Down for maintenance",
					Message: current.MaintenanceMessage,
				})
				return
			}
			utils.WriteErrorMessage(w, http.StatusServiceUnavailable, apperr.Maintenance, current.MaintenanceMessage)
		})
	}
}
