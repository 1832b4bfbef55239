package handlers

import (
	"context"
	"net/http"
	"time"

	"spaces-backend/pkg/utils"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

// HealthChecker 数据库健康检查
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthHandler 健康检查
type HealthHandler struct {
	environment string
	database    string
	checker     HealthChecker
}

// NewHealthHandler database 为 "postgresql" 或 "memory"
func NewHealthHandler(environment, database string, checker HealthChecker) *HealthHandler {
	return &HealthHandler{environment: environment, database: database, checker: checker}
}

// HealthCheck 健康检查
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, dbStatus, code := "healthy", "healthy", http.StatusOK
	if err := h.checker.Check(r.Context()); err != nil {
		status, dbStatus, code = "degraded", "unhealthy", http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, code, map[string]interface{}{
		"success":     code == http.StatusOK,
		"service":     "spaces-backend",
		"version":     Version,
		"environment": h.environment,
		"database":    h.database,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      status,
	})
}
