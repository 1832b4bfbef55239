package handlers

import (
	"context"
	"net/http"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/utils"
)

// RuntimeLister 语言目录
type RuntimeLister interface {
	Runtimes(ctx context.Context) []models.LanguageRuntime
	Refresh(ctx context.Context) error
}

// LanguagesHandler 语言列表
type LanguagesHandler struct {
	catalog RuntimeLister
}

// NewLanguagesHandler 创建语言处理器
func NewLanguagesHandler(catalog RuntimeLister) *LanguagesHandler {
	return &LanguagesHandler{catalog: catalog}
}

// ListLanguages 可用语言及版本
// GET /api/languages
func (h *LanguagesHandler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	runtimes := h.catalog.Runtimes(r.Context())
	if runtimes == nil {
		runtimes = []models.LanguageRuntime{}
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"languages": runtimes,
		"count":     len(runtimes),
	})
}

// RefreshLanguages 重新拉取沙箱运行时
// POST /api/languages/refresh
func (h *LanguagesHandler) RefreshLanguages(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		utils.WriteError(w, apperr.Wrap(apperr.UpstreamUnavailable, "Failed to refresh languages", err))
		return
	}
	h.ListLanguages(w, r)
}
