package handlers

import (
	"net/http"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// PagesHandler 空间内文件
type PagesHandler struct {
	pages *services.PageStore
}

// NewPagesHandler 创建文件处理器
func NewPagesHandler(pages *services.PageStore) *PagesHandler {
	return &PagesHandler{pages: pages}
}

// ListPages 文件列表（不含内容）
// GET /api/site/{id}/pages
func (h *PagesHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.pages.List(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if pages == nil {
		pages = []models.PageInfo{}
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"pages": pages,
		"count": len(pages),
	})
}

// GetPage 读取单个文件
// GET /api/site/{id}/pages/{filename}
func (h *PagesHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Read(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "filename"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"page": page})
}

// SavePage 新建或覆盖单个文件
// POST /api/site/{id}/pages
func (h *PagesHandler) SavePage(w http.ResponseWriter, r *http.Request) {
	var req models.PageInput
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	page, err := h.pages.Upsert(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"filename":  page.Filename,
		"file_type": page.FileType,
	})
}

// ReplacePages 批量写入，未列出的文件保持不变
// PUT /api/site/{id}/pages
func (h *PagesHandler) ReplacePages(w http.ResponseWriter, r *http.Request) {
	var req models.BulkPagesRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	n, err := h.pages.BulkReplace(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), req.Files)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"saved": n})
}

// DeletePage 删除文件；默认网页文件受保护
// DELETE /api/site/{id}/pages/{filename}
func (h *PagesHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	err := h.pages.Delete(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "filename"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"message": "File deleted"})
}
