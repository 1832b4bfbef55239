package handlers

import (
	"net/http"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// SitesHandler 空间的增删改查
type SitesHandler struct {
	spaces *services.SpaceStore
}

// NewSitesHandler 创建空间处理器
func NewSitesHandler(spaces *services.SpaceStore) *SitesHandler {
	return &SitesHandler{spaces: spaces}
}

// ListSites 列出当前用户的空间
// GET /api/sites
func (h *SitesHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaces.ListByOwner(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if spaces == nil {
		spaces = []models.Space{}
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"sites": spaces,
		"count": len(spaces),
	})
}

// CreateSite 创建网页空间
// POST /api/sites
func (h *SitesHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSpaceRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	h.create(w, r, services.CreateSpaceInput{Name: req.Name, Kind: models.SpaceKindWeb})
}

// CreateCodeSite 创建代码空间
// POST /api/sites/code
func (h *SitesHandler) CreateCodeSite(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCodeSpaceRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	h.create(w, r, services.CreateSpaceInput{Name: req.Name, Kind: models.SpaceKindCode, Language: req.Language})
}

func (h *SitesHandler) create(w http.ResponseWriter, r *http.Request, in services.CreateSpaceInput) {
	space, err := h.spaces.Create(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"id":   space.ID,
		"slug": space.Slug,
		"site": space,
	})
}

// GetSite 空间详情
// GET /api/sites/{id}
func (h *SitesHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	space, err := h.spaces.Get(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"site": space})
}

// UpdateSite 保存内容；html 用于网页空间，content/language_content 用于代码空间
// PUT /api/sites/{id}
func (h *SitesHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSpaceRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	patch := services.ContentPatch{
		HTML:             req.HTML,
		LanguageContent:  req.LanguageContent,
		LanguageVersion:  req.Version,
		IsPublic:         req.IsPublic,
		AnalyticsEnabled: req.AnalyticsEnabled,
	}
	if patch.LanguageContent == nil {
		patch.LanguageContent = req.Content
	}

	space, err := h.spaces.UpdateContent(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"message": "Saved",
		"site":    space,
	})
}

// RenameSite 重命名
// PUT /api/sites/{id}/rename
func (h *SitesHandler) RenameSite(w http.ResponseWriter, r *http.Request) {
	var req models.RenameSpaceRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	space, err := h.spaces.Rename(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"id":   space.ID,
		"name": space.Name,
		"slug": space.Slug,
	})
}

// DeleteSite 删除空间及其全部文件
// DELETE /api/sites/{id}
func (h *SitesHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := h.spaces.Delete(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"message": "Space deleted"})
}
