package handlers

import (
	"net/http"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/runtimes"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServeHandler 发布页面与编辑器引导数据
type ServeHandler struct {
	spaces  *services.SpaceStore
	pages   *services.PageStore
	catalog services.LanguageCatalog
	logger  *zap.Logger
}

// NewServeHandler 创建发布处理器
func NewServeHandler(spaces *services.SpaceStore, pages *services.PageStore, catalog services.LanguageCatalog) *ServeHandler {
	return &ServeHandler{spaces: spaces, pages: pages, catalog: catalog, logger: log.WithName("serve")}
}

// ServeSite 发布的首页；代码空间以纯文本返回源码
// GET /s/{slug}
func (h *ServeHandler) ServeSite(w http.ResponseWriter, r *http.Request) {
	space, ok := h.load(w, r)
	if !ok {
		return
	}
	if space.IsCode() {
		writeFile(w, runtimes.Extension(space.Language()), space.LanguageContent)
		return
	}
	page, err := h.pages.ReadPublished(r.Context(), space, services.IndexFilename)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			h.writeError(w, r, err)
			return
		}
		writeFile(w, "html", space.HTMLContent)
		return
	}
	writeFile(w, page.FileType, page.Content)
}

// ServeFile 发布空间内的单个文件
// GET /s/{slug}/*
func (h *ServeHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := strings.Trim(chi.URLParam(r, "*"), "/")
	if filename == "" {
		h.ServeSite(w, r)
		return
	}
	space, ok := h.load(w, r)
	if !ok {
		return
	}
	page, err := h.pages.ReadPublished(r.Context(), space, filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeFile(w, page.FileType, page.Content)
}

// load 按 slug 查找并统计匿名访问
func (h *ServeHandler) load(w http.ResponseWriter, r *http.Request) (*models.Space, bool) {
	actor := auth.FromContext(r.Context())
	space, err := h.spaces.GetBySlug(r.Context(), actor, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if !actor.IsAuthenticated() && chi.URLParam(r, "*") == "" {
		if err := h.spaces.RecordView(r.Context(), space.ID); err != nil {
			h.logger.Warn("failed to record view", zap.String("space_id", space.ID), zap.Error(err))
		}
	}
	return space, true
}

func (h *ServeHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.Is(err, apperr.NotFound) {
		utils.WriteHTMLError(w, http.StatusNotFound, utils.ErrorPage{
			Title:   "Space not found",
			Message: "This space doesn't exist or isn't public.",
		})
		return
	}
	if utils.WantsHTML(r) {
		h.logger.Error("failed to serve space", zap.String("path", r.URL.Path), zap.Error(err))
		utils.WriteHTMLError(w, apperr.HTTPStatus(apperr.KindOf(err)), utils.ErrorPage{
			Title:   "Something went wrong",
			Message: "We couldn't load this space.",
		})
		return
	}
	utils.WriteError(w, err)
}

// writeFile 按文件类型设置 MIME
func writeFile(w http.ResponseWriter, fileType, content string) {
	w.Header().Set("Content-Type", services.ContentType(fileType))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// Editor 编辑器引导数据：空间、语言元数据与文件列表
// GET /code/{id}
func (h *ServeHandler) Editor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.FromContext(ctx)
	space, err := h.spaces.Get(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	body := map[string]interface{}{"site": space}
	if space.IsCode() {
		lang := space.Language()
		latest, _ := h.catalog.LatestVersion(ctx, lang)
		body["version"] = space.Code.Version
		body["language"] = models.LanguageRuntime{
			Name:          lang,
			DisplayName:   runtimes.DisplayName(lang),
			Versions:      h.catalog.Versions(ctx, lang),
			LatestVersion: latest,
			Extension:     runtimes.Extension(lang),
			EditorMode:    runtimes.EditorMode(lang),
			Icon:          runtimes.Icon(lang),
		}
	} else {
		pages, err := h.pages.List(ctx, actor, space.ID)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		body["pages"] = pages
	}
	utils.WriteSuccess(w, body)
}
