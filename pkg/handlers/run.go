package handlers

import (
	"context"
	"net/http"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/execution"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Executor 代码执行
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (models.ExecutionResult, error)
}

// LanguageResolver 语言别名解析
type LanguageResolver interface {
	Canonical(lang string) string
}

// RunHandler 运行代码空间
type RunHandler struct {
	spaces    *services.SpaceStore
	executor  Executor
	languages LanguageResolver
	activity  *services.ActivityLog
	logger    *zap.Logger
}

// NewRunHandler 创建运行处理器
func NewRunHandler(spaces *services.SpaceStore, executor Executor, languages LanguageResolver, activity *services.ActivityLog) *RunHandler {
	return &RunHandler{
		spaces:    spaces,
		executor:  executor,
		languages: languages,
		activity:  activity,
		logger:    log.WithName("run"),
	}
}

// RunSite 运行并返回 output 字段
// POST /api/sites/{id}/run
func (h *RunHandler) RunSite(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "output")
}

// RunCode 编辑器使用的运行接口，返回 run_output 字段
// POST /api/run/{id}
func (h *RunHandler) RunCode(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "run_output")
}

func (h *RunHandler) run(w http.ResponseWriter, r *http.Request, outputField string) {
	ctx := r.Context()
	actor := auth.FromContext(ctx)

	var req models.RunRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.WriteError(w, err)
			return
		}
	}

	space, err := h.spaces.Get(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if !space.IsCode() {
		utils.WriteError(w, apperr.New(apperr.InvalidInput, "Only code spaces can be run"))
		return
	}
	// language 可选，只能与空间语言一致（允许别名）
	if req.Language != "" && h.languages.Canonical(req.Language) != space.Code.Language {
		utils.WriteError(w, apperr.Newf(apperr.InvalidInput,
			"Language %q does not match this space (%s)", req.Language, space.Code.Language))
		return
	}

	source := space.LanguageContent
	if req.Code != nil {
		source = *req.Code
	}
	version := req.Version
	if version == "" {
		version = space.Code.Version
	}

	result, err := h.executor.Execute(ctx, execution.Request{
		Language: space.Code.Language,
		Version:  version,
		Source:   source,
		Stdin:    req.Stdin,
		Args:     req.Args,
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	err = h.activity.Append(ctx, nil, services.Entry{
		Type:     models.ActivityCodeExecuted,
		Template: "{username} ran " + space.Name,
		Actor:    actor,
		UserID:   space.OwnerID,
		SpaceID:  space.ID,
	})
	if err != nil {
		h.logger.Warn("failed to record execution", zap.String("space_id", space.ID), zap.Error(err))
	}

	body := map[string]interface{}{
		"success":        result.Success,
		outputField:      result.Stdout,
		"stderr":         result.Stderr,
		"phase":          result.Phase,
		"language":       result.Language,
		"version":        result.Version,
		"execution_time": result.WallTimeMs,
	}
	if result.ExitCode != nil {
		body["exit_code"] = *result.ExitCode
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Stderr
		}
		body["error"] = msg
	}
	utils.WriteJSON(w, http.StatusOK, body)
}
