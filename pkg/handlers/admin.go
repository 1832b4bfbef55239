package handlers

import (
	"net/http"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// AdminHandler 管理员接口
type AdminHandler struct {
	accounts *services.Accounts
	settings *services.SettingsStore
	activity *services.ActivityLog
	sessions *auth.SessionService
}

// NewAdminHandler 创建管理员处理器
func NewAdminHandler(accounts *services.Accounts, settings *services.SettingsStore,
	activity *services.ActivityLog, sessions *auth.SessionService) *AdminHandler {
	return &AdminHandler{accounts: accounts, settings: settings, activity: activity, sessions: sessions}
}

// GetSettings 当前系统设置
// GET /api/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"settings": settings})
}

// UpdateSettings 部分更新系统设置
// PUT /api/admin/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	settings, err := h.settings.Update(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"settings": settings})
}

// RecentActivity 全站最近活动
// GET /api/admin/activity?limit=
func (h *AdminHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	events, err := h.activity.Recent(r.Context(), utils.QueryInt(r, "limit", services.DefaultActivityLimit))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"activity": events,
		"count":    len(events),
	})
}

// SuspendUser 封禁
// POST /api/admin/users/{id}/suspend
func (h *AdminHandler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, true)
}

// UnsuspendUser 解封
// POST /api/admin/users/{id}/unsuspend
func (h *AdminHandler) UnsuspendUser(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, false)
}

func (h *AdminHandler) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	user, err := h.accounts.SetSuspended(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), suspended)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"id":           user.ID,
		"is_suspended": user.IsSuspended,
	})
}

// DeleteUser 删除用户及其全部数据
// DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"message": "User deleted"})
}

// Impersonate 以目标用户身份登录，管理员 id 压入模拟栈
// POST /api/admin/impersonate/{id}
func (h *AdminHandler) Impersonate(w http.ResponseWriter, r *http.Request) {
	user, stack, err := h.accounts.Impersonate(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	h.switchSession(w, user, stack)
}

// StopImpersonation 弹出模拟栈，恢复管理员会话
// POST /api/admin/impersonate/stop
func (h *AdminHandler) StopImpersonation(w http.ResponseWriter, r *http.Request) {
	user, stack, err := h.accounts.StopImpersonation(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	h.switchSession(w, user, stack)
}

func (h *AdminHandler) switchSession(w http.ResponseWriter, user *models.User, stack []string) {
	token, err := issueSession(w, h.sessions, user, stack)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"user":          user,
		"token":         token,
		"impersonating": len(stack) > 0,
	})
}
