package handlers

import (
	"net/http"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/services"
	"spaces-backend/pkg/utils"
)

// AuthHandler 注册、登录与会话
type AuthHandler struct {
	accounts *services.Accounts
	activity *services.ActivityLog
	sessions *auth.SessionService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(accounts *services.Accounts, activity *services.ActivityLog, sessions *auth.SessionService) *AuthHandler {
	return &AuthHandler{accounts: accounts, activity: activity, sessions: sessions}
}

// issueSession 签发令牌并写入 cookie，返回令牌供非浏览器客户端使用
func issueSession(w http.ResponseWriter, sessions *auth.SessionService, user *models.User, stack []string) (string, error) {
	token, expiry, err := sessions.Issue(user, stack)
	if err != nil {
		return "", err
	}
	sessions.SetCookie(w, token, expiry)
	return token, nil
}

// Signup 注册并登录
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	token, err := issueSession(w, h.sessions, user, nil)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteSuccess(w, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// Login 用户名或邮箱登录
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	user, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	token, err := issueSession(w, h.sessions, user, nil)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteSuccess(w, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// Logout 清除会话
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	utils.WriteSuccess(w, map[string]interface{}{"message": "Logged out"})
}

// Me 当前登录身份
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	utils.WriteSuccess(w, map[string]interface{}{
		"user":            p.User,
		"impersonating":   p.IsImpersonating(),
		"impersonator_id": p.ImpersonatorID(),
	})
}

// MyActivity 当前用户的活动
// GET /api/activity?limit=
func (h *AuthHandler) MyActivity(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	events, err := h.activity.ForUser(r.Context(), p.UserID(), utils.QueryInt(r, "limit", 0))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{
		"activity": events,
		"count":    len(events),
	})
}

// Suspended 封禁说明
// GET /suspended
func (h *AuthHandler) Suspended(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if utils.WantsHTML(r) {
		if !p.IsSuspended() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		utils.WriteHTMLError(w, http.StatusOK, utils.ErrorPage{
			Title:   "Account suspended",
			Message: "Your account has been suspended by an administrator.",
			Suggestions: []string{
				"Contact your club leader if you think this is a mistake",
				"You can still log out",
			},
		})
		return
	}
	utils.WriteSuccess(w, map[string]interface{}{"suspended": p.IsSuspended()})
}
