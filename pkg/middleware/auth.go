package middleware

import (
	"errors"
	"net/http"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/utils"

	"go.uber.org/zap"
)

// Session 解析会话令牌并重新加载用户，将 Principal 写入 context。
// 令牌缺失或无效时以匿名身份继续，由具体路由决定是否需要登录。
func Session(sessions *auth.SessionService, db database.DatabaseInterface) func(http.Handler) http.Handler {
	logger := log.WithName("session")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.Anonymous()

			if token := auth.TokenFromRequest(r); token != "" {
				claims, err := sessions.Parse(token)
				if err != nil {
					logger.Debug("ignoring invalid session token", zap.Error(err))
				} else {
					// 每次请求重新加载用户，封禁与管理员变更立即生效
					user, err := db.GetUserByID(r.Context(), claims.UserID)
					switch {
					case err == nil && user.IsActive:
						principal = auth.ForUser(user, claims.Impersonators...)
					case err == nil, errors.Is(err, database.ErrNotFound):
						// 账号已删除或停用
					default:
						utils.WriteError(w, apperr.Wrap(apperr.DatabaseUnavailable, "Database unavailable", err))
						return
					}
				}
			}

			recordPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// suspendedAllowed 被封禁用户仍可访问的路径
func suspendedAllowed(path string) bool {
	switch path {
	case "/suspended", "/logout", "/health":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// Suspension 拦截被封禁用户：页面请求重定向到 /suspended，其余返回 403
func Suspension() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			if !p.IsSuspended() || suspendedAllowed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodGet && utils.WantsHTML(r) {
				http.Redirect(w, r, "/suspended", http.StatusFound)
				return
			}
			utils.WriteErrorMessage(w, http.StatusForbidden, apperr.Suspended, "Account suspended")
		})
	}
}

// RequireAuth 未登录时返回 401
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).IsAuthenticated() {
			utils.WriteErrorMessage(w, http.StatusUnauthorized, apperr.Unauthenticated, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin 仅管理员
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.FromContext(r.Context())
		switch {
		case !p.IsAuthenticated():
			utils.WriteErrorMessage(w, http.StatusUnauthorized, apperr.Unauthenticated, "Authentication required")
		case !p.IsAdmin():
			utils.WriteErrorMessage(w, http.StatusForbidden, apperr.Forbidden, "Admin access required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
