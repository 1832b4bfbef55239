// Package auth answers "who is calling" and "may they do this": request
// principals, capability checks, session tokens and password hashes.
package auth

import (
	"context"

	"spaces-backend/pkg/models"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal 请求主体；User 为 nil 表示匿名
type Principal struct {
	User *models.User
	// Impersonators 管理员模拟栈，末尾为当前发起模拟的管理员
	Impersonators []string
}

// Anonymous 匿名主体
func Anonymous() Principal {
	return Principal{}
}

// ForUser 普通登录主体
func ForUser(user *models.User, impersonators ...string) Principal {
	return Principal{User: user, Impersonators: impersonators}
}

func (p Principal) IsAuthenticated() bool { return p.User != nil }

func (p Principal) IsAdmin() bool { return p.User != nil && p.User.IsAdmin }

func (p Principal) IsSuspended() bool { return p.User != nil && p.User.IsSuspended }

// UserID 匿名时为空串
func (p Principal) UserID() string {
	if p.User == nil {
		return ""
	}
	return p.User.ID
}

// Username 匿名时为空串
func (p Principal) Username() string {
	if p.User == nil {
		return ""
	}
	return p.User.Username
}

// IsImpersonating 当前会话是否由管理员模拟
func (p Principal) IsImpersonating() bool {
	return len(p.Impersonators) > 0
}

// ImpersonatorID 发起当前模拟的管理员 id
func (p Principal) ImpersonatorID() string {
	if len(p.Impersonators) == 0 {
		return ""
	}
	return p.Impersonators[len(p.Impersonators)-1]
}

// WithPrincipal 将主体放入 context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext 取出主体，未设置时为匿名
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Anonymous()
}
