// Package services holds the domain operations behind the HTTP surface:
// spaces, pages, accounts, settings and the activity log.
package services

import (
	"context"
	"strings"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

// Entry 一条待写入的活动
type Entry struct {
	Type string
	// Template 中的 {username} 替换为执行者用户名
	Template string
	Actor    auth.Principal
	// UserID 活动归属用户，为空时取执行者
	UserID  string
	SpaceID string
}

// ActivityLog 只追加的审计日志
type ActivityLog struct {
	db database.DatabaseInterface
}

// NewActivityLog 创建活动日志
func NewActivityLog(db database.DatabaseInterface) *ActivityLog {
	return &ActivityLog{db: db}
}

// Append 通过调用方的事务句柄写入，与业务修改一同提交或回滚
func (l *ActivityLog) Append(ctx context.Context, tx database.DatabaseInterface, e Entry) error {
	if tx == nil {
		tx = l.db
	}
	username := e.Actor.Username()
	event := &models.ActivityEvent{
		Type:     e.Type,
		Message:  strings.ReplaceAll(e.Template, "{username}", username),
		Username: username,
	}
	userID := e.UserID
	if userID == "" {
		userID = e.Actor.UserID()
	}
	if userID != "" {
		event.UserID = &userID
	}
	if e.SpaceID != "" {
		spaceID := e.SpaceID
		event.SpaceID = &spaceID
	}
	if admin := e.Actor.ImpersonatorID(); admin != "" {
		event.ActorAdminID = &admin
	}
	return tx.AppendActivity(ctx, event)
}

// Recent 最近的活动，n 限制在 1..200，非正数取默认 50
func (l *ActivityLog) Recent(ctx context.Context, n int) ([]models.ActivityEvent, error) {
	return l.db.ListActivity(ctx, ClampLimit(n))
}

// ForUser 某用户最近的活动
func (l *ActivityLog) ForUser(ctx context.Context, userID string, n int) ([]models.ActivityEvent, error) {
	return l.db.ListActivityByUser(ctx, userID, ClampLimit(n))
}

// ClampLimit 规范化列表数量
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultActivityLimit
	case n > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return n
	}
}
