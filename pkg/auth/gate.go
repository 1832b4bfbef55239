package auth

import (
	"context"
	"errors"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"
)

// ClubRoles 社团角色查询
type ClubRoles interface {
	GetClubRole(ctx context.Context, clubID, userID string) (models.ClubRole, error)
}

// Capability 可授予主体的能力
type Capability interface {
	// granted 报告主体是否具备该能力
	granted(ctx context.Context, roles ClubRoles, p Principal) (bool, error)
}

type ownSpace struct{ space *models.Space }

func (c ownSpace) granted(_ context.Context, _ ClubRoles, p Principal) (bool, error) {
	return p.IsAuthenticated() && c.space != nil && c.space.OwnerID == p.UserID(), nil
}

type viewPublicSpace struct{ space *models.Space }

func (c viewPublicSpace) granted(_ context.Context, _ ClubRoles, _ Principal) (bool, error) {
	return c.space != nil && c.space.IsPublic, nil
}

type adminOverride struct{}

func (adminOverride) granted(_ context.Context, _ ClubRoles, p Principal) (bool, error) {
	return p.IsAdmin(), nil
}

type clubRole struct {
	clubID     string
	leaderOnly bool
}

func (c clubRole) granted(ctx context.Context, roles ClubRoles, p Principal) (bool, error) {
	if !p.IsAuthenticated() || roles == nil {
		return false, nil
	}
	role, err := roles.GetClubRole(ctx, c.clubID, p.UserID())
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.leaderOnly {
		return role.IsLeader(), nil
	}
	return true, nil
}

// OwnSpace 主体是空间所有者
func OwnSpace(space *models.Space) Capability { return ownSpace{space: space} }

// ViewPublicSpace 空间公开可见，匿名也可
func ViewPublicSpace(space *models.Space) Capability { return viewPublicSpace{space: space} }

// AdminOverride 管理员越权
func AdminOverride() Capability { return adminOverride{} }

// ClubLeader 社团负责人（leader 或 co_leader）
func ClubLeader(clubID string) Capability { return clubRole{clubID: clubID, leaderOnly: true} }

// ClubMember 社团任意成员
func ClubMember(clubID string) Capability { return clubRole{clubID: clubID} }

// Gate AuthGate
type Gate struct {
	roles ClubRoles
}

// NewGate 创建授权网关
func NewGate(roles ClubRoles) *Gate {
	return &Gate{roles: roles}
}

// Authorize 任一能力满足即放行。
// 检查顺序：封禁 → 认证 → 能力。
func (g *Gate) Authorize(ctx context.Context, p Principal, caps ...Capability) error {
	if p.IsSuspended() {
		return apperr.New(apperr.Suspended, "Account suspended")
	}
	for _, c := range caps {
		ok, err := c.granted(ctx, g.roles, p)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "authorization check failed", err)
		}
		if ok {
			return nil
		}
	}
	if !p.IsAuthenticated() {
		return apperr.New(apperr.Unauthenticated, "Authentication required")
	}
	return apperr.New(apperr.Forbidden, "You do not have permission to perform this action")
}

// RequireUser 仅要求已登录且未封禁
func (g *Gate) RequireUser(p Principal) error {
	if p.IsSuspended() {
		return apperr.New(apperr.Suspended, "Account suspended")
	}
	if !p.IsAuthenticated() {
		return apperr.New(apperr.Unauthenticated, "Authentication required")
	}
	return nil
}
