package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"

	"go.uber.org/zap"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

// Accounts 账户：注册、登录、封禁、删除与管理员模拟
type Accounts struct {
	db       database.DatabaseInterface
	gate     *auth.Gate
	activity *ActivityLog
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccounts 创建账户服务
func NewAccounts(db database.DatabaseInterface, gate *auth.Gate, activity *ActivityLog) *Accounts {
	return &Accounts{
		db:       db,
		gate:     gate,
		activity: activity,
		logger:   log.WithName("accounts"),
		now:      time.Now,
	}
}

// Signup 注册新用户
func (a *Accounts) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !usernamePattern.MatchString(username) {
		return nil, apperr.New(apperr.InvalidInput, "Username must be 3-30 characters: letters, digits, '_' or '-'")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.InvalidInput, "A valid email address is required")
	}
	if len(req.Password) < 8 {
		return nil, apperr.New(apperr.InvalidInput, "Password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to create account", err)
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}

	err = a.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, database.ErrUniqueViolation) {
				return apperr.New(apperr.NameTaken, "Username or email is already registered")
			}
			return err
		}
		return a.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySignup,
			Template: "{username} joined Spaces",
			Actor:    auth.ForUser(user),
		})
	})
	if err != nil {
		return nil, translate(err, "user not found")
	}
	a.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login 用户名或邮箱登录；封禁用户仍可登录以查看封禁说明
func (a *Accounts) Login(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	identifier := strings.TrimSpace(req.Identifier())
	if identifier == "" || req.Password == "" {
		return nil, apperr.New(apperr.InvalidInput, "Username and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = a.db.GetUserByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = a.db.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid username or password")
	}
	if err != nil {
		return nil, translate(err, "user not found")
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) || !user.IsActive {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid username or password")
	}

	now := a.now()
	err = a.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		if err := tx.TouchLastLogin(ctx, user.ID, now); err != nil {
			return err
		}
		return a.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityLogin,
			Template: "{username} logged in",
			Actor:    auth.ForUser(user),
		})
	})
	if err != nil {
		return nil, translate(err, "user not found")
	}
	user.LastLogin = &now
	return user, nil
}

// Get 按 id 读取用户
func (a *Accounts) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := a.db.GetUserByID(ctx, id)
	return user, translate(err, "User not found")
}

// SetSuspended 管理员封禁或解封用户
func (a *Accounts) SetSuspended(ctx context.Context, actor auth.Principal, userID string, suspended bool) (*models.User, error) {
	if err := a.gate.Authorize(ctx, actor, auth.AdminOverride()); err != nil {
		return nil, err
	}
	if userID == actor.UserID() {
		return nil, apperr.New(apperr.InvalidInput, "You cannot suspend your own account")
	}

	var target *models.User
	err := a.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		var err error
		if target, err = tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		if target.IsAdmin && suspended {
			return apperr.New(apperr.Forbidden, "Administrators cannot be suspended")
		}
		if err := tx.SetUserSuspended(ctx, userID, suspended); err != nil {
			return err
		}
		target.IsSuspended = suspended

		kind, verb := models.ActivityUserUnsuspended, "unsuspended"
		if suspended {
			kind, verb = models.ActivityUserSuspended, "suspended"
		}
		return a.activity.Append(ctx, tx, Entry{
			Type:     kind,
			Template: "{username} " + verb + " " + target.Username,
			Actor:    actor,
			UserID:   target.ID,
		})
	})
	if err != nil {
		return nil, translate(err, "User not found")
	}
	a.logger.Info("user suspension changed",
		zap.String("user_id", userID), zap.Bool("suspended", suspended), zap.String("admin_id", actor.UserID()))
	return target, nil
}

// Delete 管理员删除用户，级联删除其空间、页面、社团成员与活动
func (a *Accounts) Delete(ctx context.Context, actor auth.Principal, userID string) error {
	if err := a.gate.Authorize(ctx, actor, auth.AdminOverride()); err != nil {
		return err
	}
	if userID == actor.UserID() {
		return apperr.New(apperr.InvalidInput, "You cannot delete your own account")
	}

	err := a.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		target, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, userID); err != nil {
			return err
		}
		// 归属到管理员，被删用户的活动已级联删除
		return a.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityUserDeleted,
			Template: "{username} deleted user " + target.Username,
			Actor:    actor,
		})
	})
	if err != nil {
		return translate(err, "User not found")
	}
	a.logger.Info("user deleted", zap.String("user_id", userID), zap.String("admin_id", actor.UserID()))
	return nil
}

// Impersonate 管理员以目标用户身份登录，返回新的模拟栈
func (a *Accounts) Impersonate(ctx context.Context, actor auth.Principal, userID string) (*models.User, []string, error) {
	if err := a.gate.Authorize(ctx, actor, auth.AdminOverride()); err != nil {
		return nil, nil, err
	}
	if userID == actor.UserID() {
		return nil, nil, apperr.New(apperr.InvalidInput, "You cannot impersonate yourself")
	}

	var target *models.User
	err := a.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		var err error
		if target, err = tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		if target.IsAdmin {
			return apperr.New(apperr.Forbidden, "Administrators cannot be impersonated")
		}
		return a.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityImpersonation,
			Template: "{username} started impersonating " + target.Username,
			Actor:    actor,
		})
	})
	if err != nil {
		return nil, nil, translate(err, "User not found")
	}

	stack := append(append([]string(nil), actor.Impersonators...), actor.UserID())
	a.logger.Info("impersonation started", zap.String("admin_id", actor.UserID()), zap.String("user_id", target.ID))
	return target, stack, nil
}

// StopImpersonation 弹出模拟栈，恢复管理员会话
func (a *Accounts) StopImpersonation(ctx context.Context, actor auth.Principal) (*models.User, []string, error) {
	if !actor.IsImpersonating() {
		return nil, nil, apperr.New(apperr.InvalidInput, "You are not impersonating anyone")
	}
	adminID := actor.ImpersonatorID()
	admin, err := a.db.GetUserByID(ctx, adminID)
	if err != nil {
		return nil, nil, translate(err, "Administrator account no longer exists")
	}
	if !admin.IsAdmin {
		return nil, nil, apperr.New(apperr.Forbidden, "Administrator privileges were revoked")
	}
	stack := append([]string(nil), actor.Impersonators[:len(actor.Impersonators)-1]...)
	a.logger.Info("impersonation stopped", zap.String("admin_id", adminID), zap.String("user_id", actor.UserID()))
	return admin, stack, nil
}
