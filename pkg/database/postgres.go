package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

// NewPostgresDatabase 打开连接池并验证连通性
func NewPostgresDatabase(ctx context.Context, config DatabaseConfig) (*PostgresDatabase, error) {
	db, err := OpenPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewPostgresDatabaseFromDB(db), nil
}

// NewPostgresDatabaseFromDB 使用已有连接（测试中传入 sqlmock）
func NewPostgresDatabaseFromDB(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db, q: db}
}

// DB 返回底层连接池，供迁移使用
func (p *PostgresDatabase) DB() *sql.DB {
	return p.db
}

// InTx 在事务中执行 fn；已处于事务中时直接复用
func (p *PostgresDatabase) InTx(ctx context.Context, fn func(tx DatabaseInterface) error) error {
	if p.inTx {
		return fn(p)
	}
	return WithTx(ctx, p.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(&PostgresDatabase{db: p.db, q: tx, inTx: true})
	})
}

// HealthCheck 健康检查
func (p *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭连接
func (p *PostgresDatabase) Close() error {
	if p.inTx {
		return nil
	}
	return p.db.Close()
}

// mapError 将驱动错误转换为包内哨兵错误
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
	}
	return err
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// ==== users ====

const userColumns = `id, username, email, password_hash, is_active, is_suspended, is_admin, is_staff,
       github_token, COALESCE(github_username, ''), COALESCE(slack_id, ''), hackatime_api_key, ai_api_key,
       last_heartbeat_day, created_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u           models.User
		githubToken sql.NullString
		apiKey      sql.NullString
		aiKey       sql.NullString
		heartbeat   sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuspended, &u.IsAdmin, &u.IsStaff,
		&githubToken, &u.GitHubUsername, &u.SlackID, &apiKey, &aiKey, &heartbeat, &u.CreatedAt, &lastLogin,
	)
	if err != nil {
		return nil, mapError(err)
	}
	u.GitHubToken = stringPtr(githubToken)
	u.HackatimeAPIKey = stringPtr(apiKey)
	u.AIAPIKey = stringPtr(aiKey)
	if heartbeat.Valid {
		day := heartbeat.Time.UTC().Format("2006-01-02")
		u.LastHeartbeatDay = &day
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// CreateUser 创建用户
func (p *PostgresDatabase) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = newID(user.ID)
	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, is_suspended, is_admin, is_staff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	err := p.q.QueryRowContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.IsActive, user.IsSuspended, user.IsAdmin, user.IsStaff,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return nil
}

// GetUserByID 根据ID获取用户
func (p *PostgresDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanUser(p.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByUsername 根据用户名获取用户（不区分大小写）
func (p *PostgresDatabase) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(p.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username))
}

// GetUserByEmail 根据邮箱获取用户（不区分大小写）
func (p *PostgresDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(p.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// LockUser 锁定用户行，配额检查在同一事务内串行
func (p *PostgresDatabase) LockUser(ctx context.Context, id string) error {
	var locked string
	err := p.q.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return mapError(err)
}

// SetUserSuspended 设置封禁状态
func (p *PostgresDatabase) SetUserSuspended(ctx context.Context, id string, suspended bool) error {
	return p.execOne(ctx, `UPDATE users SET is_suspended = $2 WHERE id = $1`, id, suspended)
}

// SetHackatimeKey 绑定或清除时间追踪密钥
func (p *PostgresDatabase) SetHackatimeKey(ctx context.Context, id string, key *string) error {
	return p.execOne(ctx, `UPDATE users SET hackatime_api_key = $2 WHERE id = $1`, id, nullString(key))
}

// MarkHeartbeatDay 条件更新保证同一天只成功一次
func (p *PostgresDatabase) MarkHeartbeatDay(ctx context.Context, id, day string) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE users SET last_heartbeat_day = $2::date
		WHERE id = $1 AND (last_heartbeat_day IS NULL OR last_heartbeat_day <> $2::date)
	`, id, day)
	if err != nil {
		return false, fmt.Errorf("failed to mark heartbeat day: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TouchLastLogin 更新最后登录时间
func (p *PostgresDatabase) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return p.execOne(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

// DeleteUser 删除用户，空间、页面、社团成员与活动记录由外键级联删除
func (p *PostgresDatabase) DeleteUser(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// execOne 执行写操作，未命中任何行时返回 ErrNotFound
func (p *PostgresDatabase) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.q.ExecContext(ctx, query, args...)
	if err != nil {
		log.GlobalLogger.Debug("postgres exec failed", zap.String("query", strings.TrimSpace(query)), zap.Error(err))
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
