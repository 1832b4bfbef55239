package database

import (
	"context"
	"database/sql"
	"fmt"

	"spaces-backend/pkg/models"
)

const activityColumns = `id, activity_type, message, COALESCE(username, ''), user_id, space_id, actor_admin_id, created_at`

func scanActivity(row rowScanner) (*models.ActivityEvent, error) {
	var (
		ev                     models.ActivityEvent
		userID, spaceID, admin sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Type, &ev.Message, &ev.Username, &userID, &spaceID, &admin, &ev.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	ev.UserID = stringPtr(userID)
	ev.SpaceID = stringPtr(spaceID)
	ev.ActorAdminID = stringPtr(admin)
	return &ev, nil
}

// AppendActivity 追加活动记录
func (p *PostgresDatabase) AppendActivity(ctx context.Context, event *models.ActivityEvent) error {
	event.ID = newID(event.ID)
	query := `
		INSERT INTO activity (id, activity_type, message, username, user_id, space_id, actor_admin_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := p.q.QueryRowContext(ctx, query,
		event.ID, event.Type, event.Message, event.Username,
		nullString(event.UserID), nullString(event.SpaceID), nullString(event.ActorAdminID),
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", mapError(err))
	}
	return nil
}

// ListActivity 最近的活动
func (p *PostgresDatabase) ListActivity(ctx context.Context, limit int) ([]models.ActivityEvent, error) {
	return p.queryActivity(ctx, `SELECT `+activityColumns+` FROM activity ORDER BY created_at DESC LIMIT $1`, limit)
}

// ListActivityByUser 某用户最近的活动
func (p *PostgresDatabase) ListActivityByUser(ctx context.Context, userID string, limit int) ([]models.ActivityEvent, error) {
	return p.queryActivity(ctx,
		`SELECT `+activityColumns+` FROM activity WHERE user_id = $2 ORDER BY created_at DESC LIMIT $1`, limit, userID)
}

func (p *PostgresDatabase) queryActivity(ctx context.Context, query string, args ...any) ([]models.ActivityEvent, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	events := []models.ActivityEvent{}
	for rows.Next() {
		ev, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// GetSettings 读取全部系统设置
func (p *PostgresDatabase) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT key, value FROM system_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// PutSetting 写入单个系统设置
func (p *PostgresDatabase) PutSetting(ctx context.Context, key, value string) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetClubRole 查询用户在社团中的角色
func (p *PostgresDatabase) GetClubRole(ctx context.Context, clubID, userID string) (models.ClubRole, error) {
	var role models.ClubRole
	err := p.q.QueryRowContext(ctx,
		`SELECT role FROM club_memberships WHERE club_id::text = $1 AND user_id::text = $2`, clubID, userID).Scan(&role)
	if err != nil {
		return "", mapError(err)
	}
	return role, nil
}
