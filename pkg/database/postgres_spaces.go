package database

import (
	"context"
	"database/sql"
	"fmt"

	"spaces-backend/pkg/models"

	"github.com/google/uuid"
)

const spaceColumns = `id, name, slug, owner_id, kind, language, language_version, html_content, language_content,
       is_public, view_count, analytics_enabled, created_at, updated_at`

func scanSpace(row rowScanner) (*models.Space, error) {
	var (
		s        models.Space
		language sql.NullString
		version  sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Slug, &s.OwnerID, &s.Kind, &language, &version, &s.HTMLContent, &s.LanguageContent,
		&s.IsPublic, &s.ViewCount, &s.AnalyticsEnabled, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if s.Kind == models.SpaceKindCode {
		s.Code = &models.CodeSpec{Language: language.String, Version: version.String}
	}
	return &s, nil
}

func codeColumns(s *models.Space) (sql.NullString, sql.NullString) {
	if s.Code == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: s.Code.Language, Valid: true}, sql.NullString{String: s.Code.Version, Valid: true}
}

// CreateSpace 创建空间
func (p *PostgresDatabase) CreateSpace(ctx context.Context, space *models.Space) error {
	space.ID = newID(space.ID)
	language, version := codeColumns(space)
	query := `
		INSERT INTO spaces (id, name, slug, owner_id, kind, language, language_version, html_content, language_content,
		                    is_public, view_count, analytics_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := p.q.QueryRowContext(ctx, query,
		space.ID, space.Name, space.Slug, space.OwnerID, space.Kind, language, version,
		space.HTMLContent, space.LanguageContent, space.IsPublic, space.AnalyticsEnabled,
	).Scan(&space.CreatedAt, &space.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create space: %w", mapError(err))
	}
	return nil
}

// GetSpaceByID 根据ID获取空间
func (p *PostgresDatabase) GetSpaceByID(ctx context.Context, id string) (*models.Space, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanSpace(p.q.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = $1`, id))
}

// GetSpaceBySlug 根据slug获取空间
func (p *PostgresDatabase) GetSpaceBySlug(ctx context.Context, slug string) (*models.Space, error) {
	return scanSpace(p.q.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE slug = $1`, slug))
}

// LockSpace SELECT ... FOR UPDATE
func (p *PostgresDatabase) LockSpace(ctx context.Context, id string) (*models.Space, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanSpace(p.q.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = $1 FOR UPDATE`, id))
}

// SlugExists 检查slug是否已被其他空间占用
func (p *PostgresDatabase) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM spaces WHERE slug = $1 AND ($2 = '' OR id::text <> $2))`
	if err := p.q.QueryRowContext(ctx, query, slug, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// CountSpacesByOwner 统计用户拥有的空间数
func (p *PostgresDatabase) CountSpacesByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count spaces: %w", err)
	}
	return n, nil
}

// ListSpacesByOwner 按更新时间倒序列出用户的空间
func (p *PostgresDatabase) ListSpacesByOwner(ctx context.Context, ownerID string) ([]models.Space, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	spaces := []models.Space{}
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, *s)
	}
	return spaces, rows.Err()
}

// UpdateSpace 写回可变字段；kind、owner 与 language 创建后不可变
func (p *PostgresDatabase) UpdateSpace(ctx context.Context, space *models.Space) error {
	_, version := codeColumns(space)
	query := `
		UPDATE spaces
		SET name = $2,
		    slug = $3,
		    language_version = $4,
		    html_content = $5,
		    language_content = $6,
		    is_public = $7,
		    analytics_enabled = $8,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := p.q.QueryRowContext(ctx, query,
		space.ID, space.Name, space.Slug, version, space.HTMLContent, space.LanguageContent,
		space.IsPublic, space.AnalyticsEnabled,
	).Scan(&space.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update space: %w", mapError(err))
	}
	return nil
}

// IncrementViewCount 浏览计数
func (p *PostgresDatabase) IncrementViewCount(ctx context.Context, id string) error {
	return p.execOne(ctx, `UPDATE spaces SET view_count = view_count + 1 WHERE id = $1`, id)
}

// DeleteSpace 删除空间，页面由外键级联删除
func (p *PostgresDatabase) DeleteSpace(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM spaces WHERE id = $1`, id)
}
