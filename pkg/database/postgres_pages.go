package database

import (
	"context"
	"fmt"

	"spaces-backend/pkg/models"
)

const pageColumns = `id, space_id, filename, content, file_type, created_at, updated_at`

func scanPage(row rowScanner) (*models.Page, error) {
	var pg models.Page
	if err := row.Scan(&pg.ID, &pg.SpaceID, &pg.Filename, &pg.Content, &pg.FileType, &pg.CreatedAt, &pg.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &pg, nil
}

// ListPages 按文件名列出空间内的文件
func (p *PostgresDatabase) ListPages(ctx context.Context, spaceID string) ([]models.Page, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE space_id = $1 ORDER BY filename`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	pages := []models.Page{}
	for rows.Next() {
		pg, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *pg)
	}
	return pages, rows.Err()
}

// GetPage 读取单个文件
func (p *PostgresDatabase) GetPage(ctx context.Context, spaceID, filename string) (*models.Page, error) {
	return scanPage(p.q.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE space_id = $1 AND filename = $2`, spaceID, filename))
}

// UpsertPage 按 (space_id, filename) 插入或更新
func (p *PostgresDatabase) UpsertPage(ctx context.Context, page *models.Page) error {
	page.ID = newID(page.ID)
	query := `
		INSERT INTO pages (id, space_id, filename, content, file_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (space_id, filename) DO UPDATE SET
			content = EXCLUDED.content,
			file_type = EXCLUDED.file_type,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := p.q.QueryRowContext(ctx, query, page.ID, page.SpaceID, page.Filename, page.Content, page.FileType).
		Scan(&page.ID, &page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", mapError(err))
	}
	return nil
}

// InsertPageIfAbsent 仅在文件不存在时插入，用于幂等地补齐默认文件
func (p *PostgresDatabase) InsertPageIfAbsent(ctx context.Context, page *models.Page) (bool, error) {
	page.ID = newID(page.ID)
	res, err := p.q.ExecContext(ctx, `
		INSERT INTO pages (id, space_id, filename, content, file_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (space_id, filename) DO NOTHING
	`, page.ID, page.SpaceID, page.Filename, page.Content, page.FileType)
	if err != nil {
		return false, fmt.Errorf("failed to insert page: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeletePage 删除文件，返回是否存在
func (p *PostgresDatabase) DeletePage(ctx context.Context, spaceID, filename string) (bool, error) {
	res, err := p.q.ExecContext(ctx, `DELETE FROM pages WHERE space_id = $1 AND filename = $2`, spaceID, filename)
	if err != nil {
		return false, fmt.Errorf("failed to delete page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
