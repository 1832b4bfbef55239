package services

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"
)

// 网页空间的默认文件，不可删除
const (
	IndexFilename  = "index.html"
	StylesFilename = "styles.css"
	ScriptFilename = "script.js"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

// IsProtected 默认文件不可删除
func IsProtected(filename string) bool {
	switch filename {
	case IndexFilename, StylesFilename, ScriptFilename:
		return true
	}
	return false
}

// ValidFilename 校验文件名
func ValidFilename(filename string) bool {
	return filenamePattern.MatchString(filename) && !strings.Contains(filename, "..")
}

// FileTypeOf 根据扩展名推断文件类型
func FileTypeOf(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "html", "htm":
		return "html"
	case "css":
		return "css"
	case "js", "mjs":
		return "js"
	case "":
		return "text"
	default:
		return ext
	}
}

// ContentType 发布文件的 MIME 类型
func ContentType(fileType string) string {
	switch fileType {
	case "html":
		return "text/html; charset=utf-8"
	case "css":
		return "text/css; charset=utf-8"
	case "js":
		return "application/javascript; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// DefaultPages 新网页空间的三个默认文件，index.html 在首位
func DefaultPages(slug, name string) []models.Page {
	index := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <link rel="stylesheet" href="/s/%s/styles.css">
</head>
<body>
    <main>
        <h1>Welcome to %s</h1>
        <p>Start editing to make this space your own.</p>
    </main>
    <script src="/s/%s/script.js"></script>
</body>
</html>
`, name, slug, name, slug)

	styles := `body {
    font-family: system-ui, -apple-system, sans-serif;
    margin: 0;
    padding: 2rem;
    line-height: 1.6;
    color: #1f2937;
    background: #f9fafb;
}

main {
    max-width: 48rem;
    margin: 0 auto;
}
`
	script := fmt.Sprintf(`// Scripts for %s
document.addEventListener('DOMContentLoaded', () => {
    console.log('%s is ready');
});
`, slug, slug)

	return []models.Page{
		{Filename: IndexFilename, Content: index, FileType: "html"},
		{Filename: StylesFilename, Content: styles, FileType: "css"},
		{Filename: ScriptFilename, Content: script, FileType: "js"},
	}
}

// PageStore 空间内文件的持久化
type PageStore struct {
	db       database.DatabaseInterface
	gate     *auth.Gate
	activity *ActivityLog
}

// NewPageStore 创建文件服务
func NewPageStore(db database.DatabaseInterface, gate *auth.Gate, activity *ActivityLog) *PageStore {
	return &PageStore{db: db, gate: gate, activity: activity}
}

func (p *PageStore) loadForRead(ctx context.Context, actor auth.Principal, spaceID string) (*models.Space, error) {
	space, err := p.db.GetSpaceByID(ctx, spaceID)
	if err != nil {
		return nil, translate(err, "Space not found")
	}
	err = p.gate.Authorize(ctx, actor, auth.OwnSpace(space), auth.AdminOverride(), auth.ViewPublicSpace(space))
	if err != nil {
		return nil, err
	}
	return space, nil
}

// List 列出文件；没有任何文件的网页空间会补齐默认文件
func (p *PageStore) List(ctx context.Context, actor auth.Principal, spaceID string) ([]models.PageInfo, error) {
	space, err := p.loadForRead(ctx, actor, spaceID)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	err = p.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		var err error
		if pages, err = tx.ListPages(ctx, space.ID); err != nil {
			return err
		}
		if len(pages) > 0 || space.IsCode() {
			return nil
		}
		for _, page := range DefaultPages(space.Slug, space.Name) {
			page.SpaceID = space.ID
			if _, err := tx.InsertPageIfAbsent(ctx, &page); err != nil {
				return err
			}
		}
		pages, err = tx.ListPages(ctx, space.ID)
		return err
	})
	if err != nil {
		return nil, translate(err, "Space not found")
	}

	infos := make([]models.PageInfo, 0, len(pages))
	for _, page := range pages {
		infos = append(infos, models.PageInfo{Filename: page.Filename, FileType: page.FileType, UpdatedAt: page.UpdatedAt})
	}
	return infos, nil
}

// Read 读取单个文件
func (p *PageStore) Read(ctx context.Context, actor auth.Principal, spaceID, filename string) (*models.Page, error) {
	space, err := p.loadForRead(ctx, actor, spaceID)
	if err != nil {
		return nil, err
	}
	return p.ReadPublished(ctx, space, filename)
}

// ReadPublished 读取已完成授权的空间中的文件
func (p *PageStore) ReadPublished(ctx context.Context, space *models.Space, filename string) (*models.Page, error) {
	page, err := p.db.GetPage(ctx, space.ID, filename)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("File %q not found", filename))
	}
	return page, nil
}

// mutate 锁定空间、校验写权限后在事务中执行 fn，并更新空间的 updated_at
func (p *PageStore) mutate(ctx context.Context, actor auth.Principal, spaceID string,
	fn func(tx database.DatabaseInterface, space *models.Space) error) error {
	err := p.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		space, err := tx.LockSpace(ctx, spaceID)
		if err != nil {
			return err
		}
		if err := p.gate.Authorize(ctx, actor, auth.OwnSpace(space), auth.AdminOverride()); err != nil {
			return err
		}
		if err := fn(tx, space); err != nil {
			return err
		}
		return tx.UpdateSpace(ctx, space)
	})
	return translate(err, "Space not found")
}

func normalizeInput(in models.PageInput) (models.PageInput, error) {
	in.Filename = strings.TrimSpace(in.Filename)
	if !ValidFilename(in.Filename) {
		return in, apperr.Newf(apperr.InvalidInput, "Invalid filename %q", in.Filename)
	}
	if len(in.Content) > MaxContentBytes {
		return in, apperr.Newf(apperr.PayloadTooLarge, "File %q exceeds the 5 MB limit", in.Filename)
	}
	if in.FileType == "" {
		in.FileType = FileTypeOf(in.Filename)
	}
	return in, nil
}

func upsert(ctx context.Context, tx database.DatabaseInterface, space *models.Space, in models.PageInput) error {
	if err := tx.UpsertPage(ctx, &models.Page{
		SpaceID:  space.ID,
		Filename: in.Filename,
		Content:  in.Content,
		FileType: in.FileType,
	}); err != nil {
		return err
	}
	if in.Filename == IndexFilename {
		space.HTMLContent = in.Content
	}
	return nil
}

// Upsert 写入单个文件；index.html 同步到空间 html_content
func (p *PageStore) Upsert(ctx context.Context, actor auth.Principal, spaceID string, in models.PageInput) (*models.Page, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	err = p.mutate(ctx, actor, spaceID, func(tx database.DatabaseInterface, space *models.Space) error {
		if err := upsert(ctx, tx, space, in); err != nil {
			return err
		}
		return p.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityPagesUpdated,
			Template: fmt.Sprintf("{username} updated %s in %s", in.Filename, space.Name),
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &models.Page{SpaceID: spaceID, Filename: in.Filename, Content: in.Content, FileType: in.FileType}, nil
}

// Delete 删除文件；默认文件受保护
func (p *PageStore) Delete(ctx context.Context, actor auth.Principal, spaceID, filename string) error {
	return p.mutate(ctx, actor, spaceID, func(tx database.DatabaseInterface, space *models.Space) error {
		if !space.IsCode() && IsProtected(filename) {
			return apperr.Newf(apperr.Protected, "%s is a required file and cannot be deleted", filename)
		}
		found, err := tx.DeletePage(ctx, space.ID, filename)
		if err != nil {
			return err
		}
		if !found {
			return apperr.Newf(apperr.NotFound, "File %q not found", filename)
		}
		return p.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityPageDeleted,
			Template: fmt.Sprintf("{username} deleted %s from %s", filename, space.Name),
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
}

// BulkReplace 单事务写入全部文件；未提及的文件保持不变，重复文件名以最后一个为准
func (p *PageStore) BulkReplace(ctx context.Context, actor auth.Principal, spaceID string, files []models.PageInput) (int, error) {
	if len(files) == 0 {
		return 0, apperr.New(apperr.InvalidInput, "No files provided")
	}
	order := make([]string, 0, len(files))
	latest := make(map[string]models.PageInput, len(files))
	for _, f := range files {
		in, err := normalizeInput(f)
		if err != nil {
			return 0, err
		}
		if _, seen := latest[in.Filename]; !seen {
			order = append(order, in.Filename)
		}
		latest[in.Filename] = in
	}

	err := p.mutate(ctx, actor, spaceID, func(tx database.DatabaseInterface, space *models.Space) error {
		for _, name := range order {
			if err := upsert(ctx, tx, space, latest[name]); err != nil {
				return err
			}
		}
		return p.activity.Append(ctx, tx, Entry{
			Type:     models.ActivityPagesUpdated,
			Template: fmt.Sprintf("{username} updated %d file(s) in %s", len(order), space.Name),
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
	if err != nil {
		return 0, err
	}
	return len(order), nil
}
