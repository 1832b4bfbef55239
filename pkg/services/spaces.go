package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/runtimes"
	"spaces-backend/pkg/utils"

	"go.uber.org/zap"
)

const (
	MaxNameLength = 50
	// MaxContentBytes 单次保存的内容上限
	MaxContentBytes = 5 << 20
)

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9-]+(\.[a-z0-9]+)?$`)
	slugStrip        = regexp.MustCompile(`[^a-z0-9\s_-]+`)
	slugCollapse     = regexp.MustCompile(`[\s_-]+`)
	trailingExt      = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
	forbiddenInNames = "<>{}[]()'\";"
)

// LanguageCatalog 空间创建与更新时使用的语言目录
type LanguageCatalog interface {
	Canonical(lang string) string
	LatestVersion(ctx context.Context, lang string) (string, bool)
	Versions(ctx context.Context, lang string) []string
}

// CreateSpaceInput 创建空间参数
type CreateSpaceInput struct {
	Name     string
	Kind     models.SpaceKind
	Language string
}

// ContentPatch 内容部分更新；HTML 仅适用于网页空间，Language* 仅适用于代码空间
type ContentPatch struct {
	HTML             *string
	LanguageContent  *string
	LanguageVersion  *string
	IsPublic         *bool
	AnalyticsEnabled *bool
}

// SpaceStore 空间生命周期
type SpaceStore struct {
	db       database.DatabaseInterface
	gate     *auth.Gate
	activity *ActivityLog
	catalog  LanguageCatalog
	logger   *zap.Logger

	randomSuffix func() string
}

// NewSpaceStore 创建空间服务
func NewSpaceStore(db database.DatabaseInterface, gate *auth.Gate, activity *ActivityLog, catalog LanguageCatalog) *SpaceStore {
	return &SpaceStore{
		db:           db,
		gate:         gate,
		activity:     activity,
		catalog:      catalog,
		logger:       log.WithName("spaces"),
		randomSuffix: func() string { return utils.RandomLowerAlnum(8) },
	}
}

// ValidateName 去除首尾空白后校验名称
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.New(apperr.InvalidInput, "Name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperr.Newf(apperr.InvalidInput, "Name must be at most %d characters", MaxNameLength)
	}
	if strings.ContainsAny(name, forbiddenInNames) {
		return "", apperr.New(apperr.InvalidInput, "Name contains invalid characters")
	}
	return name, nil
}

// Slugify 生成 slug 主体；结果为空表示需要兜底
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if !slugPattern.MatchString(slug) {
		return ""
	}
	return slug
}

// ValidSlug 检查 slug 格式
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

func (s *SpaceStore) slugFor(name string, kind models.SpaceKind, language string) string {
	base := name
	if kind == models.SpaceKindCode {
		// 名称自带的任何扩展名都让位于语言扩展名
		ext := runtimes.Extension(language)
		base = Slugify(trailingExt.ReplaceAllString(strings.TrimSpace(base), ""))
		if base == "" {
			base = "space-" + s.randomSuffix()
		}
		return base + "." + ext
	}
	base = Slugify(base)
	if base == "" {
		base = "space-" + s.randomSuffix()
	}
	return base
}

// Create 创建网页或代码空间。配额检查与写入在同一事务中，所有者行被锁定。
func (s *SpaceStore) Create(ctx context.Context, actor auth.Principal, in CreateSpaceInput) (*models.Space, error) {
	if err := s.gate.RequireUser(actor); err != nil {
		return nil, err
	}
	name, err := ValidateName(in.Name)
	if err != nil {
		return nil, err
	}
	kind := in.Kind
	if kind == "" {
		kind = models.SpaceKindWeb
	}

	space := &models.Space{
		Name:     name,
		OwnerID:  actor.UserID(),
		Kind:     kind,
		IsPublic: true,
	}
	switch kind {
	case models.SpaceKindWeb:
		space.Slug = s.slugFor(name, kind, "")
	case models.SpaceKindCode:
		language := s.catalog.Canonical(in.Language)
		if language == "" {
			return nil, apperr.New(apperr.InvalidInput, "Language is required")
		}
		version, ok := s.catalog.LatestVersion(ctx, language)
		if !ok {
			return nil, apperr.Newf(apperr.UnsupportedLanguage, "Language %q is not available", in.Language)
		}
		space.Code = &models.CodeSpec{Language: language, Version: version}
		space.Slug = s.slugFor(name, kind, language)
		space.LanguageContent = runtimes.Template(language)
	default:
		return nil, apperr.Newf(apperr.InvalidInput, "Unknown space kind %q", kind)
	}

	var defaults []models.Page
	if kind == models.SpaceKindWeb {
		defaults = DefaultPages(space.Slug, name)
		space.HTMLContent = defaults[0].Content
	}

	err = s.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		if err := tx.LockUser(ctx, space.OwnerID); err != nil {
			return err
		}
		settings, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		count, err := tx.CountSpacesByOwner(ctx, space.OwnerID)
		if err != nil {
			return err
		}
		if count >= settings.MaxSitesPerUser {
			return apperr.Newf(apperr.QuotaExceeded,
				"You have reached the maximum limit of %d spaces", settings.MaxSitesPerUser)
		}

		exists, err := tx.SlugExists(ctx, space.Slug, "")
		if err != nil {
			return err
		}
		if exists {
			return nameTaken(space.Slug)
		}
		if err := tx.CreateSpace(ctx, space); err != nil {
			if errors.Is(err, database.ErrUniqueViolation) {
				return nameTaken(space.Slug)
			}
			return err
		}
		for i := range defaults {
			defaults[i].SpaceID = space.ID
			if _, err := tx.InsertPageIfAbsent(ctx, &defaults[i]); err != nil {
				return err
			}
		}
		return s.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySiteCreated,
			Template: fmt.Sprintf("{username} created %s", describe(space)),
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
	if err != nil {
		return nil, translate(err, "User not found")
	}
	s.logger.Info("space created",
		zap.String("space_id", space.ID), zap.String("slug", space.Slug),
		zap.String("kind", string(kind)), zap.String("user_id", space.OwnerID))
	return space, nil
}

func nameTaken(slug string) error {
	return apperr.Newf(apperr.NameTaken, "A space with the URL %q already exists. Please choose a different name.", slug)
}

func describe(space *models.Space) string {
	if space.IsCode() {
		return fmt.Sprintf("a new %s space: %s", runtimes.DisplayName(space.Language()), space.Name)
	}
	return "a new website: " + space.Name
}

// authorizeWrite 所有者或管理员
func (s *SpaceStore) authorizeWrite(ctx context.Context, actor auth.Principal, space *models.Space) error {
	return s.gate.Authorize(ctx, actor, auth.OwnSpace(space), auth.AdminOverride())
}

// authorizeRead 所有者、管理员，或公开空间
func (s *SpaceStore) authorizeRead(ctx context.Context, actor auth.Principal, space *models.Space) error {
	return s.gate.Authorize(ctx, actor, auth.OwnSpace(space), auth.AdminOverride(), auth.ViewPublicSpace(space))
}

// Get 所有者或管理员读取空间详情
func (s *SpaceStore) Get(ctx context.Context, actor auth.Principal, id string) (*models.Space, error) {
	space, err := s.db.GetSpaceByID(ctx, id)
	if err != nil {
		return nil, translate(err, "Space not found")
	}
	if err := s.authorizeWrite(ctx, actor, space); err != nil {
		return nil, err
	}
	return space, nil
}

// GetBySlug 读取已发布空间；私有空间仅所有者与管理员可见
func (s *SpaceStore) GetBySlug(ctx context.Context, actor auth.Principal, slug string) (*models.Space, error) {
	space, err := s.db.GetSpaceBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, translate(err, "Space not found")
	}
	if err := s.authorizeRead(ctx, actor, space); err != nil {
		// 私有空间对外表现为不存在
		if apperr.Is(err, apperr.Forbidden) || apperr.Is(err, apperr.Unauthenticated) {
			return nil, apperr.New(apperr.NotFound, "Space not found")
		}
		return nil, err
	}
	return space, nil
}

// ListByOwner 列出当前用户的空间
func (s *SpaceStore) ListByOwner(ctx context.Context, actor auth.Principal) ([]models.Space, error) {
	if err := s.gate.RequireUser(actor); err != nil {
		return nil, err
	}
	spaces, err := s.db.ListSpacesByOwner(ctx, actor.UserID())
	return spaces, translate(err, "Space not found")
}

// mutate 在事务中锁定空间行并校验写权限后执行 fn
func (s *SpaceStore) mutate(ctx context.Context, actor auth.Principal, id string,
	fn func(tx database.DatabaseInterface, space *models.Space) error) (*models.Space, error) {
	var space *models.Space
	err := s.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		var err error
		if space, err = tx.LockSpace(ctx, id); err != nil {
			return err
		}
		if err := s.authorizeWrite(ctx, actor, space); err != nil {
			return err
		}
		return fn(tx, space)
	})
	if err != nil {
		return nil, translate(err, "Space not found")
	}
	return space, nil
}

// Rename 重命名并重新生成 slug，代码空间保留扩展名
func (s *SpaceStore) Rename(ctx context.Context, actor auth.Principal, id, newName string) (*models.Space, error) {
	name, err := ValidateName(newName)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, func(tx database.DatabaseInterface, space *models.Space) error {
		slug := s.slugFor(name, space.Kind, space.Language())
		if slug != space.Slug {
			exists, err := tx.SlugExists(ctx, slug, space.ID)
			if err != nil {
				return err
			}
			if exists {
				return nameTaken(slug)
			}
		}
		oldName := space.Name
		space.Name, space.Slug = name, slug
		if err := tx.UpdateSpace(ctx, space); err != nil {
			if errors.Is(err, database.ErrUniqueViolation) {
				return nameTaken(slug)
			}
			return err
		}
		return s.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySiteRenamed,
			Template: fmt.Sprintf("{username} renamed %s to %s", oldName, name),
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
}

// UpdateContent 保存编辑器内容与可见性
func (s *SpaceStore) UpdateContent(ctx context.Context, actor auth.Principal, id string, patch ContentPatch) (*models.Space, error) {
	if patch.HTML == nil && patch.LanguageContent == nil && patch.LanguageVersion == nil &&
		patch.IsPublic == nil && patch.AnalyticsEnabled == nil {
		return nil, apperr.New(apperr.InvalidInput, "Nothing to update")
	}
	if (patch.HTML != nil && len(*patch.HTML) > MaxContentBytes) ||
		(patch.LanguageContent != nil && len(*patch.LanguageContent) > MaxContentBytes) {
		return nil, apperr.New(apperr.PayloadTooLarge, "Content exceeds the 5 MB limit")
	}

	return s.mutate(ctx, actor, id, func(tx database.DatabaseInterface, space *models.Space) error {
		if space.IsCode() {
			if patch.HTML != nil {
				return apperr.New(apperr.InvalidInput, "HTML content is only supported for web spaces")
			}
			if patch.LanguageContent != nil {
				space.LanguageContent = *patch.LanguageContent
			}
			if patch.LanguageVersion != nil {
				version := strings.TrimSpace(*patch.LanguageVersion)
				versions := s.catalog.Versions(ctx, space.Language())
				if version == "" || (len(versions) > 0 && !containsString(versions, version)) {
					return apperr.Newf(apperr.UnsupportedLanguage,
						"Version %q is not available for %s", version, space.Language())
				}
				space.Code.Version = version
			}
		} else {
			if patch.LanguageContent != nil || patch.LanguageVersion != nil {
				return apperr.New(apperr.InvalidInput, "Language content is only supported for code spaces")
			}
			if patch.HTML != nil {
				space.HTMLContent = *patch.HTML
				if err := tx.UpsertPage(ctx, &models.Page{
					SpaceID:  space.ID,
					Filename: IndexFilename,
					Content:  *patch.HTML,
					FileType: "html",
				}); err != nil {
					return err
				}
			}
		}
		if patch.IsPublic != nil {
			space.IsPublic = *patch.IsPublic
		}
		if patch.AnalyticsEnabled != nil {
			space.AnalyticsEnabled = *patch.AnalyticsEnabled
		}
		if err := tx.UpdateSpace(ctx, space); err != nil {
			return err
		}
		return s.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySiteUpdated,
			Template: "{username} updated " + space.Name,
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
}

// Delete 删除空间及其全部页面
func (s *SpaceStore) Delete(ctx context.Context, actor auth.Principal, id string) error {
	space, err := s.mutate(ctx, actor, id, func(tx database.DatabaseInterface, space *models.Space) error {
		if err := tx.DeleteSpace(ctx, space.ID); err != nil {
			return err
		}
		return s.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySiteDeleted,
			Template: "{username} deleted " + space.Name,
			Actor:    actor,
			UserID:   space.OwnerID,
			SpaceID:  space.ID,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("space deleted", zap.String("space_id", space.ID), zap.String("user_id", actor.UserID()))
	return nil
}

// RecordView 匿名访问计数
func (s *SpaceStore) RecordView(ctx context.Context, id string) error {
	if err := s.db.IncrementViewCount(ctx, id); err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("failed to record view", zap.String("space_id", id), zap.Error(err))
		}
		return translate(err, "Space not found")
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
