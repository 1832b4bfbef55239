// Package runtimes caches the languages offered by the execution sandbox and
// maps them to editor metadata (extension, editor mode, icon, template).
package runtimes

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"spaces-backend/pkg/log"
	"spaces-backend/pkg/models"
	"spaces-backend/pkg/piston"

	"go.uber.org/zap"
)

// Source 运行时列表来源（Piston GET /runtimes）
type Source interface {
	Runtimes(ctx context.Context) ([]piston.Runtime, error)
}

// DefaultBanned 不向用户展示的运行时
var DefaultBanned = []string{"file"}

// FailureCooldown 懒加载失败后，在此期间内不再请求沙箱
const FailureCooldown = 30 * time.Second

type runtimeEntry struct {
	name     string
	versions []string // newest first
	aliases  []string
}

// Catalog 语言目录；首次使用时懒加载，进程内缓存，Refresh 单写者替换
type Catalog struct {
	source Source
	banned map[string]bool
	logger *zap.Logger

	mu          sync.RWMutex
	loaded      bool
	lastFailure time.Time
	entries     map[string]*runtimeEntry
	aliases     map[string]string

	now func() time.Time
}

// NewCatalog 创建语言目录
func NewCatalog(source Source, banned []string) *Catalog {
	c := &Catalog{
		source:  source,
		banned:  map[string]bool{},
		logger:  log.WithName("runtimes"),
		entries: map[string]*runtimeEntry{},
		aliases: map[string]string{},
		now:     time.Now,
	}
	for _, b := range banned {
		c.banned[strings.ToLower(strings.TrimSpace(b))] = true
	}
	return c
}

// Refresh 重新拉取运行时列表；失败时保留旧缓存
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Catalog) refreshLocked(ctx context.Context) error {
	runtimes, err := c.source.Runtimes(ctx)
	if err != nil {
		c.lastFailure = c.now()
		c.logger.Warn("failed to fetch sandbox runtimes", zap.Error(err))
		return err
	}

	entries := map[string]*runtimeEntry{}
	aliases := map[string]string{}
	for _, rt := range runtimes {
		name := strings.ToLower(strings.TrimSpace(rt.Language))
		if name == "" || c.banned[name] {
			continue
		}
		e, ok := entries[name]
		if !ok {
			e = &runtimeEntry{name: name}
			entries[name] = e
		}
		if rt.Version != "" && !contains(e.versions, rt.Version) {
			e.versions = append(e.versions, rt.Version)
		}
		for _, a := range rt.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || a == name || contains(e.aliases, a) {
				continue
			}
			e.aliases = append(e.aliases, a)
			aliases[a] = name
		}
	}
	for _, e := range entries {
		sort.SliceStable(e.versions, func(i, j int) bool {
			return CompareVersions(e.versions[i], e.versions[j]) > 0
		})
		sort.Strings(e.aliases)
	}

	c.entries = entries
	c.aliases = aliases
	c.loaded = true
	c.lastFailure = time.Time{}
	c.logger.Info("sandbox runtimes loaded", zap.Int("languages", len(entries)))
	return nil
}

// ensureLoaded 首次访问时加载；失败时缓存保持为空，冷却期过后的调用再重试
func (c *Catalog) ensureLoaded(ctx context.Context) {
	c.mu.RLock()
	settled := c.settledLocked()
	c.mu.RUnlock()
	if settled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 排队等锁的调用者在这里看到前一次失败，直接返回
	if !c.settledLocked() {
		_ = c.refreshLocked(ctx)
	}
}

func (c *Catalog) settledLocked() bool {
	if c.loaded {
		return true
	}
	return !c.lastFailure.IsZero() && c.now().Sub(c.lastFailure) < FailureCooldown
}

// Canonical 将别名解析为沙箱语言名
func (c *Catalog) Canonical(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := staticAliases[lang]; ok {
		return alias
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if alias, ok := c.aliases[lang]; ok {
		return alias
	}
	return lang
}

// Languages 可用语言，去重、排序并排除禁用项
func (c *Catalog) Languages(ctx context.Context) []string {
	c.ensureLoaded(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions 指定语言的全部版本，新版本在前
func (c *Catalog) Versions(ctx context.Context, lang string) []string {
	c.ensureLoaded(ctx)
	name := c.Canonical(lang)
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return nil
	}
	return append([]string(nil), e.versions...)
}

// LatestVersion 最新版本；语言不存在或目录为空时返回 false
func (c *Catalog) LatestVersion(ctx context.Context, lang string) (string, bool) {
	versions := c.Versions(ctx, lang)
	if len(versions) == 0 {
		return "", false
	}
	return versions[0], true
}

// HasVersion 检查版本是否可用
func (c *Catalog) HasVersion(ctx context.Context, lang, version string) bool {
	return contains(c.Versions(ctx, lang), version)
}

// Runtimes GET /api/languages 的完整视图
func (c *Catalog) Runtimes(ctx context.Context) []models.LanguageRuntime {
	names := c.Languages(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.LanguageRuntime, 0, len(names))
	for _, name := range names {
		e := c.entries[name]
		rt := models.LanguageRuntime{
			Name:        name,
			DisplayName: DisplayName(name),
			Versions:    append([]string(nil), e.versions...),
			Aliases:     append([]string(nil), e.aliases...),
			Extension:   Extension(name),
			EditorMode:  EditorMode(name),
			Icon:        Icon(name),
			Template:    Template(name),
		}
		if len(e.versions) > 0 {
			rt.LatestVersion = e.versions[0]
		}
		out = append(out, rt)
	}
	return out
}

func lookup(lang string) (languageMeta, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := staticAliases[lang]; ok {
		lang = alias
	}
	meta, ok := languages[lang]
	return meta, ok
}

// Extension 文件扩展名，未知语言为 txt
func Extension(lang string) string {
	if meta, ok := lookup(lang); ok && meta.Ext != "" {
		return meta.Ext
	}
	return DefaultExtension
}

// EditorMode 编辑器高亮模式，未知语言为 text
func EditorMode(lang string) string {
	if meta, ok := lookup(lang); ok && meta.Mode != "" {
		return meta.Mode
	}
	return DefaultEditorMode
}

// Icon 语言图标 CSS class
func Icon(lang string) string {
	if meta, ok := lookup(lang); ok && meta.Icon != "" {
		return meta.Icon
	}
	return DefaultIcon
}

// Template 新建代码空间的初始内容，未知语言为空
func Template(lang string) string {
	if meta, ok := lookup(lang); ok {
		return meta.Template
	}
	return ""
}

// DisplayName 展示名，未知语言首字母大写
func DisplayName(lang string) string {
	if meta, ok := lookup(lang); ok && meta.Display != "" {
		return meta.Display
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	return strings.ToUpper(lang[:1]) + lang[1:]
}

// CompareVersions 按点分数字比较版本号；非数字段按字典序
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var sa, sb string
		if i < len(pa) {
			sa = pa[i]
		}
		if i < len(pb) {
			sb = pb[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na > nb {
					return 1
				}
				return -1
			}
		case sa != sb:
			// 缺失段视为更旧
			if sa == "" {
				return -1
			}
			if sb == "" {
				return 1
			}
			return strings.Compare(sa, sb)
		}
	}
	return 0
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
