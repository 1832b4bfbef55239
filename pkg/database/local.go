package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"spaces-backend/pkg/models"
)

// LocalDatabase 进程内存数据库实现，用于本地开发与测试
//
// 与 PostgreSQL 实现保持相同语义：唯一约束、级联删除、事务回滚。
// 所有访问由一把互斥锁串行化；InTx 持有锁直到事务结束。
type LocalDatabase struct {
	mu    *sync.Mutex
	state *localState
	inTx  bool
	now   func() time.Time
}

type localState struct {
	users    map[string]*models.User
	spaces   map[string]*models.Space
	pages    map[string]map[string]*models.Page // space_id -> filename -> page
	activity []models.ActivityEvent
	settings map[string]string
	clubs    map[string]map[string]models.ClubRole // club_id -> user_id -> role
}

// NewLocalDatabase 创建本地数据库实例
func NewLocalDatabase() *LocalDatabase {
	return &LocalDatabase{
		mu: &sync.Mutex{},
		state: &localState{
			users:  map[string]*models.User{},
			spaces: map[string]*models.Space{},
			pages:  map[string]map[string]*models.Page{},
			settings: map[string]string{
				models.SettingMaxSitesPerUser: fmt.Sprint(models.DefaultMaxSitesPerUser),
				models.SettingMaintenanceMode: "false",
			},
			clubs: map[string]map[string]models.ClubRole{},
		},
		now: time.Now,
	}
}

func (s *localState) clone() *localState {
	c := &localState{
		users:    make(map[string]*models.User, len(s.users)),
		spaces:   make(map[string]*models.Space, len(s.spaces)),
		pages:    make(map[string]map[string]*models.Page, len(s.pages)),
		activity: append([]models.ActivityEvent(nil), s.activity...),
		settings: make(map[string]string, len(s.settings)),
		clubs:    make(map[string]map[string]models.ClubRole, len(s.clubs)),
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, sp := range s.spaces {
		c.spaces[id] = sp.Clone()
	}
	for id, files := range s.pages {
		m := make(map[string]*models.Page, len(files))
		for name, pg := range files {
			cp := *pg
			m[name] = &cp
		}
		c.pages[id] = m
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for id, members := range s.clubs {
		m := make(map[string]models.ClubRole, len(members))
		for uid, role := range members {
			m[uid] = role
		}
		c.clubs[id] = m
	}
	return c
}

// lock 事务内已持有锁时为空操作
func (db *LocalDatabase) lock() func() {
	if db.inTx {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// InTx 在快照上执行 fn，失败或 panic 时恢复快照
func (db *LocalDatabase) InTx(ctx context.Context, fn func(tx DatabaseInterface) error) (err error) {
	if db.inTx {
		return fn(db)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.state.clone()
	tx := &LocalDatabase{mu: db.mu, state: db.state, inTx: true, now: db.now}

	defer func() {
		if p := recover(); p != nil {
			*db.state = *snapshot
			panic(p)
		}
		if err != nil {
			*db.state = *snapshot
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	err = fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// HealthCheck 内存数据库始终可用
func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close 关闭连接
func (db *LocalDatabase) Close() error { return nil }

// ==== users ====

// CreateUser 创建用户
func (db *LocalDatabase) CreateUser(ctx context.Context, user *models.User) error {
	defer db.lock()()
	for _, u := range db.state.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to create user: %w: users_username_key", ErrUniqueViolation)
		}
	}
	user.ID = newID(user.ID)
	user.CreatedAt = db.now()
	cp := *user
	db.state.users[user.ID] = &cp
	return nil
}

func (db *LocalDatabase) findUser(match func(*models.User) bool) (*models.User, error) {
	for _, u := range db.state.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByID 根据ID获取用户
func (db *LocalDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	defer db.lock()()
	u, ok := db.state.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername 根据用户名获取用户
func (db *LocalDatabase) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	defer db.lock()()
	return db.findUser(func(u *models.User) bool { return strings.EqualFold(u.Username, username) })
}

// GetUserByEmail 根据邮箱获取用户
func (db *LocalDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer db.lock()()
	return db.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

// LockUser 全局锁已保证串行，这里只校验存在性
func (db *LocalDatabase) LockUser(ctx context.Context, id string) error {
	defer db.lock()()
	if _, ok := db.state.users[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (db *LocalDatabase) updateUser(id string, fn func(*models.User)) error {
	defer db.lock()()
	u, ok := db.state.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

// SetUserSuspended 设置封禁状态
func (db *LocalDatabase) SetUserSuspended(ctx context.Context, id string, suspended bool) error {
	return db.updateUser(id, func(u *models.User) { u.IsSuspended = suspended })
}

// SetHackatimeKey 绑定或清除时间追踪密钥
func (db *LocalDatabase) SetHackatimeKey(ctx context.Context, id string, key *string) error {
	return db.updateUser(id, func(u *models.User) {
		if key == nil {
			u.HackatimeAPIKey = nil
			return
		}
		k := *key
		u.HackatimeAPIKey = &k
	})
}

// MarkHeartbeatDay 同一天只成功一次
func (db *LocalDatabase) MarkHeartbeatDay(ctx context.Context, id, day string) (bool, error) {
	changed := false
	err := db.updateUser(id, func(u *models.User) {
		if u.LastHeartbeatDay != nil && *u.LastHeartbeatDay == day {
			return
		}
		d := day
		u.LastHeartbeatDay = &d
		changed = true
	})
	if err != nil {
		// 与 PostgreSQL 条件更新一致：用户不存在时不报错
		return false, nil
	}
	return changed, nil
}

// TouchLastLogin 更新最后登录时间
func (db *LocalDatabase) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return db.updateUser(id, func(u *models.User) { u.LastLogin = &at })
}

// DeleteUser 删除用户并级联删除空间、页面、社团成员与活动记录
func (db *LocalDatabase) DeleteUser(ctx context.Context, id string) error {
	defer db.lock()()
	if _, ok := db.state.users[id]; !ok {
		return ErrNotFound
	}
	delete(db.state.users, id)
	for sid, sp := range db.state.spaces {
		if sp.OwnerID == id {
			delete(db.state.spaces, sid)
			delete(db.state.pages, sid)
		}
	}
	for _, members := range db.state.clubs {
		delete(members, id)
	}
	kept := db.state.activity[:0]
	for _, ev := range db.state.activity {
		if ev.UserID != nil && *ev.UserID == id {
			continue
		}
		kept = append(kept, ev)
	}
	db.state.activity = kept
	return nil
}

// ==== spaces ====

// CreateSpace 创建空间
func (db *LocalDatabase) CreateSpace(ctx context.Context, space *models.Space) error {
	defer db.lock()()
	if _, ok := db.state.users[space.OwnerID]; !ok {
		return fmt.Errorf("failed to create space: owner %s does not exist", space.OwnerID)
	}
	for _, sp := range db.state.spaces {
		if sp.Slug == space.Slug {
			return fmt.Errorf("failed to create space: %w: spaces_slug_key", ErrUniqueViolation)
		}
	}
	space.ID = newID(space.ID)
	now := db.now()
	space.CreatedAt, space.UpdatedAt = now, now
	db.state.spaces[space.ID] = space.Clone()
	return nil
}

func (db *LocalDatabase) getSpace(id string) (*models.Space, error) {
	sp, ok := db.state.spaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sp.Clone(), nil
}

// GetSpaceByID 根据ID获取空间
func (db *LocalDatabase) GetSpaceByID(ctx context.Context, id string) (*models.Space, error) {
	defer db.lock()()
	return db.getSpace(id)
}

// GetSpaceBySlug 根据slug获取空间
func (db *LocalDatabase) GetSpaceBySlug(ctx context.Context, slug string) (*models.Space, error) {
	defer db.lock()()
	for _, sp := range db.state.spaces {
		if sp.Slug == slug {
			return sp.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// LockSpace 全局锁已保证串行
func (db *LocalDatabase) LockSpace(ctx context.Context, id string) (*models.Space, error) {
	return db.GetSpaceByID(ctx, id)
}

// SlugExists 检查slug是否已被其他空间占用
func (db *LocalDatabase) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	defer db.lock()()
	for id, sp := range db.state.spaces {
		if sp.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// CountSpacesByOwner 统计用户拥有的空间数
func (db *LocalDatabase) CountSpacesByOwner(ctx context.Context, ownerID string) (int, error) {
	defer db.lock()()
	n := 0
	for _, sp := range db.state.spaces {
		if sp.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// ListSpacesByOwner 按更新时间倒序列出用户的空间
func (db *LocalDatabase) ListSpacesByOwner(ctx context.Context, ownerID string) ([]models.Space, error) {
	defer db.lock()()
	spaces := []models.Space{}
	for _, sp := range db.state.spaces {
		if sp.OwnerID == ownerID {
			spaces = append(spaces, *sp.Clone())
		}
	}
	sort.Slice(spaces, func(i, j int) bool {
		if spaces[i].UpdatedAt.Equal(spaces[j].UpdatedAt) {
			return spaces[i].Slug < spaces[j].Slug
		}
		return spaces[i].UpdatedAt.After(spaces[j].UpdatedAt)
	})
	return spaces, nil
}

// UpdateSpace 写回可变字段
func (db *LocalDatabase) UpdateSpace(ctx context.Context, space *models.Space) error {
	defer db.lock()()
	cur, ok := db.state.spaces[space.ID]
	if !ok {
		return ErrNotFound
	}
	for id, sp := range db.state.spaces {
		if id != space.ID && sp.Slug == space.Slug {
			return fmt.Errorf("failed to update space: %w: spaces_slug_key", ErrUniqueViolation)
		}
	}
	cur.Name = space.Name
	cur.Slug = space.Slug
	if cur.Code != nil && space.Code != nil {
		cur.Code.Version = space.Code.Version
	}
	cur.HTMLContent = space.HTMLContent
	cur.LanguageContent = space.LanguageContent
	cur.IsPublic = space.IsPublic
	cur.AnalyticsEnabled = space.AnalyticsEnabled
	cur.UpdatedAt = db.now()
	space.UpdatedAt = cur.UpdatedAt
	return nil
}

// IncrementViewCount 浏览计数
func (db *LocalDatabase) IncrementViewCount(ctx context.Context, id string) error {
	defer db.lock()()
	sp, ok := db.state.spaces[id]
	if !ok {
		return ErrNotFound
	}
	sp.ViewCount++
	return nil
}

// DeleteSpace 删除空间及其页面
func (db *LocalDatabase) DeleteSpace(ctx context.Context, id string) error {
	defer db.lock()()
	if _, ok := db.state.spaces[id]; !ok {
		return ErrNotFound
	}
	delete(db.state.spaces, id)
	delete(db.state.pages, id)
	return nil
}

// ==== pages ====

// ListPages 按文件名列出空间内的文件
func (db *LocalDatabase) ListPages(ctx context.Context, spaceID string) ([]models.Page, error) {
	defer db.lock()()
	pages := []models.Page{}
	for _, pg := range db.state.pages[spaceID] {
		pages = append(pages, *pg)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Filename < pages[j].Filename })
	return pages, nil
}

// GetPage 读取单个文件
func (db *LocalDatabase) GetPage(ctx context.Context, spaceID, filename string) (*models.Page, error) {
	defer db.lock()()
	pg, ok := db.state.pages[spaceID][filename]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pg
	return &cp, nil
}

func (db *LocalDatabase) spaceFiles(spaceID string) (map[string]*models.Page, error) {
	if _, ok := db.state.spaces[spaceID]; !ok {
		return nil, fmt.Errorf("space %s does not exist", spaceID)
	}
	files, ok := db.state.pages[spaceID]
	if !ok {
		files = map[string]*models.Page{}
		db.state.pages[spaceID] = files
	}
	return files, nil
}

// UpsertPage 按 (space_id, filename) 插入或更新
func (db *LocalDatabase) UpsertPage(ctx context.Context, page *models.Page) error {
	defer db.lock()()
	files, err := db.spaceFiles(page.SpaceID)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	now := db.now()
	if cur, ok := files[page.Filename]; ok {
		cur.Content = page.Content
		cur.FileType = page.FileType
		cur.UpdatedAt = now
		page.ID, page.CreatedAt, page.UpdatedAt = cur.ID, cur.CreatedAt, now
		return nil
	}
	page.ID = newID(page.ID)
	page.CreatedAt, page.UpdatedAt = now, now
	cp := *page
	files[page.Filename] = &cp
	return nil
}

// InsertPageIfAbsent 仅在文件不存在时插入
func (db *LocalDatabase) InsertPageIfAbsent(ctx context.Context, page *models.Page) (bool, error) {
	defer db.lock()()
	files, err := db.spaceFiles(page.SpaceID)
	if err != nil {
		return false, fmt.Errorf("failed to insert page: %w", err)
	}
	if _, ok := files[page.Filename]; ok {
		return false, nil
	}
	page.ID = newID(page.ID)
	now := db.now()
	page.CreatedAt, page.UpdatedAt = now, now
	cp := *page
	files[page.Filename] = &cp
	return true, nil
}

// DeletePage 删除文件，返回是否存在
func (db *LocalDatabase) DeletePage(ctx context.Context, spaceID, filename string) (bool, error) {
	defer db.lock()()
	files := db.state.pages[spaceID]
	if _, ok := files[filename]; !ok {
		return false, nil
	}
	delete(files, filename)
	return true, nil
}

// ==== activity / settings / clubs ====

// AppendActivity 追加活动记录
func (db *LocalDatabase) AppendActivity(ctx context.Context, event *models.ActivityEvent) error {
	defer db.lock()()
	event.ID = newID(event.ID)
	event.CreatedAt = db.now()
	db.state.activity = append(db.state.activity, *event)
	return nil
}

func (db *LocalDatabase) recent(limit int, match func(models.ActivityEvent) bool) []models.ActivityEvent {
	events := []models.ActivityEvent{}
	for i := len(db.state.activity) - 1; i >= 0 && len(events) < limit; i-- {
		if ev := db.state.activity[i]; match(ev) {
			events = append(events, ev)
		}
	}
	return events
}

// ListActivity 最近的活动
func (db *LocalDatabase) ListActivity(ctx context.Context, limit int) ([]models.ActivityEvent, error) {
	defer db.lock()()
	return db.recent(limit, func(models.ActivityEvent) bool { return true }), nil
}

// ListActivityByUser 某用户最近的活动
func (db *LocalDatabase) ListActivityByUser(ctx context.Context, userID string, limit int) ([]models.ActivityEvent, error) {
	defer db.lock()()
	return db.recent(limit, func(ev models.ActivityEvent) bool {
		return ev.UserID != nil && *ev.UserID == userID
	}), nil
}

// GetSettings 读取全部系统设置
func (db *LocalDatabase) GetSettings(ctx context.Context) (map[string]string, error) {
	defer db.lock()()
	settings := make(map[string]string, len(db.state.settings))
	for k, v := range db.state.settings {
		settings[k] = v
	}
	return settings, nil
}

// PutSetting 写入单个系统设置
func (db *LocalDatabase) PutSetting(ctx context.Context, key, value string) error {
	defer db.lock()()
	db.state.settings[key] = value
	return nil
}

// AddClubMember 仅用于本地开发与测试数据准备
func (db *LocalDatabase) AddClubMember(clubID, userID string, role models.ClubRole) {
	defer db.lock()()
	members, ok := db.state.clubs[clubID]
	if !ok {
		members = map[string]models.ClubRole{}
		db.state.clubs[clubID] = members
	}
	members[userID] = role
}

// GetClubRole 查询用户在社团中的角色
func (db *LocalDatabase) GetClubRole(ctx context.Context, clubID, userID string) (models.ClubRole, error) {
	defer db.lock()()
	role, ok := db.state.clubs[clubID][userID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}
