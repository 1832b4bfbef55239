package services

import (
	"context"
	"testing"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameRules(t *testing.T) {
	for _, ok := range []string{"index.html", "about-me.html", "img_1.png", "README", "a.b.c"} {
		assert.True(t, ValidFilename(ok), ok)
	}
	for _, bad := range []string{"", ".hidden", "../etc/passwd", "a/b.html", "a..b", "with space.html", "-dash.js"} {
		assert.False(t, ValidFilename(bad), bad)
	}
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, "html", FileTypeOf("index.HTML"))
	assert.Equal(t, "css", FileTypeOf("styles.css"))
	assert.Equal(t, "js", FileTypeOf("app.mjs"))
	assert.Equal(t, "json", FileTypeOf("data.json"))
	assert.Equal(t, "text", FileTypeOf("README"))

	assert.Equal(t, "text/html; charset=utf-8", ContentType("html"))
	assert.Equal(t, "application/javascript; charset=utf-8", ContentType("js"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType("json"))
}

func TestPageStore_ListMaterialisesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	// 模拟历史数据：网页空间没有任何文件
	for _, name := range []string{IndexFilename, StylesFilename, ScriptFilename} {
		_, err := f.db.DeletePage(ctx, space.ID, name)
		require.NoError(t, err)
	}

	infos, err := f.pages.List(ctx, alice, space.ID)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	// 再次调用不会产生重复
	infos, err = f.pages.List(ctx, alice, space.ID)
	require.NoError(t, err)
	assert.Len(t, infos, 3)
}

func TestPageStore_ReadVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	bob := f.user(t, "bob", false)
	space := f.webSpace(t, alice, "Site")

	page, err := f.pages.Read(ctx, bob, space.ID, StylesFilename)
	require.NoError(t, err)
	assert.Equal(t, "css", page.FileType)

	_, err = f.pages.Read(ctx, alice, space.ID, "missing.html")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = f.spaces.UpdateContent(ctx, alice, space.ID, ContentPatch{IsPublic: boolPtr(false)})
	require.NoError(t, err)
	_, err = f.pages.Read(ctx, bob, space.ID, StylesFilename)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	_, err = f.pages.List(ctx, auth.Anonymous(), space.ID)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(err))
}

func TestPageStore_UpsertMirrorsIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	page, err := f.pages.Upsert(ctx, alice, space.ID, models.PageInput{Filename: "about.html", Content: "<p>about</p>"})
	require.NoError(t, err)
	assert.Equal(t, "html", page.FileType)

	_, err = f.pages.Upsert(ctx, alice, space.ID, models.PageInput{Filename: IndexFilename, Content: "<h1>home</h1>"})
	require.NoError(t, err)
	got, err := f.db.GetSpaceByID(ctx, space.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>home</h1>", got.HTMLContent)

	_, err = f.pages.Upsert(ctx, alice, space.ID, models.PageInput{Filename: "../x", Content: ""})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	bob := f.user(t, "bob", false)
	_, err = f.pages.Upsert(ctx, bob, space.ID, models.PageInput{Filename: "evil.js", Content: ""})
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestPageStore_DeleteProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	for _, name := range []string{IndexFilename, StylesFilename, ScriptFilename} {
		err := f.pages.Delete(ctx, alice, space.ID, name)
		assert.Equal(t, apperr.Protected, apperr.KindOf(err), name)
	}
	assert.Equal(t, apperr.NotFound, apperr.KindOf(f.pages.Delete(ctx, alice, space.ID, "nope.html")))

	_, err := f.pages.Upsert(ctx, alice, space.ID, models.PageInput{Filename: "extra.css", Content: "a{}"})
	require.NoError(t, err)
	require.NoError(t, f.pages.Delete(ctx, alice, space.ID, "extra.css"))

	pages, err := f.db.ListPages(ctx, space.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestPageStore_BulkReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	files := []models.PageInput{
		{Filename: IndexFilename, Content: "<h1>v1</h1>"},
		{Filename: "app.js", Content: "first"},
		{Filename: "app.js", Content: "second"},
	}
	n, err := f.pages.BulkReplace(ctx, alice, space.ID, files)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	app, err := f.db.GetPage(ctx, space.ID, "app.js")
	require.NoError(t, err)
	assert.Equal(t, "second", app.Content)
	assert.Equal(t, "js", app.FileType)

	// 未提及的文件保持不变
	styles, err := f.db.GetPage(ctx, space.ID, StylesFilename)
	require.NoError(t, err)
	assert.Contains(t, styles.Content, "font-family")

	got, err := f.db.GetSpaceByID(ctx, space.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>v1</h1>", got.HTMLContent)

	// 幂等
	_, err = f.pages.BulkReplace(ctx, alice, space.ID, files)
	require.NoError(t, err)
	pages, err := f.db.ListPages(ctx, space.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 4)
}

func TestPageStore_BulkReplaceIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	_, err := f.pages.BulkReplace(ctx, alice, space.ID, []models.PageInput{
		{Filename: "ok.html", Content: "fine"},
		{Filename: "bad/name.html", Content: "nope"},
	})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	_, err = f.db.GetPage(ctx, space.ID, "ok.html")
	assert.Error(t, err)

	_, err = f.pages.BulkReplace(ctx, alice, space.ID, nil)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestPageStore_MutationsRecordActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	space := f.webSpace(t, alice, "Site")

	_, err := f.pages.Upsert(ctx, alice, space.ID, models.PageInput{Filename: "about.html", Content: "<p>hi</p>"})
	require.NoError(t, err)
	events, err := f.activity.ForUser(ctx, alice.UserID(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActivityPagesUpdated, events[0].Type)
	assert.Equal(t, "alice updated about.html in Site", events[0].Message)
	assert.Equal(t, space.ID, *events[0].SpaceID)
	assert.Nil(t, events[0].ActorAdminID)

	require.NoError(t, f.pages.Delete(ctx, alice, space.ID, "about.html"))
	events, err = f.activity.ForUser(ctx, alice.UserID(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActivityPageDeleted, events[0].Type)
	assert.Equal(t, "alice deleted about.html from Site", events[0].Message)

	// 失败的删除不留下记录
	before, err := f.activity.ForUser(ctx, alice.UserID(), 50)
	require.NoError(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(f.pages.Delete(ctx, alice, space.ID, "about.html")))
	after, err := f.activity.ForUser(ctx, alice.UserID(), 50)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestPageStore_ImpersonatedMutationsRecordAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", false)
	admin := f.user(t, "root", true)
	space := f.webSpace(t, alice, "Site")

	impersonated := auth.ForUser(alice.User, admin.UserID())
	_, err := f.pages.Upsert(ctx, impersonated, space.ID, models.PageInput{Filename: "extra.css", Content: "a{}"})
	require.NoError(t, err)
	require.NoError(t, f.pages.Delete(ctx, impersonated, space.ID, "extra.css"))

	events, err := f.activity.ForUser(ctx, alice.UserID(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	types := []string{events[0].Type, events[1].Type}
	assert.ElementsMatch(t, []string{models.ActivityPagesUpdated, models.ActivityPageDeleted}, types)
	for _, e := range events {
		require.NotNil(t, e.ActorAdminID, e.Type)
		assert.Equal(t, admin.UserID(), *e.ActorAdminID)
		assert.Equal(t, "alice", e.Username)
	}
}
