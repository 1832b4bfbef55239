package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"spaces-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, db *LocalDatabase, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestLocal_UniqueConstraints(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "alice")

	err := db.CreateUser(ctx, &models.User{Username: "ALICE", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	require.NoError(t, db.CreateSpace(ctx, &models.Space{Name: "a", Slug: "a", OwnerID: u.ID, Kind: models.SpaceKindWeb}))
	err = db.CreateSpace(ctx, &models.Space{Name: "a", Slug: "a", OwnerID: u.ID, Kind: models.SpaceKindWeb})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestLocal_InTxRollback(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "bob")

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx DatabaseInterface) error {
		sp := &models.Space{Name: "site", Slug: "site", OwnerID: u.ID, Kind: models.SpaceKindWeb}
		if err := tx.CreateSpace(ctx, sp); err != nil {
			return err
		}
		if err := tx.UpsertPage(ctx, &models.Page{SpaceID: sp.ID, Filename: "index.html", FileType: "html"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := db.CountSpacesByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocal_InTxPanicRestores(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "carol")

	assert.Panics(t, func() {
		_ = db.InTx(ctx, func(tx DatabaseInterface) error {
			_ = tx.SetUserSuspended(ctx, u.ID, true)
			panic("boom")
		})
	})

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSuspended)
}

func TestLocal_DeleteUserCascades(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "dave")
	other := seedUser(t, db, "erin")

	sp := &models.Space{Name: "site", Slug: "site", OwnerID: u.ID, Kind: models.SpaceKindWeb}
	require.NoError(t, db.CreateSpace(ctx, sp))
	require.NoError(t, db.UpsertPage(ctx, &models.Page{SpaceID: sp.ID, Filename: "index.html", FileType: "html"}))
	uid, oid := u.ID, other.ID
	require.NoError(t, db.AppendActivity(ctx, &models.ActivityEvent{Type: "x", Message: "m", UserID: &uid}))
	require.NoError(t, db.AppendActivity(ctx, &models.ActivityEvent{Type: "x", Message: "m", UserID: &oid}))
	db.AddClubMember("club-1", u.ID, models.ClubRoleLeader)

	require.NoError(t, db.DeleteUser(ctx, u.ID))

	_, err := db.GetSpaceByID(ctx, sp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	pages, err := db.ListPages(ctx, sp.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)
	events, err := db.ListActivity(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	_, err = db.GetClubRole(ctx, "club-1", u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_PagesUpsertAndInsertIfAbsent(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "frank")
	sp := &models.Space{Name: "site", Slug: "site", OwnerID: u.ID, Kind: models.SpaceKindWeb}
	require.NoError(t, db.CreateSpace(ctx, sp))

	inserted, err := db.InsertPageIfAbsent(ctx, &models.Page{SpaceID: sp.ID, Filename: "a.css", Content: "one", FileType: "css"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.InsertPageIfAbsent(ctx, &models.Page{SpaceID: sp.ID, Filename: "a.css", Content: "two", FileType: "css"})
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, db.UpsertPage(ctx, &models.Page{SpaceID: sp.ID, Filename: "a.css", Content: "three", FileType: "css"}))
	pg, err := db.GetPage(ctx, sp.ID, "a.css")
	require.NoError(t, err)
	assert.Equal(t, "three", pg.Content)

	removed, err := db.DeletePage(ctx, sp.ID, "a.css")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = db.DeletePage(ctx, sp.ID, "a.css")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLocal_MarkHeartbeatDay(t *testing.T) {
	db := NewLocalDatabase()
	ctx := context.Background()
	u := seedUser(t, db, "gina")

	changed, err := db.MarkHeartbeatDay(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = db.MarkHeartbeatDay(ctx, u.ID, "2024-05-01")
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = db.MarkHeartbeatDay(ctx, u.ID, "2024-05-02")
	require.NoError(t, err)
	assert.True(t, changed)
}

type flakyDB struct {
	*LocalDatabase
	calls int
	err   error
}

func (f *flakyDB) HealthCheck(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestLiveness_CachesSuccess(t *testing.T) {
	db := &flakyDB{LocalDatabase: NewLocalDatabase()}
	l := NewLiveness(db, 5*time.Second)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Check(ctx))
	require.NoError(t, l.Check(ctx))
	assert.Equal(t, 1, db.calls)

	now = now.Add(6 * time.Second)
	db.err = errors.New("down")
	assert.Error(t, l.Check(ctx))
	// 失败结果不缓存
	assert.Error(t, l.Check(ctx))
	assert.Equal(t, 3, db.calls)
}
