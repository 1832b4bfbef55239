package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"spaces-backend/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*PostgresDatabase, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresDatabaseFromDB(db), mock
}

var spaceRowColumns = []string{
	"id", "name", "slug", "owner_id", "kind", "language", "language_version", "html_content", "language_content",
	"is_public", "view_count", "analytics_enabled", "created_at", "updated_at",
}

func TestPostgres_GetSpaceByID_Code(t *testing.T) {
	p, mock := newMockDB(t)
	id := "5a1d1f36-3f0b-4a43-9c4b-3b8d6b0a7d11"
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM spaces WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(spaceRowColumns).AddRow(
			id, "hello", "hello.py", "owner-1", "code", "python", "3.10.0", "", "print('hi')",
			true, int64(3), false, now, now,
		))

	sp, err := p.GetSpaceByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, sp.IsCode())
	assert.Equal(t, "python", sp.Code.Language)
	assert.Equal(t, "3.10.0", sp.Code.Version)
	assert.Equal(t, int64(3), sp.ViewCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSpaceByID_NotFound(t *testing.T) {
	p, mock := newMockDB(t)
	id := "5a1d1f36-3f0b-4a43-9c4b-3b8d6b0a7d11"

	mock.ExpectQuery(`FROM spaces WHERE id`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	_, err := p.GetSpaceByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)

	// 非法 UUID 不会访问数据库
	_, err = p.GetSpaceByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

var userRowColumns = []string{
	"id", "username", "email", "password_hash", "is_active", "is_suspended", "is_admin", "is_staff",
	"github_token", "github_username", "slack_id", "hackatime_api_key", "ai_api_key",
	"last_heartbeat_day", "created_at", "last_login",
}

func TestPostgres_GetUserByID_OptionalTokens(t *testing.T) {
	p, mock := newMockDB(t)
	id := "0f8c7c1e-4d0a-4b59-9a57-2f3f5e1d9c20"
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			id, "alice", "alice@example.com", "hash", true, false, false, false,
			"gho_abc", "alice-gh", "", nil, "sk-test",
			time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), now, nil,
		))

	u, err := p.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u.GitHubToken)
	assert.Equal(t, "gho_abc", *u.GitHubToken)
	require.NotNil(t, u.AIAPIKey)
	assert.Equal(t, "sk-test", *u.AIAPIKey)
	assert.Nil(t, u.HackatimeAPIKey)
	assert.Equal(t, "alice-gh", u.GitHubUsername)
	require.NotNil(t, u.LastHeartbeatDay)
	assert.Equal(t, "2024-05-01", *u.LastHeartbeatDay)
	assert.Nil(t, u.LastLogin)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(
			id, "alice", "alice@example.com", "hash", true, false, false, false,
			nil, "", "", nil, nil, nil, now, now,
		))

	u, err = p.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, u.GitHubToken)
	assert.Nil(t, u.AIAPIKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateSpace_UniqueViolation(t *testing.T) {
	p, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO spaces`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "spaces_slug_key"})

	err := p.CreateSpace(context.Background(), &models.Space{
		Name: "Hello", Slug: "hello", OwnerID: "owner-1", Kind: models.SpaceKindWeb,
	})
	assert.ErrorIs(t, err, ErrUniqueViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InTx_CommitAndRollback(t *testing.T) {
	p, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET is_suspended`).WithArgs("u1", true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.InTx(ctx, func(tx DatabaseInterface) error {
		return tx.SetUserSuspended(ctx, "u1", true)
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pages`).WithArgs("s1", "about.html").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = p.InTx(ctx, func(tx DatabaseInterface) error {
		if _, err := tx.DeletePage(ctx, "s1", "about.html"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InTx_Nested(t *testing.T) {
	p, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE spaces SET view_count`).WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.InTx(ctx, func(tx DatabaseInterface) error {
		return tx.InTx(ctx, func(inner DatabaseInterface) error {
			return inner.IncrementViewCount(ctx, "s1")
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MarkHeartbeatDay(t *testing.T) {
	p, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET last_heartbeat_day`).WithArgs("u1", "2024-05-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET last_heartbeat_day`).WithArgs("u1", "2024-05-01").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := p.MarkHeartbeatDay(ctx, "u1", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.MarkHeartbeatDay(ctx, "u1", "2024-05-01")
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertPageIfAbsent(t *testing.T) {
	p, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec(`ON CONFLICT \(space_id, filename\) DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := p.InsertPageIfAbsent(ctx, &models.Page{SpaceID: "s1", Filename: "index.html", FileType: "html"})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSettings(t *testing.T) {
	p, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT key, value FROM system_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("max_sites_per_user", "2").
			AddRow("maintenance_mode", "false"))

	settings, err := p.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", settings["max_sites_per_user"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteUser_NotFound(t *testing.T) {
	p, mock := newMockDB(t)

	mock.ExpectExec(`DELETE FROM users`).WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.DeleteUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunMigrations_Seam(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.EqualError(t, RunMigrations(context.Background(), db), "boom")
}
