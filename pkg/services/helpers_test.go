package services

import (
	"context"
	"strings"
	"testing"

	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"

	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	versions map[string][]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{versions: map[string][]string{
		"python":     {"3.10.0", "3.9.4"},
		"javascript": {"18.15.0"},
		"c++":        {"10.2.0"},
	}}
}

func (c *fakeCatalog) Canonical(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	switch lang {
	case "py":
		return "python"
	case "js":
		return "javascript"
	case "cpp":
		return "c++"
	}
	return lang
}

func (c *fakeCatalog) LatestVersion(ctx context.Context, lang string) (string, bool) {
	v := c.versions[c.Canonical(lang)]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (c *fakeCatalog) Versions(ctx context.Context, lang string) []string {
	return c.versions[c.Canonical(lang)]
}

type fixture struct {
	db       *database.LocalDatabase
	gate     *auth.Gate
	activity *ActivityLog
	settings *SettingsStore
	accounts *Accounts
	spaces   *SpaceStore
	pages    *PageStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewLocalDatabase()
	gate := auth.NewGate(db)
	activity := NewActivityLog(db)
	return &fixture{
		db:       db,
		gate:     gate,
		activity: activity,
		settings: NewSettingsStore(db, gate, activity),
		accounts: NewAccounts(db, gate, activity),
		spaces:   NewSpaceStore(db, gate, activity, newFakeCatalog()),
		pages:    NewPageStore(db, gate, activity),
	}
}

func (f *fixture) user(t *testing.T, username string, admin bool) auth.Principal {
	t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
		IsAdmin:      admin,
	}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return auth.ForUser(u)
}

func (f *fixture) webSpace(t *testing.T, owner auth.Principal, name string) *models.Space {
	t.Helper()
	space, err := f.spaces.Create(context.Background(), owner, CreateSpaceInput{Name: name})
	require.NoError(t, err)
	return space
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
