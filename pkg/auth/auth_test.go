package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Authorize(t *testing.T) {
	db := database.NewLocalDatabase()
	db.AddClubMember("club-1", "leader", models.ClubRoleCoLeader)
	db.AddClubMember("club-1", "member", models.ClubRoleMember)
	gate := NewGate(db)
	ctx := context.Background()

	owner := &models.User{ID: "owner", Username: "alice"}
	other := &models.User{ID: "other", Username: "bob"}
	admin := &models.User{ID: "admin", Username: "root", IsAdmin: true}
	suspended := &models.User{ID: "owner", Username: "alice", IsSuspended: true}

	private := &models.Space{ID: "s1", OwnerID: "owner", IsPublic: false}
	public := &models.Space{ID: "s2", OwnerID: "owner", IsPublic: true}

	tests := []struct {
		name string
		p    Principal
		caps []Capability
		want apperr.Kind
	}{
		{"owner", ForUser(owner), []Capability{OwnSpace(private)}, ""},
		{"other user forbidden", ForUser(other), []Capability{OwnSpace(private), AdminOverride()}, apperr.Forbidden},
		{"admin override", ForUser(admin), []Capability{OwnSpace(private), AdminOverride()}, ""},
		{"anonymous private", Anonymous(), []Capability{OwnSpace(private), ViewPublicSpace(private)}, apperr.Unauthenticated},
		{"anonymous public", Anonymous(), []Capability{OwnSpace(public), ViewPublicSpace(public)}, ""},
		{"suspended owner", ForUser(suspended), []Capability{OwnSpace(private)}, apperr.Suspended},
		{"suspended public view", ForUser(suspended), []Capability{ViewPublicSpace(public)}, apperr.Suspended},
		{"club leader", ForUser(&models.User{ID: "leader"}), []Capability{ClubLeader("club-1")}, ""},
		{"club member not leader", ForUser(&models.User{ID: "member"}), []Capability{ClubLeader("club-1")}, apperr.Forbidden},
		{"club member", ForUser(&models.User{ID: "member"}), []Capability{ClubMember("club-1")}, ""},
		{"not in club", ForUser(other), []Capability{ClubMember("club-1")}, apperr.Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(ctx, tt.p, tt.caps...)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestGate_RequireUser(t *testing.T) {
	gate := NewGate(nil)
	assert.Equal(t, apperr.Unauthenticated, apperr.KindOf(gate.RequireUser(Anonymous())))
	assert.Equal(t, apperr.Suspended, apperr.KindOf(gate.RequireUser(ForUser(&models.User{ID: "u", IsSuspended: true}))))
	assert.NoError(t, gate.RequireUser(ForUser(&models.User{ID: "u"})))
}

func TestPrincipalContext(t *testing.T) {
	assert.False(t, FromContext(context.Background()).IsAuthenticated())

	p := ForUser(&models.User{ID: "u1", Username: "carol"}, "admin-1", "admin-2")
	got := FromContext(WithPrincipal(context.Background(), p))
	assert.Equal(t, "u1", got.UserID())
	assert.Equal(t, "carol", got.Username())
	assert.True(t, got.IsImpersonating())
	assert.Equal(t, "admin-2", got.ImpersonatorID())
}

func TestSessionService_RoundTrip(t *testing.T) {
	svc := NewSessionService("test-secret", 0, false)
	user := &models.User{ID: "u1", Username: "dave"}

	token, expiry, err := svc.Issue(user, []string{"admin-1"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultSessionMaxAge), expiry, time.Minute)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "dave", claims.Username)
	assert.Equal(t, []string{"admin-1"}, claims.Impersonators)
}

func TestSessionService_Rejects(t *testing.T) {
	svc := NewSessionService("test-secret", time.Hour, false)
	user := &models.User{ID: "u1", Username: "dave"}
	token, _, err := svc.Issue(user, nil)
	require.NoError(t, err)

	_, err = NewSessionService("other-secret", time.Hour, false).Parse(token)
	assert.Error(t, err)

	expired := NewSessionService("test-secret", time.Hour, false)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(token)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.SessionClaims{UserID: "u1", Exp: time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Parse(unsigned)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))
}

func TestCookies(t *testing.T) {
	svc := NewSessionService("s", time.Hour, true)
	rec := httptest.NewRecorder()
	svc.SetCookie(rec, "tok", time.Now().Add(time.Hour))
	c := rec.Result().Cookies()[0]
	assert.Equal(t, SessionCookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)

	rec = httptest.NewRecorder()
	svc.ClearCookie(rec)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
