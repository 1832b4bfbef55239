package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents an account on the platform
type User struct {
	ID               string     `json:"id" db:"id"`
	Username         string     `json:"username" db:"username"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"` // Never return password in JSON
	IsActive         bool       `json:"is_active" db:"is_active"`
	IsSuspended      bool       `json:"is_suspended" db:"is_suspended"`
	IsAdmin          bool       `json:"is_admin" db:"is_admin"`
	IsStaff          bool       `json:"is_staff" db:"is_staff"`
	GitHubToken      *string    `json:"-" db:"github_token"`
	GitHubUsername   string     `json:"github_username,omitempty" db:"github_username"`
	SlackID          string     `json:"slack_id,omitempty" db:"slack_id"`
	HackatimeAPIKey  *string    `json:"-" db:"hackatime_api_key"`
	AIAPIKey         *string    `json:"-" db:"ai_api_key"`
	LastHeartbeatDay *string    `json:"-" db:"last_heartbeat_day"` // YYYY-MM-DD (UTC)
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// HasHackatimeKey 是否已绑定时间追踪密钥
func (u *User) HasHackatimeKey() bool {
	return u.HackatimeAPIKey != nil && *u.HackatimeAPIKey != ""
}

// SignupRequest represents the request payload for account registration
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest accepts either a username or an email as identifier
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

// Identifier returns the login identifier supplied by the client
func (r LoginRequest) Identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

// SessionClaims represents the JWT session claims.
// Impersonators is a stack of admin ids; the last entry is the admin who
// started the current impersonation.
type SessionClaims struct {
	UserID        string   `json:"user_id"`
	Username      string   `json:"username"`
	Impersonators []string `json:"impersonators,omitempty"`
	Exp           int64    `json:"exp"`
	Iat           int64    `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *SessionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *SessionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *SessionClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *SessionClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *SessionClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *SessionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
