package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"spaces-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookieName 会话 cookie 名
const SessionCookieName = "spaces_session"

// DefaultSessionMaxAge 会话有效期（7天）
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// SessionService 签发与校验会话令牌
type SessionService struct {
	secretKey []byte
	maxAge    time.Duration
	secure    bool
	now       func() time.Time
}

// NewSessionService 创建会话服务
func NewSessionService(secretKey string, maxAge time.Duration, secure bool) *SessionService {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &SessionService{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
		secure:    secure,
		now:       time.Now,
	}
}

// Issue 为用户签发会话令牌；impersonators 为模拟栈
func (s *SessionService) Issue(user *models.User, impersonators []string) (string, time.Time, error) {
	now := s.now()
	expiry := now.Add(s.maxAge)
	claims := &models.SessionClaims{
		UserID:        user.ID,
		Username:      user.Username,
		Impersonators: impersonators,
		Exp:           expiry.Unix(),
		Iat:           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiry, nil
}

// Parse 验证令牌
func (s *SessionService) Parse(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	if s.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}
	return claims, nil
}

// TokenFromRequest 优先读取 cookie，其次 Authorization: Bearer
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if token := strings.TrimPrefix(header, "Bearer "); token != header {
		return strings.TrimSpace(token)
	}
	return ""
}

// SetCookie 写入会话 cookie
func (s *SessionService) SetCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiry,
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie 清除会话 cookie
func (s *SessionService) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HashPassword bcrypt 哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword 校验密码
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
