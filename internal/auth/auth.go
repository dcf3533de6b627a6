package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const (
	defaultCookieName = "iotbridge_jwt"
	tokenTTL          = 7 * 24 * time.Hour
)

// JWTManager 管理 JWT 签发与验证（HS256）
type JWTManager struct {
	secret       []byte
	cookieName   string
	adminUser    string
	adminPwdHash string
}

type sessionInfoContextKey struct{}

// SessionInfo 会话信息
type SessionInfo struct {
	Username string
	Role     string
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建JWT管理器
// adminPwdHash 为 bcrypt 散列；为空时登录始终失败。
func NewJWTManager(secretKey []byte, adminUser, adminPwdHash string) *JWTManager {
	if len(secretKey) < 16 {
		secretKey = []byte("iotbridge-default-secret-please-change")
	}
	return &JWTManager{
		secret:       secretKey,
		cookieName:   defaultCookieName,
		adminUser:    adminUser,
		adminPwdHash: adminPwdHash,
	}
}

// Login 用户登录，返回 JWT
func (m *JWTManager) Login(w http.ResponseWriter, username, password string) (string, error) {
	if m.adminPwdHash == "" || username != m.adminUser {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.adminPwdHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := m.GenerateToken(username, "admin")
	if err != nil {
		return "", err
	}
	m.setCookie(w, token)
	return token, nil
}

// Logout 用户登出
func (m *JWTManager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GenerateToken 签发 JWT
func (m *JWTManager) GenerateToken(username, role string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证 JWT
func (m *JWTManager) ParseToken(tokenStr string) (*SessionInfo, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &SessionInfo{
		Username: claims.Subject,
		Role:     claims.Role,
	}, nil
}

// GetSession 获取会话信息（从 Authorization Bearer 或 Cookie）
func (m *JWTManager) GetSession(r *http.Request) (*SessionInfo, error) {
	tokenStr := extractToken(r, m.cookieName)
	if tokenStr == "" {
		return nil, nil
	}
	return m.ParseToken(tokenStr)
}

// RequireAuth 需要认证中间件
func (m *JWTManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := m.GetSession(r)
		if err != nil || info == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionInfoContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext 从上下文取出会话信息
func SessionFromContext(ctx context.Context) *SessionInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(sessionInfoContextKey{}).(*SessionInfo)
	return info
}

// HashPassword 生成密码散列
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func extractToken(r *http.Request, cookieName string) string {
	// Authorization: Bearer <token>
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (m *JWTManager) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(tokenTTL.Seconds()),
	})
}
