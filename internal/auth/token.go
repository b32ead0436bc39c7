// Package auth 校验外部签发的访问令牌
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

// CustomClaims 令牌中的用户信息，sub 为外部用户ID
type CustomClaims struct {
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator HS256 令牌校验器
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator 创建令牌校验器，issuer 为空时不校验签发者
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// Validate 校验签名、有效期和签发者
func (v *TokenValidator) Validate(tokenString string) (*CustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "令牌无效", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "令牌无效")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.Unauthorized, "令牌缺少 sub")
	}
	return claims, nil
}

// Issue 签发令牌，用于开发环境和测试
func (v *TokenValidator) Issue(subject, username, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		PreferredUsername: username,
		Name:              name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, nil
}

// BearerToken 从 Authorization 头或 token 查询参数中取出令牌
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type userKey struct{}

// WithUser 将已解析的用户放入上下文
func WithUser(ctx context.Context, user *models.UserProfile) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom 从上下文取出用户
func UserFrom(ctx context.Context) (*models.UserProfile, bool) {
	user, ok := ctx.Value(userKey{}).(*models.UserProfile)
	return user, ok && user != nil
}
