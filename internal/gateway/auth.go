package gateway

import (
	"context"
	"net/http"

	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
	"github.com/jacl-coder/PixelStream-Server/internal/auth"
	"github.com/jacl-coder/PixelStream-Server/internal/identity"
	"github.com/jacl-coder/PixelStream-Server/internal/models"
)

// IdentityResolver 将外部身份映射为本地用户
type IdentityResolver interface {
	Resolve(ctx context.Context, externalID string, hints identity.Hints) (*models.UserProfile, error)
}

// Authenticator 校验访问令牌并解析用户，HTTP 和 WebSocket 共用
type Authenticator struct {
	tokens *auth.TokenValidator
	users  IdentityResolver
}

// NewAuthenticator 创建认证器
func NewAuthenticator(tokens *auth.TokenValidator, users IdentityResolver) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate 从请求中取出令牌，校验后返回本地用户
func (a *Authenticator) Authenticate(r *http.Request) (*models.UserProfile, error) {
	token := auth.BearerToken(r)
	if token == "" {
		return nil, apperr.New(apperr.Unauthorized, "缺少访问令牌")
	}

	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	return a.users.Resolve(r.Context(), claims.Subject, identity.Hints{
		Username:    claims.PreferredUsername,
		DisplayName: claims.Name,
	})
}

// requireUser 认证中间件，通过后用户放入请求上下文
func (g *Gateway) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.deps.Auth == nil {
			g.sendErrorResponse(w, apperr.New(apperr.Unauthorized, "未配置认证"))
			return
		}
		user, err := g.deps.Auth.Authenticate(r)
		if err != nil {
			g.sendErrorResponse(w, err)
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), user)))
	}
}

// currentUser 取出 requireUser 放入的用户
func currentUser(r *http.Request) *models.UserProfile {
	user, _ := auth.UserFrom(r.Context())
	return user
}
